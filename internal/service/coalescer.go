package service

import (
	"context"
	"sync"
)

// Coalescer runs at most one call per key at a time. Calls arriving while
// one is running share a single follow-up run, started as soon as the
// current one ends, and all receive its result.
type Coalescer[T any] struct {
	mu   sync.Mutex
	keys map[string]*keyState[T]
}

type keyState[T any] struct {
	running *call[T]
	next    *call[T]
}

type call[T any] struct {
	ctx  context.Context
	fn   func(context.Context) (T, error)
	done chan struct{}
	val  T
	err  error
}

// NewCoalescer creates an empty Coalescer.
func NewCoalescer[T any]() *Coalescer[T] {
	return &Coalescer[T]{keys: make(map[string]*keyState[T])}
}

// Do runs fn for key, or joins the run that will reflect this request. The
// run is detached from ctx cancellation; a caller whose ctx ends stops
// waiting and gets ctx.Err() while the run carries on.
// The second return value reports whether the call joined a pending follow-up.
func (c *Coalescer[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, bool, error) {
	c.mu.Lock()
	st, ok := c.keys[key]
	if !ok {
		st = &keyState[T]{}
		c.keys[key] = st
	}

	var cl *call[T]
	joined := false
	switch {
	case st.running == nil:
		cl = newCall(ctx, fn)
		st.running = cl
		go c.run(key, cl)
	case st.next == nil:
		cl = newCall(ctx, fn)
		st.next = cl
	default:
		cl = st.next
		joined = true
	}
	c.mu.Unlock()

	select {
	case <-cl.done:
		return cl.val, joined, cl.err
	case <-ctx.Done():
		var zero T
		return zero, joined, ctx.Err()
	}
}

func newCall[T any](ctx context.Context, fn func(context.Context) (T, error)) *call[T] {
	return &call[T]{
		ctx:  context.WithoutCancel(ctx),
		fn:   fn,
		done: make(chan struct{}),
	}
}

func (c *Coalescer[T]) run(key string, cl *call[T]) {
	for cl != nil {
		cl.val, cl.err = cl.fn(cl.ctx)
		close(cl.done)

		c.mu.Lock()
		st := c.keys[key]
		cl, st.next = st.next, nil
		st.running = cl
		if cl == nil {
			delete(c.keys, key)
		}
		c.mu.Unlock()
	}
}
