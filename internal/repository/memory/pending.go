package memory

import (
	"context"
	"sort"
	"sync"
)

// PendingStore is an in-process repository.PendingStore for single-instance
// deployments and tests. Marks are lost on restart.
type PendingStore struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewPendingStore() *PendingStore {
	return &PendingStore{ids: make(map[string]struct{})}
}

func (s *PendingStore) Mark(_ context.Context, productIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range productIDs {
		s.ids[id] = struct{}{}
	}
	return nil
}

// Drain removes and returns up to n products in lexical order.
func (s *PendingStore) Drain(_ context.Context, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	if n < len(out) {
		out = out[:max(n, 0)]
	}
	for _, id := range out {
		delete(s.ids, id)
	}
	return out, nil
}

func (s *PendingStore) Len(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.ids)), nil
}
