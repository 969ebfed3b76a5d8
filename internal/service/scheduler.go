package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/internal/repository"
	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
	"github.com/reviewtrust/trustscore/pkg/logger"
)

// BatchProcessor runs one analysis batch.
type BatchProcessor interface {
	ProcessPendingReviews(ctx context.Context, req ProcessRequest) (*BatchResult, error)
}

// Recomputer recomputes the trust score of one product.
type Recomputer interface {
	RecomputeTrustScore(ctx context.Context, productID string) (*domain.TrustScore, error)
}

// SchedulerConfig configures the background jobs.
type SchedulerConfig struct {
	PipelineInterval  time.Duration
	RecomputeInterval time.Duration
	DrainSize         int
	Parallelism       int
}

// DrainResult reports one pass over the pending markers.
type DrainResult struct {
	Drained    int `json:"drained"`
	Recomputed int `json:"recomputed"`
	Failed     int `json:"failed"`
}

// Scheduler runs the periodic analysis batch and recomputes products
// marked pending.
type Scheduler struct {
	pipeline BatchProcessor
	scores   Recomputer
	pending  repository.PendingStore
	cfg      SchedulerConfig
	logger   *slog.Logger
}

// NewScheduler creates a new scheduler.
func NewScheduler(pipeline BatchProcessor, scores Recomputer, pending repository.PendingStore, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.DrainSize < 1 {
		cfg.DrainSize = 1
	}
	return &Scheduler{
		pipeline: pipeline,
		scores:   scores,
		pending:  pending,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run starts both jobs and blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.every(ctx, s.cfg.PipelineInterval, s.processTick)
	}()
	go func() {
		defer wg.Done()
		s.every(ctx, s.cfg.RecomputeInterval, s.recomputeTick)
	}()
	wg.Wait()
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, job func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(logger.WithCorrelationID(ctx, uuid.NewString()))
		}
	}
}

func (s *Scheduler) processTick(ctx context.Context) {
	log := logger.WithContext(ctx, s.logger)
	result, err := s.pipeline.ProcessPendingReviews(ctx, ProcessRequest{})
	if err != nil {
		log.ErrorContext(ctx, "scheduled analysis batch error", slog.String("error", err.Error()))
		return
	}
	if result.Selected > 0 {
		log.InfoContext(ctx, "scheduled analysis batch done",
			slog.Int("analyzed", result.Analyzed),
			slog.Int("failed", len(result.Failed)),
		)
	}
}

func (s *Scheduler) recomputeTick(ctx context.Context) {
	log := logger.WithContext(ctx, s.logger)
	result, err := s.DrainPending(ctx)
	if err != nil {
		log.ErrorContext(ctx, "pending recompute error", slog.String("error", err.Error()))
		return
	}
	if result.Drained > 0 {
		log.InfoContext(ctx, "pending products recomputed",
			slog.Int("recomputed", result.Recomputed),
			slog.Int("failed", result.Failed),
		)
	}
}

// DrainPending recomputes up to DrainSize marked products. Products whose
// recompute fails for a transient reason are marked again for the next pass.
func (s *Scheduler) DrainPending(ctx context.Context) (*DrainResult, error) {
	if n, err := s.pending.Len(ctx); err == nil {
		pendingProducts.Set(float64(n))
	}

	ids, err := s.pending.Drain(ctx, s.cfg.DrainSize)
	if err != nil {
		return nil, err
	}
	result := &DrainResult{Drained: len(ids)}
	if len(ids) == 0 {
		return result, nil
	}

	var (
		mu     sync.Mutex
		retry  []string
		failed int
	)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Parallelism)
	for _, id := range ids {
		g.Go(func() error {
			_, err := s.scores.RecomputeTrustScore(ctx, id)
			if err == nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			failed++
			if !permanent(err) {
				retry = append(retry, id)
			}
			pctx := logger.WithProductID(ctx, id)
			logger.WithContext(pctx, s.logger).WarnContext(pctx, "pending recompute failed",
				slog.Bool("requeued", !permanent(err)),
				slog.String("error", err.Error()),
			)
			return nil
		})
	}
	_ = g.Wait()

	result.Failed = failed
	result.Recomputed = len(ids) - failed
	if len(retry) > 0 {
		if err := s.pending.Mark(context.WithoutCancel(ctx), retry...); err != nil {
			return result, err
		}
	}
	return result, nil
}

// permanent reports whether retrying the recompute cannot help.
func permanent(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrInvalidInput) ||
		errors.Is(err, domain.ErrInconsistentAggregate)
}
