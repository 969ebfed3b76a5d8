package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/reviewtrust/trustscore/internal/classifier"
	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/internal/repository"
	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
	"github.com/reviewtrust/trustscore/pkg/logger"
	"github.com/reviewtrust/trustscore/pkg/tracing"
)

const tracerName = "github.com/reviewtrust/trustscore/internal/service"

// MaxBatchSize caps a single ProcessPendingReviews call.
const MaxBatchSize = 1000

// PipelineConfig configures AnalysisPipeline.
type PipelineConfig struct {
	BatchSize       int
	Parallelism     int
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	ClassifyTimeout time.Duration
	WriteTimeout    time.Duration
	MinModelVersion string
}

// ProcessRequest selects the reviews of one run.
type ProcessRequest struct {
	ProductID *string `json:"product_id,omitempty" validate:"omitempty,uuid"`
	BatchSize int     `json:"batch_size,omitempty" validate:"gte=0,lte=1000"`
}

// FailedReview is a review left unanalyzed by a run.
type FailedReview struct {
	ReviewID  string `json:"review_id"`
	ProductID string `json:"product_id"`
	Attempts  int    `json:"attempts"`
	Reason    string `json:"reason"`
}

// BatchResult reports what one run did.
type BatchResult struct {
	BatchID        string         `json:"batch_id"`
	Selected       int            `json:"selected"`
	Analyzed       int            `json:"analyzed"`
	Skipped        int            `json:"skipped"`
	Failed         []FailedReview `json:"failed"`
	ProductsMarked []string       `json:"products_marked"`
	Canceled       bool           `json:"canceled,omitempty"`
	Duration       time.Duration  `json:"duration_ns"`
}

// AnalysisPipeline classifies reviews awaiting analysis and marks their
// products for recomputation.
type AnalysisPipeline struct {
	reviews    repository.ReviewRepository
	analyses   repository.AnalysisRepository
	pending    repository.PendingStore
	classifier classifier.Classifier
	cfg        PipelineConfig
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	// set once the classifier reports a version below MinModelVersion;
	// its own analyses would be re-selected forever.
	floorUnreachable atomic.Bool
}

// NewAnalysisPipeline creates a new analysis pipeline.
func NewAnalysisPipeline(
	reviews repository.ReviewRepository,
	analyses repository.AnalysisRepository,
	pending repository.PendingStore,
	cls classifier.Classifier,
	cfg PipelineConfig,
	logger *slog.Logger,
) *AnalysisPipeline {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &AnalysisPipeline{
		reviews:    reviews,
		analyses:   analyses,
		pending:    pending,
		classifier: cls,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		sleep:      sleepCtx,
	}
}

// ProcessPendingReviews classifies up to one batch of pending reviews.
//
// Reviews are processed in parallel. A review whose classification keeps
// failing after the configured attempts is reported in Failed and does not
// stop the batch; analyses already stored are never rolled back. Canceling
// ctx stops the batch between reviews, and an in-flight classification runs
// to its own deadline. Products with at least one new analysis are marked
// pending once, at the end of the run.
func (p *AnalysisPipeline) ProcessPendingReviews(ctx context.Context, req ProcessRequest) (_ *BatchResult, err error) {
	size := req.BatchSize
	if size == 0 {
		size = p.cfg.BatchSize
	}
	if size < 1 || size > MaxBatchSize {
		return nil, apperrors.InvalidInput(fmt.Sprintf("batch_size must be between 1 and %d", MaxBatchSize))
	}

	result := &BatchResult{BatchID: uuid.NewString(), Failed: []FailedReview{}, ProductsMarked: []string{}}
	ctx = logger.WithBatchID(ctx, result.BatchID)
	log := logger.WithContext(ctx, p.logger)

	ctx, span := tracing.Tracer(tracerName).Start(ctx, "pipeline.ProcessPendingReviews")
	defer func() {
		tracing.EndSpan(span, err,
			attribute.Int("batch.selected", result.Selected),
			attribute.Int("batch.analyzed", result.Analyzed),
			attribute.Int("batch.failed", len(result.Failed)),
		)
	}()

	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		pipelineBatchDuration.Observe(result.Duration.Seconds())
	}()

	minVersion := p.cfg.MinModelVersion
	if p.floorUnreachable.Load() {
		minVersion = ""
	}
	pending, err := p.reviews.ListPending(ctx, repository.PendingFilter{
		ProductID:       req.ProductID,
		MinModelVersion: minVersion,
		Limit:           size,
	})
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	result.Selected = len(pending)
	if len(pending) == 0 {
		return result, nil
	}

	var (
		mu       sync.Mutex
		products = make(map[string]struct{})
	)
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Parallelism)

	for _, r := range pending {
		if ctx.Err() != nil {
			result.Canceled = true
			break
		}
		if strings.TrimSpace(r.Content) == "" {
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			reviewsClassified.WithLabelValues(outcomeSkipped).Inc()
			continue
		}

		g.Go(func() error {
			attempts, err := p.analyze(ctx, r)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, FailedReview{
					ReviewID:  r.ReviewID,
					ProductID: r.ProductID,
					Attempts:  attempts,
					Reason:    err.Error(),
				})
				reviewsClassified.WithLabelValues(outcomeFailed).Inc()
				return nil
			}
			result.Analyzed++
			products[r.ProductID] = struct{}{}
			reviewsClassified.WithLabelValues(outcomeAnalyzed).Inc()
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(result.Failed, func(a, b FailedReview) int { return strings.Compare(a.ReviewID, b.ReviewID) })
	for id := range products {
		result.ProductsMarked = append(result.ProductsMarked, id)
	}
	slices.Sort(result.ProductsMarked)

	if len(result.ProductsMarked) > 0 {
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.WriteTimeout)
		defer cancel()
		if err := p.pending.Mark(markCtx, result.ProductsMarked...); err != nil {
			log.ErrorContext(ctx, "failed to mark products for recompute",
				slog.Int("products", len(result.ProductsMarked)),
				slog.String("error", err.Error()),
			)
			return result, fmt.Errorf("mark products pending: %w", err)
		}
	}

	log.InfoContext(ctx, "analysis batch completed",
		slog.Int("selected", result.Selected),
		slog.Int("analyzed", result.Analyzed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", len(result.Failed)),
		slog.Int("products_marked", len(result.ProductsMarked)),
		slog.Bool("canceled", result.Canceled),
	)
	return result, nil
}

// analyze classifies and stores one review. It returns the number of
// classifier attempts made.
func (p *AnalysisPipeline) analyze(ctx context.Context, r domain.PendingReview) (int, error) {
	log := logger.WithContext(logger.WithProductID(ctx, r.ProductID), p.logger)
	req := classifier.Request{
		Content: r.Content,
		Hints:   classifier.Hints{Rating: r.Rating, Platform: r.Platform, Verified: r.Verified},
	}

	var (
		c       *domain.Classification
		err     error
		attempt int
		elapsed time.Duration
	)
	for attempt = 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		c, err = p.classify(ctx, req)
		elapsed = time.Since(start)
		if err == nil || !domain.IsRetryableClassification(err) || attempt == p.cfg.MaxAttempts {
			break
		}

		delay := p.backoff(attempt)
		log.WarnContext(ctx, "classification failed, retrying",
			slog.String("review_id", r.ReviewID),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		if serr := p.sleep(ctx, delay); serr != nil {
			return attempt, fmt.Errorf("retry canceled: %w", errors.Join(err, serr))
		}
	}
	attempt = min(attempt, p.cfg.MaxAttempts)
	if err != nil {
		log.WarnContext(ctx, "review left unanalyzed",
			slog.String("review_id", r.ReviewID),
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()),
		)
		return attempt, err
	}

	p.checkModelFloor(ctx, log, c)

	analysis := domain.NewReviewAnalysis(r.ReviewID, c, p.now(), elapsed)
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.WriteTimeout)
	defer cancel()
	if err := p.analyses.Upsert(writeCtx, analysis); err != nil {
		return attempt, fmt.Errorf("store analysis: %w", err)
	}
	return attempt, nil
}

// checkModelFloor stops re-selecting outdated analyses once the classifier
// itself produces versions below MinModelVersion.
func (p *AnalysisPipeline) checkModelFloor(ctx context.Context, log *slog.Logger, c *domain.Classification) {
	floor := p.cfg.MinModelVersion
	if floor == "" || p.floorUnreachable.Load() {
		return
	}
	if domain.CompareModelVersions(c.SentimentModelVersion, floor) >= 0 &&
		domain.CompareModelVersions(c.SpamModelVersion, floor) >= 0 {
		return
	}
	if p.floorUnreachable.CompareAndSwap(false, true) {
		log.ErrorContext(ctx, "classifier model is older than the minimum model version, re-analysis disabled",
			slog.String("min_model_version", floor),
			slog.String("sentiment_model_version", c.SentimentModelVersion),
			slog.String("spam_model_version", c.SpamModelVersion),
		)
	}
}

// classify runs one classifier call detached from batch cancellation.
func (p *AnalysisPipeline) classify(ctx context.Context, req classifier.Request) (*domain.Classification, error) {
	callCtx := context.WithoutCancel(ctx)
	if p.cfg.ClassifyTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, p.cfg.ClassifyTimeout)
		defer cancel()
	}
	classifyAttempts.Inc()
	return p.classifier.Classify(callCtx, req)
}

// backoff returns the delay after the given failed attempt: the base delay
// doubled per attempt, capped at the max delay.
func (p *AnalysisPipeline) backoff(attempt int) time.Duration {
	d := p.cfg.RetryBaseDelay
	for i := 1; i < attempt && d < p.cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	if p.cfg.RetryMaxDelay > 0 && d > p.cfg.RetryMaxDelay {
		d = p.cfg.RetryMaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
