package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/internal/repository"
	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
	"github.com/reviewtrust/trustscore/pkg/logger"
	"github.com/reviewtrust/trustscore/pkg/tracing"
)

// Limits for trust score listings.
const (
	DefaultTopLimit = 10
	MaxTopLimit     = 100
)

// ScorePublisher announces a committed trust score.
type ScorePublisher interface {
	PublishTrustScoreUpdated(ctx context.Context, ts *domain.TrustScore) error
}

// TrustScoreService recomputes, publishes and serves product trust scores.
type TrustScoreService struct {
	repo      repository.TrustScoreRepository
	publisher ScorePublisher
	formula   domain.Formula
	timeout   time.Duration
	flights   *Coalescer[*domain.TrustScore]
	logger    *slog.Logger
	now       func() time.Time
}

// NewTrustScoreService creates a new trust score service. publisher may be nil.
func NewTrustScoreService(
	repo repository.TrustScoreRepository,
	publisher ScorePublisher,
	formula domain.Formula,
	timeout time.Duration,
	logger *slog.Logger,
) *TrustScoreService {
	return &TrustScoreService{
		repo:      repo,
		publisher: publisher,
		formula:   formula,
		timeout:   timeout,
		flights:   NewCoalescer[*domain.TrustScore](),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Formula returns the formula scores are computed with.
func (s *TrustScoreService) Formula() domain.Formula {
	return s.formula
}

// RecomputeTrustScore recomputes and publishes the score of one product.
//
// Requests for a product already being recomputed coalesce into a single
// follow-up run that starts after the current one, so every caller gets a
// score reflecting at least the data present when it asked. Insufficient
// data is reported through the score status, not as an error.
func (s *TrustScoreService) RecomputeTrustScore(ctx context.Context, productID string) (*domain.TrustScore, error) {
	if err := validateProductID(productID); err != nil {
		return nil, err
	}

	ts, joined, err := s.flights.Do(ctx, productID, func(ctx context.Context) (*domain.TrustScore, error) {
		return s.recompute(ctx, productID)
	})
	if joined {
		recomputeCoalesced.Inc()
	}
	return ts, err
}

func (s *TrustScoreService) recompute(ctx context.Context, productID string) (_ *domain.TrustScore, err error) {
	ctx = logger.WithProductID(ctx, productID)
	log := logger.WithContext(ctx, s.logger)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := tracing.Tracer(tracerName).Start(ctx, "trustscore.Recompute")
	defer func() { tracing.EndSpan(span, err, attribute.String("product.id", productID)) }()

	start := time.Now()
	defer func() { recomputeDuration.Observe(time.Since(start).Seconds()) }()

	var ts *domain.TrustScore
	for attempt := 1; ; attempt++ {
		ts, err = s.recomputeOnce(ctx, productID)
		if err == nil || !errors.Is(err, domain.ErrPersistenceConflict) || attempt == 2 {
			break
		}
		log.WarnContext(ctx, "trust score write conflict, retrying", slog.String("error", err.Error()))
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInconsistentAggregate):
			recomputeTotal.WithLabelValues("inconsistent").Inc()
			log.ErrorContext(ctx, "inconsistent aggregate, score not published", slog.String("error", err.Error()))
		case errors.Is(err, domain.ErrPersistenceConflict):
			recomputeTotal.WithLabelValues("conflict").Inc()
			log.WarnContext(ctx, "trust score write conflict persisted after retry", slog.String("error", err.Error()))
		default:
			recomputeTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("recompute trust score: %w", err)
	}
	recomputeTotal.WithLabelValues(string(ts.Metadata.Status)).Inc()

	if s.publisher != nil {
		if err := s.publisher.PublishTrustScoreUpdated(ctx, ts); err != nil {
			log.ErrorContext(ctx, "failed to publish trust_score.updated event", slog.String("error", err.Error()))
		}
	}

	attrs := []any{
		slog.String("status", string(ts.Metadata.Status)),
		slog.Int("total_reviews", ts.TotalReviews),
		slog.Int("analyzed_reviews", ts.AnalyzedReviews),
	}
	if ts.TrustScore != nil {
		attrs = append(attrs, slog.Float64("trust_score", *ts.TrustScore))
	}
	log.InfoContext(ctx, "trust score recomputed", attrs...)
	return ts, nil
}

// recomputeOnce loads, computes and publishes inside one locked transaction.
func (s *TrustScoreService) recomputeOnce(ctx context.Context, productID string) (*domain.TrustScore, error) {
	var out *domain.TrustScore
	err := s.repo.WithProductLock(ctx, productID, func(tx repository.ScoreTx) error {
		in, err := tx.LoadAggregateInput(ctx, productID)
		if err != nil {
			return err
		}
		ts, err := domain.ComputeTrustScore(in, s.formula, s.now())
		if err != nil {
			return err
		}
		if err := ts.Validate(); err != nil {
			return err
		}

		// The product row is checked first so a missing product fails
		// before anything is written.
		calculatedAt := ts.CalculatedAt
		if err := tx.SetProductTrustFields(ctx, productID, ts.TrustScore, &calculatedAt); err != nil {
			return err
		}
		if err := tx.UpsertScore(ctx, ts); err != nil {
			return err
		}
		out = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrustScore returns the stored score of a product.
func (s *TrustScoreService) GetTrustScore(ctx context.Context, productID string) (*domain.TrustScore, error) {
	if err := validateProductID(productID); err != nil {
		return nil, err
	}
	ts, err := s.repo.GetByProductID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get trust score: %w", err)
	}
	return ts, nil
}

// Breakdown explains the stored score of a product component by component.
func (s *TrustScoreService) Breakdown(ctx context.Context, productID string) (*domain.TrustScoreBreakdown, error) {
	ts, err := s.GetTrustScore(ctx, productID)
	if err != nil {
		return nil, err
	}
	return domain.NewBreakdown(ts), nil
}

// DeleteTrustScore removes the score of a product and clears the product mirror.
func (s *TrustScoreService) DeleteTrustScore(ctx context.Context, productID string) error {
	if err := validateProductID(productID); err != nil {
		return err
	}
	err := s.repo.WithProductLock(ctx, productID, func(tx repository.ScoreTx) error {
		if err := tx.DeleteScore(ctx, productID); err != nil {
			return err
		}
		return tx.SetProductTrustFields(ctx, productID, nil, nil)
	})
	if err != nil {
		return fmt.Errorf("delete trust score: %w", err)
	}

	s.logger.InfoContext(ctx, "trust score deleted", slog.String("product_id", productID))
	return nil
}

// ListTop returns the highest computed scores among products with at least
// minReviews reviews.
func (s *TrustScoreService) ListTop(ctx context.Context, limit, minReviews int) ([]domain.TrustScore, error) {
	if limit == 0 {
		limit = DefaultTopLimit
	}
	if limit < 1 || limit > MaxTopLimit {
		return nil, apperrors.InvalidInput(fmt.Sprintf("limit must be between 1 and %d", MaxTopLimit))
	}
	if minReviews < 0 {
		return nil, apperrors.InvalidInput("min_reviews must be non-negative")
	}
	scores, err := s.repo.ListTop(ctx, limit, minReviews)
	if err != nil {
		return nil, fmt.Errorf("list top trust scores: %w", err)
	}
	return scores, nil
}

// ListByRange returns computed scores within [lo, hi], highest first.
func (s *TrustScoreService) ListByRange(ctx context.Context, lo, hi float64, page, perPage int) ([]domain.TrustScore, int, error) {
	if lo < 0 || hi > 100 || lo > hi {
		return nil, 0, apperrors.InvalidInput("score range must satisfy 0 <= min <= max <= 100")
	}
	scores, total, err := s.repo.ListByRange(ctx, lo, hi, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list trust scores by range: %w", err)
	}
	return scores, total, nil
}

func validateProductID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.InvalidInput(fmt.Sprintf("invalid product id %q", id))
	}
	return nil
}
