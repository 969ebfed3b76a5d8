package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/internal/repository"
	"github.com/reviewtrust/trustscore/pkg/database"
	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
)

// MaxIngestBatch caps the reviews accepted in one ingest call.
const MaxIngestBatch = 1000

// ReviewStatistics combines the raw review and analysis summaries of a product.
type ReviewStatistics struct {
	ProductID string                     `json:"product_id"`
	Reviews   *domain.ReviewStatistics   `json:"reviews"`
	Analyses  *domain.AnalysisStatistics `json:"analyses"`
}

// ReviewService stores crawled reviews and reports on them.
type ReviewService struct {
	reviews  repository.ReviewRepository
	analyses repository.AnalysisRepository
	pending  repository.PendingStore
	logger   *slog.Logger
}

// NewReviewService creates a new review service.
func NewReviewService(
	reviews repository.ReviewRepository,
	analyses repository.AnalysisRepository,
	pending repository.PendingStore,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		reviews:  reviews,
		analyses: analyses,
		pending:  pending,
		logger:   logger,
	}
}

// IngestReviews stores crawled reviews of one product and marks it for
// recomputation. Reviews whose id already exists are skipped, so
// redelivered batches are harmless. It returns the number of new reviews.
func (s *ReviewService) IngestReviews(ctx context.Context, productID string, reviews []domain.Review) (int, error) {
	if err := validateProductID(productID); err != nil {
		return 0, err
	}
	if len(reviews) == 0 {
		return 0, nil
	}
	if len(reviews) > MaxIngestBatch {
		return 0, apperrors.InvalidInput(fmt.Sprintf("at most %d reviews per batch", MaxIngestBatch))
	}
	for i := range reviews {
		r := &reviews[i]
		if r.ProductID != productID {
			return 0, apperrors.InvalidInput(fmt.Sprintf("review %d belongs to product %q", i, r.ProductID))
		}
		if r.Rating < domain.MinRating || r.Rating > domain.MaxRating {
			return 0, apperrors.InvalidInput(fmt.Sprintf("review %d: rating must be between 1 and 5", i))
		}
		if r.HelpfulCount < 0 {
			return 0, apperrors.InvalidInput(fmt.Sprintf("review %d: helpful_count must be non-negative", i))
		}
	}

	inserted, err := s.reviews.BulkInsert(ctx, reviews)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return 0, apperrors.NotFound("product", productID)
		}
		return 0, fmt.Errorf("ingest reviews: %w", err)
	}

	// A redelivery inserts nothing but still marks, so a mark lost to an
	// earlier failure is recovered.
	if err := s.pending.Mark(ctx, productID); err != nil {
		return inserted, fmt.Errorf("mark product pending: %w", err)
	}

	s.logger.InfoContext(ctx, "reviews ingested",
		slog.String("product_id", productID),
		slog.Int("received", len(reviews)),
		slog.Int("inserted", inserted),
	)
	return inserted, nil
}

// Statistics summarizes the reviews and analyses of a product.
func (s *ReviewService) Statistics(ctx context.Context, productID string) (*ReviewStatistics, error) {
	if err := validateProductID(productID); err != nil {
		return nil, err
	}
	reviews, err := s.reviews.Statistics(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("review statistics: %w", err)
	}
	analyses, err := s.analyses.Statistics(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("analysis statistics: %w", err)
	}
	return &ReviewStatistics{ProductID: productID, Reviews: reviews, Analyses: analyses}, nil
}
