package repository

import (
	"context"
	"time"

	"github.com/reviewtrust/trustscore/internal/domain"
)

// PendingFilter narrows the selection of reviews awaiting classification.
type PendingFilter struct {
	// ProductID restricts the selection to one product when set.
	ProductID *string
	// MinModelVersion re-selects reviews whose analysis was produced by a
	// model version sorting below it, numbers compared numerically (see
	// domain.CompareModelVersions). Empty disables re-selection.
	MinModelVersion string
	Limit           int
}

// ReviewRepository defines the interface for crawled review persistence.
type ReviewRepository interface {
	// ListPending returns reviews with classifiable content that lack an
	// analysis or carry an outdated one, oldest crawl first.
	ListPending(ctx context.Context, filter PendingFilter) ([]domain.PendingReview, error)

	// BulkInsert stores crawled reviews, skipping ids that already exist.
	// It returns the number of rows inserted.
	BulkInsert(ctx context.Context, reviews []domain.Review) (int, error)

	// Statistics summarizes the raw reviews of a product.
	Statistics(ctx context.Context, productID string) (*domain.ReviewStatistics, error)

	// ListSamples returns up to limit recent analyzed reviews with content.
	ListSamples(ctx context.Context, productID string, limit int) ([]domain.SampleReview, error)
}

// AnalysisRepository defines the interface for review analysis persistence.
type AnalysisRepository interface {
	// Upsert inserts the analysis or replaces the existing one for the same review.
	Upsert(ctx context.Context, analysis *domain.ReviewAnalysis) error

	// Statistics summarizes the analyses of a product's reviews.
	Statistics(ctx context.Context, productID string) (*domain.AnalysisStatistics, error)
}

// ScoreTx is the set of operations available inside a product-locked
// transaction. Everything done through it commits or rolls back together.
type ScoreTx interface {
	// LoadAggregateInput reads every review of the product with its analysis.
	LoadAggregateInput(ctx context.Context, productID string) (domain.AggregateInput, error)

	// UpsertScore replaces the product's trust score row.
	UpsertScore(ctx context.Context, score *domain.TrustScore) error

	// DeleteScore removes the product's trust score row.
	DeleteScore(ctx context.Context, productID string) error

	// SetProductTrustFields mirrors the score onto the product record.
	// A missing product is an error.
	SetProductTrustFields(ctx context.Context, productID string, score *float64, calculatedAt *time.Time) error
}

// TrustScoreRepository defines the interface for trust score persistence.
type TrustScoreRepository interface {
	// WithProductLock runs fn in a repeatable-read transaction holding the
	// product's advisory lock. fn's error rolls the transaction back.
	WithProductLock(ctx context.Context, productID string, fn func(tx ScoreTx) error) error

	// GetByProductID retrieves the stored trust score of a product.
	GetByProductID(ctx context.Context, productID string) (*domain.TrustScore, error)

	// ListTop returns the highest computed scores among products with at
	// least minReviews reviews.
	ListTop(ctx context.Context, limit, minReviews int) ([]domain.TrustScore, error)

	// ListByRange returns computed scores within [lo, hi], highest first.
	ListByRange(ctx context.Context, lo, hi float64, page, perPage int) ([]domain.TrustScore, int, error)
}

// AnalyticsRepository defines the interface for LLM analytics persistence.
type AnalyticsRepository interface {
	GetByProductID(ctx context.Context, productID string) (*domain.ProductAnalytics, error)
	Upsert(ctx context.Context, analytics *domain.ProductAnalytics) error
}

// ProductRepository reads the product record owned by the catalog.
type ProductRepository interface {
	GetSummary(ctx context.Context, productID string) (*domain.ProductSummary, error)
}

// PendingStore records products whose analyses changed since their last
// recompute.
type PendingStore interface {
	// Mark records the given products. Marking twice is the same as once.
	Mark(ctx context.Context, productIDs ...string) error

	// Drain removes and returns up to n marked products.
	Drain(ctx context.Context, n int) ([]string, error)

	// Len returns the number of marked products.
	Len(ctx context.Context) (int64, error)
}
