package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/pkg/database"
	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
)

// AnalyticsRepository implements repository.AnalyticsRepository using PostgreSQL.
type AnalyticsRepository struct {
	pool database.DBTX
}

// NewAnalyticsRepository creates a new PostgreSQL-backed analytics repository.
func NewAnalyticsRepository(pool database.DBTX) *AnalyticsRepository {
	return &AnalyticsRepository{pool: pool}
}

// GetByProductID retrieves the stored analytics of a product.
func (r *AnalyticsRepository) GetByProductID(ctx context.Context, productID string) (*domain.ProductAnalytics, error) {
	query := `
		SELECT id, product_id, analysis_data, model_used, total_reviews_analyzed,
		       sample_reviews_count, analyzed_at, created_at, updated_at
		FROM product_analytics
		WHERE product_id = $1`

	var pa domain.ProductAnalytics
	var data []byte
	err := r.pool.QueryRow(ctx, query, productID).Scan(
		&pa.ID,
		&pa.ProductID,
		&data,
		&pa.ModelUsed,
		&pa.TotalReviewsAnalyzed,
		&pa.SampleReviewsCount,
		&pa.AnalyzedAt,
		&pa.CreatedAt,
		&pa.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product analytics", productID)
		}
		return nil, fmt.Errorf("get product analytics: %w", err)
	}
	if err := json.Unmarshal(data, &pa.Report); err != nil {
		return nil, fmt.Errorf("decode analysis data: %w", err)
	}
	return &pa, nil
}

// Upsert stores the analytics, replacing any previous analysis of the product.
func (r *AnalyticsRepository) Upsert(ctx context.Context, pa *domain.ProductAnalytics) error {
	query := `
		INSERT INTO product_analytics (
			id, product_id, analysis_data, model_used, total_reviews_analyzed,
			sample_reviews_count, analyzed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (product_id) DO UPDATE SET
			analysis_data = EXCLUDED.analysis_data,
			model_used = EXCLUDED.model_used,
			total_reviews_analyzed = EXCLUDED.total_reviews_analyzed,
			sample_reviews_count = EXCLUDED.sample_reviews_count,
			analyzed_at = EXCLUDED.analyzed_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	if pa.ID == "" {
		pa.ID = uuid.New().String()
	}
	data, err := json.Marshal(pa.Report)
	if err != nil {
		return fmt.Errorf("marshal analysis data: %w", err)
	}

	err = r.pool.QueryRow(ctx, query,
		pa.ID,
		pa.ProductID,
		data,
		pa.ModelUsed,
		pa.TotalReviewsAnalyzed,
		pa.SampleReviewsCount,
		pa.AnalyzedAt,
	).Scan(&pa.ID, &pa.CreatedAt, &pa.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert product analytics: %w", err)
	}
	return nil
}
