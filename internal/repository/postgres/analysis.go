package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/pkg/database"
)

// AnalysisRepository implements repository.AnalysisRepository using PostgreSQL.
type AnalysisRepository struct {
	pool database.DBTX
}

// NewAnalysisRepository creates a new PostgreSQL-backed analysis repository.
func NewAnalysisRepository(pool database.DBTX) *AnalysisRepository {
	return &AnalysisRepository{pool: pool}
}

const upsertAnalysisSQL = `
		INSERT INTO review_analyses (
			id, review_id, sentiment_label, sentiment_score, sentiment_confidence,
			is_spam, spam_score, spam_confidence, sentiment_model_version, spam_model_version,
			analyzed_at, analysis_metadata, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT (review_id) DO UPDATE SET
			sentiment_label = EXCLUDED.sentiment_label,
			sentiment_score = EXCLUDED.sentiment_score,
			sentiment_confidence = EXCLUDED.sentiment_confidence,
			is_spam = EXCLUDED.is_spam,
			spam_score = EXCLUDED.spam_score,
			spam_confidence = EXCLUDED.spam_confidence,
			sentiment_model_version = EXCLUDED.sentiment_model_version,
			spam_model_version = EXCLUDED.spam_model_version,
			analyzed_at = EXCLUDED.analyzed_at,
			analysis_metadata = EXCLUDED.analysis_metadata,
			updated_at = NOW()
		RETURNING id`

// Upsert inserts the analysis or replaces the one already stored for the
// same review. a.ID is set to the id of the stored row.
func (r *AnalysisRepository) Upsert(ctx context.Context, a *domain.ReviewAnalysis) (err error) {
	ctx, end := database.TraceQuery(ctx, "UpsertAnalysis", upsertAnalysisSQL)
	defer func() { end(err) }()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal analysis metadata: %w", err)
	}

	err = r.pool.QueryRow(ctx, upsertAnalysisSQL,
		a.ID,
		a.ReviewID,
		string(a.SentimentLabel),
		a.SentimentScore,
		a.SentimentConfidence,
		a.IsSpam,
		a.SpamScore,
		a.SpamConfidence,
		a.SentimentModelVersion,
		a.SpamModelVersion,
		a.AnalyzedAt,
		meta,
	).Scan(&a.ID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("upsert analysis: review %s no longer exists: %w", a.ReviewID, err)
		}
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

// Statistics summarizes the analyses of a product's reviews.
func (r *AnalysisRepository) Statistics(ctx context.Context, productID string) (*domain.AnalysisStatistics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE a.sentiment_label = 'positive'),
			COUNT(*) FILTER (WHERE a.sentiment_label = 'negative'),
			COUNT(*) FILTER (WHERE a.sentiment_label = 'neutral'),
			COUNT(*) FILTER (WHERE a.is_spam),
			COALESCE(AVG(a.sentiment_score), 0)::float8
		FROM review_analyses a
		JOIN product_reviews r ON r.id = a.review_id
		WHERE r.product_id = $1`

	var total, pos, neg, neu, spam int
	var avg float64
	if err := r.pool.QueryRow(ctx, query, productID).Scan(&total, &pos, &neg, &neu, &spam, &avg); err != nil {
		return nil, fmt.Errorf("analysis statistics: %w", err)
	}
	return domain.NewAnalysisStatistics(total, pos, neg, neu, spam, avg), nil
}
