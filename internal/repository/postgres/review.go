package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/internal/repository"
	"github.com/reviewtrust/trustscore/pkg/database"
)

// hasContent matches reviews whose content holds at least one non-space
// character. Blank reviews count towards totals but are never classified.
const hasContent = `r.content ~ '\S'`

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

const listPendingSQL = `
		SELECT r.id, r.product_id, r.content, r.rating, r.platform, r.is_verified_purchase
		FROM product_reviews r
		LEFT JOIN review_analyses a ON a.review_id = r.id
		WHERE ` + hasContent + `
		  AND ($1::uuid IS NULL OR r.product_id = $1)
		  AND (a.id IS NULL
		       OR ($2 <> '' AND (a.sentiment_model_version COLLATE model_version < $2
		                         OR a.spam_model_version COLLATE model_version < $2)))
		ORDER BY r.crawled_at ASC, r.id ASC
		LIMIT $3`

// ListPending returns reviews with classifiable content that lack an
// analysis or carry one from a model older than filter.MinModelVersion.
func (r *ReviewRepository) ListPending(ctx context.Context, filter repository.PendingFilter) (_ []domain.PendingReview, err error) {
	ctx, end := database.TraceQuery(ctx, "ListPendingReviews", listPendingSQL)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, listPendingSQL, filter.ProductID, filter.MinModelVersion, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	defer rows.Close()

	pending := []domain.PendingReview{}
	for rows.Next() {
		var p domain.PendingReview
		if err := rows.Scan(&p.ReviewID, &p.ProductID, &p.Content, &p.Rating, &p.Platform, &p.Verified); err != nil {
			return nil, fmt.Errorf("scan pending review: %w", err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending reviews: %w", err)
	}
	return pending, nil
}

// BulkInsert stores crawled reviews in one transaction. Reviews without an
// id get a fresh one; existing ids are left untouched.
func (r *ReviewRepository) BulkInsert(ctx context.Context, reviews []domain.Review) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO product_reviews (
			id, product_id, crawl_session_id, reviewer_name, reviewer_id, rating, content,
			review_date, platform, source_url, is_verified_purchase, helpful_count,
			images, raw_data, crawled_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING`

	inserted := 0
	for i := range reviews {
		rv := &reviews[i]
		if rv.ID == "" {
			rv.ID = uuid.New().String()
		}
		images := rv.Images
		if images == nil {
			images = []string{}
		}
		imagesJSON, err := json.Marshal(images)
		if err != nil {
			return 0, fmt.Errorf("marshal review images: %w", err)
		}
		var raw []byte
		if len(rv.RawData) > 0 {
			raw = rv.RawData
		}

		tag, err := tx.Exec(ctx, query,
			rv.ID,
			rv.ProductID,
			rv.CrawlSessionID,
			rv.ReviewerName,
			rv.ReviewerID,
			rv.Rating,
			rv.Content,
			rv.ReviewDate,
			domain.NormalizePlatform(rv.Platform),
			rv.SourceURL,
			rv.IsVerifiedPurchase,
			rv.HelpfulCount,
			imagesJSON,
			raw,
			rv.CrawledAt,
		)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return 0, fmt.Errorf("insert review %s: unknown product %s: %w", rv.ID, rv.ProductID, err)
			}
			return 0, fmt.Errorf("insert review %s: %w", rv.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}

// Statistics summarizes the raw reviews of a product.
func (r *ReviewRepository) Statistics(ctx context.Context, productID string) (*domain.ReviewStatistics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_verified_purchase),
			COALESCE(AVG(rating), 0)::float8,
			COUNT(*) FILTER (WHERE rating = 1),
			COUNT(*) FILTER (WHERE rating = 2),
			COUNT(*) FILTER (WHERE rating = 3),
			COUNT(*) FILTER (WHERE rating = 4),
			COUNT(*) FILTER (WHERE rating = 5)
		FROM product_reviews
		WHERE product_id = $1`

	stats := &domain.ReviewStatistics{RatingDistribution: domain.NewRatingDistribution()}
	var avg float64
	var stars [domain.MaxRating]int
	err := r.pool.QueryRow(ctx, query, productID).Scan(
		&stats.TotalReviews,
		&stats.VerifiedPurchases,
		&avg,
		&stars[0], &stars[1], &stars[2], &stars[3], &stars[4],
	)
	if err != nil {
		return nil, fmt.Errorf("review statistics: %w", err)
	}

	stats.AverageRating = domain.Round(avg, 2)
	for i, n := range stars {
		stats.RatingDistribution[i+domain.MinRating] = n
	}
	return stats, nil
}

// ListSamples returns up to limit recently crawled, analyzed reviews with
// content. Content is returned in full; callers truncate.
func (r *ReviewRepository) ListSamples(ctx context.Context, productID string, limit int) ([]domain.SampleReview, error) {
	query := `
		SELECT r.rating, r.content, a.sentiment_label, a.sentiment_score::float8, a.is_spam, r.is_verified_purchase
		FROM product_reviews r
		JOIN review_analyses a ON a.review_id = r.id
		WHERE r.product_id = $1 AND ` + hasContent + `
		ORDER BY r.crawled_at DESC, r.id ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sample reviews: %w", err)
	}
	defer rows.Close()

	samples := []domain.SampleReview{}
	for rows.Next() {
		var s domain.SampleReview
		if err := rows.Scan(&s.Rating, &s.Content, &s.Sentiment, &s.SentimentScore, &s.IsSpam, &s.VerifiedPurchase); err != nil {
			return nil, fmt.Errorf("scan sample review: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample reviews: %w", err)
	}
	return samples, nil
}
