package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/internal/repository"
	"github.com/reviewtrust/trustscore/pkg/database"
	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
)

// TrustScoreRepository implements repository.TrustScoreRepository using
// PostgreSQL. It is the only writer of product_trust_scores and of the
// trust fields on products.
type TrustScoreRepository struct {
	pool database.DBTX
}

// NewTrustScoreRepository creates a new PostgreSQL-backed trust score repository.
func NewTrustScoreRepository(pool database.DBTX) *TrustScoreRepository {
	return &TrustScoreRepository{pool: pool}
}

const advisoryLockSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

// WithProductLock runs fn in a transaction that holds the product's
// transaction-scoped advisory lock, so recomputes of one product serialize
// across processes. The transaction is READ COMMITTED: a snapshot taken
// before the lock is granted would miss the previous holder's commit. Write
// conflicts are reported as domain.ErrPersistenceConflict.
func (r *TrustScoreRepository) WithProductLock(ctx context.Context, productID string, fn func(tx repository.ScoreTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, advisoryLockSQL, productID); err != nil {
		return conflictOr(fmt.Errorf("lock product %s: %w", productID, err))
	}

	if err := fn(&scoreTx{tx: tx}); err != nil {
		return conflictOr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return conflictOr(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func conflictOr(err error) error {
	if database.IsWriteConflict(err) {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceConflict, err)
	}
	return err
}

// scoreTx implements repository.ScoreTx on an open transaction.
type scoreTx struct {
	tx pgx.Tx
}

const loadAggregateSQL = `
		SELECT r.id, r.rating, r.content, r.is_verified_purchase, r.helpful_count,
		       r.review_date, r.crawled_at,
		       a.sentiment_label, a.sentiment_score::float8, a.sentiment_confidence::float8, a.is_spam
		FROM product_reviews r
		LEFT JOIN review_analyses a ON a.review_id = r.id
		WHERE r.product_id = $1
		ORDER BY r.id`

// LoadAggregateInput reads every review of the product with its analysis.
func (s *scoreTx) LoadAggregateInput(ctx context.Context, productID string) (_ domain.AggregateInput, err error) {
	ctx, end := database.TraceQuery(ctx, "LoadAggregateInput", loadAggregateSQL)
	defer func() { end(err) }()

	rows, err := s.tx.Query(ctx, loadAggregateSQL, productID)
	if err != nil {
		return domain.AggregateInput{}, fmt.Errorf("load aggregate input: %w", err)
	}
	defer rows.Close()

	in := domain.AggregateInput{ProductID: productID}
	for rows.Next() {
		var (
			rv         domain.Review
			label      *string
			score      *float64
			confidence *float64
			isSpam     *bool
		)
		if err := rows.Scan(
			&rv.ID, &rv.Rating, &rv.Content, &rv.IsVerifiedPurchase, &rv.HelpfulCount,
			&rv.ReviewDate, &rv.CrawledAt,
			&label, &score, &confidence, &isSpam,
		); err != nil {
			return domain.AggregateInput{}, fmt.Errorf("scan aggregate row: %w", err)
		}

		facts := domain.ReviewFacts{
			ReviewID:      rv.ID,
			Rating:        rv.Rating,
			ContentLength: rv.ContentLength(),
			Verified:      rv.IsVerifiedPurchase,
			HelpfulCount:  rv.HelpfulCount,
			ActivityAt:    rv.ActivityAt(),
			CrawledAt:     rv.CrawledAt,
		}
		if label != nil {
			facts.Analysis = &domain.AnalysisFacts{
				Label:      domain.SentimentLabel(*label),
				Score:      deref(score),
				Confidence: deref(confidence),
				IsSpam:     isSpam != nil && *isSpam,
			}
		}
		in.Reviews = append(in.Reviews, facts)
	}
	if err := rows.Err(); err != nil {
		return domain.AggregateInput{}, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return in, nil
}

const upsertScoreSQL = `
		INSERT INTO product_trust_scores (
			id, product_id, trust_score, total_reviews, analyzed_reviews, verified_reviews_count,
			spam_reviews_count, spam_percentage, positive_reviews_count, negative_reviews_count,
			neutral_reviews_count, average_sentiment_score, review_quality_score, engagement_score,
			calculated_at, calculation_metadata, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		ON CONFLICT (product_id) DO UPDATE SET
			trust_score = EXCLUDED.trust_score,
			total_reviews = EXCLUDED.total_reviews,
			analyzed_reviews = EXCLUDED.analyzed_reviews,
			verified_reviews_count = EXCLUDED.verified_reviews_count,
			spam_reviews_count = EXCLUDED.spam_reviews_count,
			spam_percentage = EXCLUDED.spam_percentage,
			positive_reviews_count = EXCLUDED.positive_reviews_count,
			negative_reviews_count = EXCLUDED.negative_reviews_count,
			neutral_reviews_count = EXCLUDED.neutral_reviews_count,
			average_sentiment_score = EXCLUDED.average_sentiment_score,
			review_quality_score = EXCLUDED.review_quality_score,
			engagement_score = EXCLUDED.engagement_score,
			calculated_at = EXCLUDED.calculated_at,
			calculation_metadata = EXCLUDED.calculation_metadata,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

// UpsertScore replaces the product's trust score row and fills in the
// stored id and timestamps.
func (s *scoreTx) UpsertScore(ctx context.Context, ts *domain.TrustScore) (err error) {
	ctx, end := database.TraceQuery(ctx, "UpsertTrustScore", upsertScoreSQL)
	defer func() { end(err) }()

	if ts.ID == "" {
		ts.ID = uuid.New().String()
	}
	meta, err := json.Marshal(ts.Metadata)
	if err != nil {
		return fmt.Errorf("marshal calculation metadata: %w", err)
	}

	err = s.tx.QueryRow(ctx, upsertScoreSQL,
		ts.ID,
		ts.ProductID,
		ts.TrustScore,
		ts.TotalReviews,
		ts.AnalyzedReviews,
		ts.VerifiedReviewsCount,
		ts.SpamReviewsCount,
		ts.SpamPercentage,
		ts.PositiveReviewsCount,
		ts.NegativeReviewsCount,
		ts.NeutralReviewsCount,
		ts.AverageSentimentScore,
		ts.ReviewQualityScore,
		ts.EngagementScore,
		ts.CalculatedAt,
		meta,
	).Scan(&ts.ID, &ts.CreatedAt, &ts.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert trust score: %w", err)
	}
	return nil
}

// DeleteScore removes the product's trust score row.
func (s *scoreTx) DeleteScore(ctx context.Context, productID string) error {
	tag, err := s.tx.Exec(ctx, `DELETE FROM product_trust_scores WHERE product_id = $1`, productID)
	if err != nil {
		return fmt.Errorf("delete trust score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("trust score", productID)
	}
	return nil
}

// SetProductTrustFields mirrors the score onto the product record.
func (s *scoreTx) SetProductTrustFields(ctx context.Context, productID string, score *float64, calculatedAt *time.Time) error {
	query := `
		UPDATE products
		SET trust_score = $2, trust_score_calculated_at = $3
		WHERE id = $1`

	tag, err := s.tx.Exec(ctx, query, productID, score, calculatedAt)
	if err != nil {
		return fmt.Errorf("update product trust fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("product", productID)
	}
	return nil
}

const scoreColumns = `
		id, product_id, trust_score::float8, total_reviews, analyzed_reviews, verified_reviews_count,
		spam_reviews_count, spam_percentage::float8, positive_reviews_count, negative_reviews_count,
		neutral_reviews_count, average_sentiment_score::float8, review_quality_score::float8,
		engagement_score::float8, calculated_at, calculation_metadata, created_at, updated_at`

// GetByProductID retrieves the stored trust score of a product.
func (r *TrustScoreRepository) GetByProductID(ctx context.Context, productID string) (*domain.TrustScore, error) {
	query := `SELECT ` + scoreColumns + ` FROM product_trust_scores WHERE product_id = $1`

	ts, err := scanScore(r.pool.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("trust score", productID)
		}
		return nil, fmt.Errorf("get trust score: %w", err)
	}
	return ts, nil
}

// ListTop returns the highest computed scores among products with at least
// minReviews reviews.
func (r *TrustScoreRepository) ListTop(ctx context.Context, limit, minReviews int) ([]domain.TrustScore, error) {
	query := `SELECT ` + scoreColumns + `
		FROM product_trust_scores
		WHERE trust_score IS NOT NULL AND total_reviews >= $1
		ORDER BY trust_score DESC, product_id ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, minReviews, limit)
	if err != nil {
		return nil, fmt.Errorf("list top trust scores: %w", err)
	}
	scores, _, err := collectScores(rows, false)
	if err != nil {
		return nil, fmt.Errorf("list top trust scores: %w", err)
	}
	return scores, nil
}

// ListByRange returns computed scores within [lo, hi], highest first, with
// the total number of matches.
func (r *TrustScoreRepository) ListByRange(ctx context.Context, lo, hi float64, page, perPage int) ([]domain.TrustScore, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	query := `SELECT ` + scoreColumns + `, count(*) OVER() AS total_count
		FROM product_trust_scores
		WHERE trust_score BETWEEN $1 AND $2
		ORDER BY trust_score DESC, product_id ASC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, lo, hi, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list trust scores by range: %w", err)
	}
	scores, total, err := collectScores(rows, true)
	if err != nil {
		return nil, 0, fmt.Errorf("list trust scores by range: %w", err)
	}
	return scores, total, nil
}

func scanScore(row pgx.Row, extra ...any) (*domain.TrustScore, error) {
	var ts domain.TrustScore
	var meta []byte
	dest := []any{
		&ts.ID, &ts.ProductID, &ts.TrustScore, &ts.TotalReviews, &ts.AnalyzedReviews,
		&ts.VerifiedReviewsCount, &ts.SpamReviewsCount, &ts.SpamPercentage,
		&ts.PositiveReviewsCount, &ts.NegativeReviewsCount, &ts.NeutralReviewsCount,
		&ts.AverageSentimentScore, &ts.ReviewQualityScore, &ts.EngagementScore,
		&ts.CalculatedAt, &meta, &ts.CreatedAt, &ts.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &ts.Metadata); err != nil {
			return nil, fmt.Errorf("decode calculation metadata: %w", err)
		}
	}
	return &ts, nil
}

func collectScores(rows pgx.Rows, withTotal bool) ([]domain.TrustScore, int, error) {
	defer rows.Close()

	scores := []domain.TrustScore{}
	total := 0
	for rows.Next() {
		var extra []any
		if withTotal {
			extra = append(extra, &total)
		}
		ts, err := scanScore(rows, extra...)
		if err != nil {
			return nil, 0, fmt.Errorf("scan trust score: %w", err)
		}
		scores = append(scores, *ts)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate trust scores: %w", err)
	}
	return scores, total, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
