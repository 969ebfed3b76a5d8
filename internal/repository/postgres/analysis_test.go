package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewtrust/trustscore/internal/domain"
)

func sampleAnalysis() *domain.ReviewAnalysis {
	return &domain.ReviewAnalysis{
		ReviewID:              "rev-1",
		SentimentLabel:        domain.SentimentNegative,
		SentimentScore:        0.12,
		SentimentConfidence:   0.88,
		IsSpam:                true,
		SpamScore:             0.91,
		SpamConfidence:        0.82,
		SentimentModelVersion: "sentiment-v1",
		SpamModelVersion:      "spam-v1",
		AnalyzedAt:            time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC),
		Metadata:              map[string]any{"processing_time_ms": int64(12)},
	}
}

func TestAnalysisRepository_Upsert(t *testing.T) {
	mock := setupMock(t)
	repo := NewAnalysisRepository(mock)
	a := sampleAnalysis()

	mock.ExpectQuery(`INSERT INTO review_analyses .+ ON CONFLICT \(review_id\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "rev-1", "negative", 0.12, 0.88, true, 0.91, 0.82,
			"sentiment-v1", "spam-v1", a.AnalyzedAt, []byte(`{"processing_time_ms":12}`)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("stored-id"))

	err := repo.Upsert(context.Background(), a)

	require.NoError(t, err)
	assert.Equal(t, "stored-id", a.ID, "re-analysis keeps the existing row id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisRepository_Upsert_ReviewGone(t *testing.T) {
	mock := setupMock(t)
	repo := NewAnalysisRepository(mock)

	mock.ExpectQuery("INSERT INTO review_analyses").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := repo.Upsert(context.Background(), sampleAnalysis())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer exists")
}

func TestAnalysisRepository_Statistics(t *testing.T) {
	mock := setupMock(t)
	repo := NewAnalysisRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM review_analyses a JOIN product_reviews r").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows([]string{"total", "pos", "neg", "neu", "spam", "avg"}).
			AddRow(7, 4, 2, 1, 2, 0.654321))

	stats, err := repo.Statistics(context.Background(), "prod-1")

	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalAnalyzed)
	assert.Equal(t, 28.57, stats.SpamPercentage)
	assert.Equal(t, 0.6543, stats.AverageSentimentScore)
	assert.Equal(t, 4, stats.SentimentCounts[domain.SentimentPositive])
	assert.NoError(t, mock.ExpectationsWereMet())
}
