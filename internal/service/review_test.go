package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/reviewtrust/trustscore/internal/domain"
	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
)

func newTestReviewService() (*ReviewService, *mockReviewRepository, *mockAnalysisRepository, *mockPendingStore) {
	reviews := new(mockReviewRepository)
	analyses := new(mockAnalysisRepository)
	pending := new(mockPendingStore)
	return NewReviewService(reviews, analyses, pending, newTestLogger()), reviews, analyses, pending
}

func crawled(productID string, rating int) domain.Review {
	content := "Giao hàng nhanh"
	return domain.Review{
		ProductID: productID,
		Rating:    rating,
		Content:   &content,
		Platform:  domain.PlatformShopee,
		CrawledAt: crawledAt,
	}
}

func TestIngestReviews_Success(t *testing.T) {
	svc, reviews, _, pending := newTestReviewService()
	batch := []domain.Review{crawled(productA, 5), crawled(productA, 2)}

	reviews.On("BulkInsert", mock.Anything, batch).Return(2, nil)
	pending.On("Mark", mock.Anything, []string{productA}).Return(nil)

	n, err := svc.IngestReviews(context.Background(), productA, batch)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	pending.AssertExpectations(t)
}

func TestIngestReviews_RedeliveryStillMarks(t *testing.T) {
	svc, reviews, _, pending := newTestReviewService()
	batch := []domain.Review{crawled(productA, 4)}

	reviews.On("BulkInsert", mock.Anything, batch).Return(0, nil)
	pending.On("Mark", mock.Anything, []string{productA}).Return(nil)

	n, err := svc.IngestReviews(context.Background(), productA, batch)

	require.NoError(t, err)
	assert.Zero(t, n)
	pending.AssertCalled(t, "Mark", mock.Anything, []string{productA})
}

func TestIngestReviews_Validation(t *testing.T) {
	negative := crawled(productA, 3)
	negative.HelpfulCount = -1

	tests := []struct {
		name      string
		productID string
		batch     []domain.Review
	}{
		{"invalid product id", "abc", []domain.Review{crawled("abc", 5)}},
		{"foreign product", productA, []domain.Review{crawled(productB, 5)}},
		{"rating too low", productA, []domain.Review{crawled(productA, 0)}},
		{"rating too high", productA, []domain.Review{crawled(productA, 6)}},
		{"negative helpful count", productA, []domain.Review{negative}},
		{"batch too large", productA, make([]domain.Review, MaxIngestBatch+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, reviews, _, pending := newTestReviewService()

			_, err := svc.IngestReviews(context.Background(), tt.productID, tt.batch)

			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			reviews.AssertNotCalled(t, "BulkInsert", mock.Anything, mock.Anything)
			pending.AssertNotCalled(t, "Mark", mock.Anything, mock.Anything)
		})
	}
}

func TestIngestReviews_EmptyBatch(t *testing.T) {
	svc, reviews, _, _ := newTestReviewService()

	n, err := svc.IngestReviews(context.Background(), productA, nil)

	require.NoError(t, err)
	assert.Zero(t, n)
	reviews.AssertNotCalled(t, "BulkInsert", mock.Anything, mock.Anything)
}

func TestIngestReviews_UnknownProduct(t *testing.T) {
	svc, reviews, _, pending := newTestReviewService()
	reviews.On("BulkInsert", mock.Anything, mock.Anything).
		Return(0, &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"})

	_, err := svc.IngestReviews(context.Background(), productA, []domain.Review{crawled(productA, 5)})

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	pending.AssertNotCalled(t, "Mark", mock.Anything, mock.Anything)
}

func TestIngestReviews_MarkFailure(t *testing.T) {
	svc, reviews, _, pending := newTestReviewService()
	reviews.On("BulkInsert", mock.Anything, mock.Anything).Return(1, nil)
	pending.On("Mark", mock.Anything, mock.Anything).Return(errors.New("redis: connection refused"))

	n, err := svc.IngestReviews(context.Background(), productA, []domain.Review{crawled(productA, 5)})

	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestReviewStatistics(t *testing.T) {
	svc, reviews, analyses, _ := newTestReviewService()
	rs := &domain.ReviewStatistics{TotalReviews: 4, RatingDistribution: domain.NewRatingDistribution()}
	as := domain.NewAnalysisStatistics(3, 2, 1, 0, 1, 0.66)
	reviews.On("Statistics", mock.Anything, productA).Return(rs, nil)
	analyses.On("Statistics", mock.Anything, productA).Return(as, nil)

	stats, err := svc.Statistics(context.Background(), productA)

	require.NoError(t, err)
	assert.Equal(t, productA, stats.ProductID)
	assert.Same(t, rs, stats.Reviews)
	assert.Equal(t, 33.33, stats.Analyses.SpamPercentage)
}
