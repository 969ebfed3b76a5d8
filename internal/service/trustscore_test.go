package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/reviewtrust/trustscore/internal/domain"
	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
)

var (
	crawledAt = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	fixedNow  = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
)

func newTestTrustScoreService(t *testing.T) (*TrustScoreService, *mockTrustScoreRepository, *mockPublisher) {
	t.Helper()
	f, err := domain.LookupFormula(domain.FormulaV2)
	require.NoError(t, err)

	repo := &mockTrustScoreRepository{tx: new(mockScoreTx)}
	pub := new(mockPublisher)
	svc := NewTrustScoreService(repo, pub, f, 5*time.Second, newTestLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc, repo, pub
}

func analyzedFacts(id string, label domain.SentimentLabel, score float64, spam bool) domain.ReviewFacts {
	return domain.ReviewFacts{
		ReviewID:      id,
		Rating:        5,
		ContentLength: 80,
		Verified:      true,
		HelpfulCount:  2,
		ActivityAt:    crawledAt,
		CrawledAt:     crawledAt,
		Analysis:      &domain.AnalysisFacts{Label: label, Score: score, Confidence: 0.9, IsSpam: spam},
	}
}

func TestRecomputeTrustScore_Success(t *testing.T) {
	svc, repo, pub := newTestTrustScoreService(t)
	ctx := context.Background()

	input := domain.AggregateInput{ProductID: productA, Reviews: []domain.ReviewFacts{
		analyzedFacts("r-1", domain.SentimentPositive, 0.9, false),
		analyzedFacts("r-2", domain.SentimentNegative, 0.2, true),
		{ReviewID: "r-3", Rating: 3, CrawledAt: crawledAt, ActivityAt: crawledAt},
	}}

	repo.On("WithProductLock", mock.Anything, productA).Return(nil).Once()
	repo.tx.On("LoadAggregateInput", mock.Anything, productA).Return(input, nil)
	repo.tx.On("SetProductTrustFields", mock.Anything, productA, mock.AnythingOfType("*float64"), &fixedNow).Return(nil)
	repo.tx.On("UpsertScore", mock.Anything, mock.AnythingOfType("*domain.TrustScore")).Return(nil)
	pub.On("PublishTrustScoreUpdated", mock.Anything, mock.AnythingOfType("*domain.TrustScore")).Return(nil)

	ts, err := svc.RecomputeTrustScore(ctx, productA)

	require.NoError(t, err)
	require.NotNil(t, ts.TrustScore)
	assert.Equal(t, domain.StatusComputed, ts.Metadata.Status)
	assert.Equal(t, 3, ts.TotalReviews)
	assert.Equal(t, 2, ts.AnalyzedReviews)
	assert.Equal(t, 1, ts.SpamReviewsCount)
	assert.Equal(t, 50.0, ts.SpamPercentage)
	assert.Equal(t, fixedNow, ts.CalculatedAt)

	mirrored := repo.tx.Calls[1].Arguments.Get(2).(*float64)
	assert.Equal(t, *ts.TrustScore, *mirrored)
	pub.AssertExpectations(t)
}

func TestRecomputeTrustScore_NoReviewsPublishesNullScore(t *testing.T) {
	svc, repo, pub := newTestTrustScoreService(t)

	repo.On("WithProductLock", mock.Anything, productA).Return(nil)
	repo.tx.On("LoadAggregateInput", mock.Anything, productA).Return(domain.AggregateInput{ProductID: productA}, nil)
	repo.tx.On("SetProductTrustFields", mock.Anything, productA, (*float64)(nil), &fixedNow).Return(nil)
	repo.tx.On("UpsertScore", mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishTrustScoreUpdated", mock.Anything, mock.Anything).Return(nil)

	ts, err := svc.RecomputeTrustScore(context.Background(), productA)

	require.NoError(t, err)
	assert.Nil(t, ts.TrustScore)
	assert.Equal(t, domain.StatusNoData, ts.Metadata.Status)
	repo.tx.AssertExpectations(t)
}

func TestRecomputeTrustScore_ConflictRetriedOnce(t *testing.T) {
	svc, repo, pub := newTestTrustScoreService(t)
	conflict := fmt.Errorf("%w: could not serialize access", domain.ErrPersistenceConflict)

	repo.On("WithProductLock", mock.Anything, productA).Return(conflict).Once()
	repo.On("WithProductLock", mock.Anything, productA).Return(nil).Once()
	repo.tx.On("LoadAggregateInput", mock.Anything, productA).Return(domain.AggregateInput{ProductID: productA}, nil)
	repo.tx.On("SetProductTrustFields", mock.Anything, productA, mock.Anything, mock.Anything).Return(nil)
	repo.tx.On("UpsertScore", mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishTrustScoreUpdated", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := svc.RecomputeTrustScore(context.Background(), productA)

	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "WithProductLock", 2)
	pub.AssertExpectations(t)
}

func TestRecomputeTrustScore_PersistentConflictSurfaces(t *testing.T) {
	svc, repo, pub := newTestTrustScoreService(t)
	conflict := fmt.Errorf("%w: deadlock detected", domain.ErrPersistenceConflict)

	repo.On("WithProductLock", mock.Anything, productA).Return(conflict)
	repo.tx.On("LoadAggregateInput", mock.Anything, productA).Return(domain.AggregateInput{ProductID: productA}, nil)
	repo.tx.On("SetProductTrustFields", mock.Anything, productA, mock.Anything, mock.Anything).Return(nil)
	repo.tx.On("UpsertScore", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.RecomputeTrustScore(context.Background(), productA)

	assert.ErrorIs(t, err, domain.ErrPersistenceConflict)
	repo.AssertNumberOfCalls(t, "WithProductLock", 2)
	pub.AssertNotCalled(t, "PublishTrustScoreUpdated", mock.Anything, mock.Anything)
}

func TestRecomputeTrustScore_MissingProductWritesNothing(t *testing.T) {
	svc, repo, pub := newTestTrustScoreService(t)

	repo.On("WithProductLock", mock.Anything, productA).Return(nil)
	repo.tx.On("LoadAggregateInput", mock.Anything, productA).Return(domain.AggregateInput{ProductID: productA}, nil)
	repo.tx.On("SetProductTrustFields", mock.Anything, productA, mock.Anything, mock.Anything).
		Return(apperrors.NotFound("product", productA))

	_, err := svc.RecomputeTrustScore(context.Background(), productA)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	repo.tx.AssertNotCalled(t, "UpsertScore", mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "PublishTrustScoreUpdated", mock.Anything, mock.Anything)
}

func TestRecomputeTrustScore_InconsistentAggregateAborts(t *testing.T) {
	svc, repo, pub := newTestTrustScoreService(t)

	bad := analyzedFacts("r-1", domain.SentimentPositive, 0.9, false)
	bad.Rating = 0
	repo.On("WithProductLock", mock.Anything, productA).Return(nil)
	repo.tx.On("LoadAggregateInput", mock.Anything, productA).
		Return(domain.AggregateInput{ProductID: productA, Reviews: []domain.ReviewFacts{bad}}, nil)

	_, err := svc.RecomputeTrustScore(context.Background(), productA)

	assert.ErrorIs(t, err, domain.ErrInconsistentAggregate)
	repo.AssertNumberOfCalls(t, "WithProductLock", 1)
	repo.tx.AssertNotCalled(t, "SetProductTrustFields", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "PublishTrustScoreUpdated", mock.Anything, mock.Anything)
}

func TestRecomputeTrustScore_PublishFailureIsLoggedOnly(t *testing.T) {
	svc, repo, pub := newTestTrustScoreService(t)

	repo.On("WithProductLock", mock.Anything, productA).Return(nil)
	repo.tx.On("LoadAggregateInput", mock.Anything, productA).Return(domain.AggregateInput{ProductID: productA}, nil)
	repo.tx.On("SetProductTrustFields", mock.Anything, productA, mock.Anything, mock.Anything).Return(nil)
	repo.tx.On("UpsertScore", mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishTrustScoreUpdated", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	ts, err := svc.RecomputeTrustScore(context.Background(), productA)

	require.NoError(t, err)
	assert.NotNil(t, ts)
}

func TestRecomputeTrustScore_IsIdempotent(t *testing.T) {
	svc, repo, pub := newTestTrustScoreService(t)
	input := domain.AggregateInput{ProductID: productA, Reviews: []domain.ReviewFacts{
		analyzedFacts("r-1", domain.SentimentPositive, 0.9, false),
		analyzedFacts("r-2", domain.SentimentNeutral, 0.5, false),
	}}

	repo.On("WithProductLock", mock.Anything, productA).Return(nil)
	repo.tx.On("LoadAggregateInput", mock.Anything, productA).Return(input, nil)
	repo.tx.On("SetProductTrustFields", mock.Anything, productA, mock.Anything, mock.Anything).Return(nil)
	repo.tx.On("UpsertScore", mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishTrustScoreUpdated", mock.Anything, mock.Anything).Return(nil)

	first, err := svc.RecomputeTrustScore(context.Background(), productA)
	require.NoError(t, err)
	second, err := svc.RecomputeTrustScore(context.Background(), productA)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRecomputeTrustScore_InvalidProductID(t *testing.T) {
	svc, repo, _ := newTestTrustScoreService(t)

	_, err := svc.RecomputeTrustScore(context.Background(), "not-a-uuid")

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	repo.AssertNotCalled(t, "WithProductLock", mock.Anything, mock.Anything)
}

func TestDeleteTrustScore(t *testing.T) {
	svc, repo, _ := newTestTrustScoreService(t)

	repo.On("WithProductLock", mock.Anything, productA).Return(nil)
	repo.tx.On("DeleteScore", mock.Anything, productA).Return(nil)
	repo.tx.On("SetProductTrustFields", mock.Anything, productA, (*float64)(nil), (*time.Time)(nil)).Return(nil)

	require.NoError(t, svc.DeleteTrustScore(context.Background(), productA))
	repo.tx.AssertExpectations(t)
}

func TestDeleteTrustScore_NotFound(t *testing.T) {
	svc, repo, _ := newTestTrustScoreService(t)

	repo.On("WithProductLock", mock.Anything, productA).Return(nil)
	repo.tx.On("DeleteScore", mock.Anything, productA).Return(apperrors.NotFound("trust score", productA))

	err := svc.DeleteTrustScore(context.Background(), productA)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	repo.tx.AssertNotCalled(t, "SetProductTrustFields", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBreakdown(t *testing.T) {
	svc, repo, _ := newTestTrustScoreService(t)
	f := svc.Formula()

	ts, err := domain.ComputeTrustScore(domain.AggregateInput{ProductID: productA, Reviews: []domain.ReviewFacts{
		analyzedFacts("r-1", domain.SentimentPositive, 0.9, false),
	}}, f, fixedNow)
	require.NoError(t, err)
	repo.On("GetByProductID", mock.Anything, productA).Return(ts, nil)

	b, err := svc.Breakdown(context.Background(), productA)

	require.NoError(t, err)
	assert.Equal(t, ts.TrustScore, b.TrustScore)
	assert.Contains(t, b.Components, domain.ComponentSpam)
	assert.Contains(t, b.Components, domain.ComponentSentiment)
}

func TestListTop(t *testing.T) {
	svc, repo, _ := newTestTrustScoreService(t)
	repo.On("ListTop", mock.Anything, DefaultTopLimit, 5).Return([]domain.TrustScore{{ProductID: productA}}, nil)

	scores, err := svc.ListTop(context.Background(), 0, 5)

	require.NoError(t, err)
	assert.Len(t, scores, 1)

	_, err = svc.ListTop(context.Background(), MaxTopLimit+1, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = svc.ListTop(context.Background(), 10, -1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestListByRange(t *testing.T) {
	svc, repo, _ := newTestTrustScoreService(t)
	repo.On("ListByRange", mock.Anything, 60.0, 90.0, 2, 20).Return([]domain.TrustScore{}, 25, nil)

	_, total, err := svc.ListByRange(context.Background(), 60, 90, 2, 20)
	require.NoError(t, err)
	assert.Equal(t, 25, total)

	for _, r := range [][2]float64{{-1, 50}, {10, 101}, {80, 20}} {
		_, _, err := svc.ListByRange(context.Background(), r[0], r[1], 1, 20)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "range %v", r)
	}
}
