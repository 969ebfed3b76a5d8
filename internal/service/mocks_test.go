package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/reviewtrust/trustscore/internal/classifier"
	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/internal/llm"
	"github.com/reviewtrust/trustscore/internal/repository"
)

const (
	productA = "0f8fad5b-d9cb-469f-a165-70867728950e"
	productB = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Mock ReviewRepository ---

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) ListPending(ctx context.Context, filter repository.PendingFilter) ([]domain.PendingReview, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PendingReview), args.Error(1)
}

func (m *mockReviewRepository) BulkInsert(ctx context.Context, reviews []domain.Review) (int, error) {
	args := m.Called(ctx, reviews)
	return args.Int(0), args.Error(1)
}

func (m *mockReviewRepository) Statistics(ctx context.Context, productID string) (*domain.ReviewStatistics, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReviewStatistics), args.Error(1)
}

func (m *mockReviewRepository) ListSamples(ctx context.Context, productID string, limit int) ([]domain.SampleReview, error) {
	args := m.Called(ctx, productID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SampleReview), args.Error(1)
}

// --- Mock AnalysisRepository ---

type mockAnalysisRepository struct {
	mock.Mock
}

func (m *mockAnalysisRepository) Upsert(ctx context.Context, analysis *domain.ReviewAnalysis) error {
	args := m.Called(ctx, analysis)
	return args.Error(0)
}

func (m *mockAnalysisRepository) Statistics(ctx context.Context, productID string) (*domain.AnalysisStatistics, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisStatistics), args.Error(1)
}

// --- Mock PendingStore ---

type mockPendingStore struct {
	mock.Mock
}

func (m *mockPendingStore) Mark(ctx context.Context, productIDs ...string) error {
	args := m.Called(ctx, productIDs)
	return args.Error(0)
}

func (m *mockPendingStore) Drain(ctx context.Context, n int) ([]string, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockPendingStore) Len(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Classifier ---

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, req classifier.Request) (*domain.Classification, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Classification), args.Error(1)
}

// --- Mock TrustScoreRepository ---

// mockTrustScoreRepository runs fn against tx. The error registered for
// WithProductLock is returned as the commit result when fn succeeds.
type mockTrustScoreRepository struct {
	mock.Mock
	tx *mockScoreTx
}

func (m *mockTrustScoreRepository) WithProductLock(ctx context.Context, productID string, fn func(tx repository.ScoreTx) error) error {
	args := m.Called(ctx, productID)
	if err := fn(m.tx); err != nil {
		return err
	}
	return args.Error(0)
}

func (m *mockTrustScoreRepository) GetByProductID(ctx context.Context, productID string) (*domain.TrustScore, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrustScore), args.Error(1)
}

func (m *mockTrustScoreRepository) ListTop(ctx context.Context, limit, minReviews int) ([]domain.TrustScore, error) {
	args := m.Called(ctx, limit, minReviews)
	return args.Get(0).([]domain.TrustScore), args.Error(1)
}

func (m *mockTrustScoreRepository) ListByRange(ctx context.Context, lo, hi float64, page, perPage int) ([]domain.TrustScore, int, error) {
	args := m.Called(ctx, lo, hi, page, perPage)
	return args.Get(0).([]domain.TrustScore), args.Int(1), args.Error(2)
}

type mockScoreTx struct {
	mock.Mock
}

func (m *mockScoreTx) LoadAggregateInput(ctx context.Context, productID string) (domain.AggregateInput, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(domain.AggregateInput), args.Error(1)
}

func (m *mockScoreTx) UpsertScore(ctx context.Context, score *domain.TrustScore) error {
	args := m.Called(ctx, score)
	return args.Error(0)
}

func (m *mockScoreTx) DeleteScore(ctx context.Context, productID string) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

func (m *mockScoreTx) SetProductTrustFields(ctx context.Context, productID string, score *float64, calculatedAt *time.Time) error {
	args := m.Called(ctx, productID, score, calculatedAt)
	return args.Error(0)
}

// --- Mock AnalyticsRepository ---

type mockAnalyticsRepository struct {
	mock.Mock
}

func (m *mockAnalyticsRepository) GetByProductID(ctx context.Context, productID string) (*domain.ProductAnalytics, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProductAnalytics), args.Error(1)
}

func (m *mockAnalyticsRepository) Upsert(ctx context.Context, analytics *domain.ProductAnalytics) error {
	args := m.Called(ctx, analytics)
	return args.Error(0)
}

// --- Mock ProductRepository ---

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) GetSummary(ctx context.Context, productID string) (*domain.ProductSummary, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProductSummary), args.Error(1)
}

// --- Mock llm.Provider ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Complete(ctx context.Context, system, prompt string) (*llm.Completion, error) {
	args := m.Called(ctx, system, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Completion), args.Error(1)
}

func (m *mockProvider) Name() string { return "mock" }

// --- Mock ScorePublisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishTrustScoreUpdated(ctx context.Context, ts *domain.TrustScore) error {
	args := m.Called(ctx, ts)
	return args.Error(0)
}

// --- Mock BatchProcessor / Recomputer ---

type mockRecomputer struct {
	mock.Mock
}

func (m *mockRecomputer) RecomputeTrustScore(ctx context.Context, productID string) (*domain.TrustScore, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrustScore), args.Error(1)
}
