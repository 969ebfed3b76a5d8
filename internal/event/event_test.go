package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/reviewtrust/trustscore/internal/domain"
	pkgkafka "github.com/reviewtrust/trustscore/pkg/kafka"
)

const productID = "0f8fad5b-d9cb-469f-a165-70867728950e"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

type mockIngester struct {
	mock.Mock
}

func (m *mockIngester) IngestReviews(ctx context.Context, productID string, reviews []domain.Review) (int, error) {
	args := m.Called(ctx, productID, reviews)
	return args.Int(0), args.Error(1)
}

// --- Producer ---

func TestPublishTrustScoreUpdated(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, newTestLogger())

	score := 81.25
	ts := &domain.TrustScore{
		ProductID:       productID,
		TrustScore:      &score,
		TotalReviews:    20,
		AnalyzedReviews: 18,
		SpamPercentage:  5.56,
		CalculatedAt:    time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Metadata:        domain.CalculationMetadata{FormulaVersion: "2.0", Status: domain.StatusComputed},
	}

	var published *pkgkafka.Event
	pub.On("Publish", mock.Anything, TopicTrustScoreUpdated, mock.AnythingOfType("*kafka.Event")).
		Run(func(args mock.Arguments) { published = args.Get(2).(*pkgkafka.Event) }).
		Return(nil)

	require.NoError(t, p.PublishTrustScoreUpdated(context.Background(), ts))
	require.NotNil(t, published)
	assert.Equal(t, productID, published.AggregateID)
	assert.Equal(t, AggregateTypeTrustScore, published.AggregateType)

	var data TrustScoreUpdatedData
	require.NoError(t, published.UnmarshalData(&data))
	assert.Equal(t, 81.25, *data.TrustScore)
	assert.Equal(t, domain.StatusComputed, data.Status)
	assert.Equal(t, 18, data.AnalyzedReviews)
}

func TestPublishTrustScoreUpdated_PublishError(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, newTestLogger())
	pub.On("Publish", mock.Anything, TopicTrustScoreUpdated, mock.Anything).Return(errors.New("broker down"))

	err := p.PublishTrustScoreUpdated(context.Background(), &domain.TrustScore{ProductID: productID})

	assert.ErrorContains(t, err, "broker down")
}

// --- Consumer ---

func crawledEvent(t *testing.T, data any) *pkgkafka.Event {
	t.Helper()
	ev, err := pkgkafka.NewEvent(TopicReviewCrawled, productID, "product", "crawler", data)
	require.NoError(t, err)
	return ev
}

func TestHandleReviewCrawled(t *testing.T) {
	ing := new(mockIngester)
	c := NewConsumer(ing, newTestLogger())
	content := "Đóng gói cẩn thận"

	ev := crawledEvent(t, ReviewCrawledData{
		ProductID: productID,
		Platform:  "Tiki",
		Reviews: []domain.CrawledReview{
			{ReviewerName: "An", Rating: 5, Content: &content},
			{ReviewerName: "Binh", Rating: 2.5},
		},
	})

	ing.On("IngestReviews", mock.Anything, productID, mock.MatchedBy(func(rs []domain.Review) bool {
		return len(rs) == 2 && rs[0].Platform == "tiki" && rs[1].Rating == 2 && rs[0].CrawledAt.Equal(ev.Timestamp)
	})).Return(1, nil)

	require.NoError(t, c.HandleReviewCrawled(context.Background(), ev))
	ing.AssertExpectations(t)
}

func TestHandleReviewCrawled_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data any
	}{
		{"bad product id", ReviewCrawledData{ProductID: "nope", Reviews: []domain.CrawledReview{{Rating: 5}}}},
		{"no reviews", ReviewCrawledData{ProductID: productID}},
		{"negative helpful count", ReviewCrawledData{ProductID: productID, Reviews: []domain.CrawledReview{{Rating: 5, HelpfulCount: -1}}}},
		{"wrong shape", map[string]any{"product_id": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := new(mockIngester)
			c := NewConsumer(ing, newTestLogger())

			err := c.HandleReviewCrawled(context.Background(), crawledEvent(t, tt.data))

			assert.Error(t, err)
			ing.AssertNotCalled(t, "IngestReviews", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandleReviewCrawled_IngestError(t *testing.T) {
	ing := new(mockIngester)
	c := NewConsumer(ing, newTestLogger())
	ing.On("IngestReviews", mock.Anything, productID, mock.Anything).Return(0, errors.New("db down"))

	raw, err := json.Marshal(ReviewCrawledData{ProductID: productID, Reviews: []domain.CrawledReview{{Rating: 4}}})
	require.NoError(t, err)
	ev := &pkgkafka.Event{EventID: "e-1", EventType: TopicReviewCrawled, AggregateID: productID, Data: raw}

	assert.ErrorContains(t, c.HandleReviewCrawled(context.Background(), ev), "db down")
}
