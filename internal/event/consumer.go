package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reviewtrust/trustscore/internal/domain"
	pkgkafka "github.com/reviewtrust/trustscore/pkg/kafka"
	"github.com/reviewtrust/trustscore/pkg/validator"
)

// Kafka topics consumed by the trust score service.
const (
	TopicReviewCrawled = "reviewtrust.review.crawled"
)

// ReviewIngester defines the interface required by the event consumer.
type ReviewIngester interface {
	IngestReviews(ctx context.Context, productID string, reviews []domain.Review) (int, error)
}

// ReviewCrawledData is the expected payload of a review.crawled event.
type ReviewCrawledData struct {
	ProductID      string                 `json:"product_id" validate:"required,uuid"`
	CrawlSessionID *string                `json:"crawl_session_id,omitempty" validate:"omitempty,uuid"`
	Platform       string                 `json:"platform" validate:"max=50"`
	Reviews        []domain.CrawledReview `json:"reviews" validate:"required,min=1,max=1000,dive"`
}

// Consumer processes incoming Kafka events for the trust score service.
type Consumer struct {
	logger   *slog.Logger
	ingester ReviewIngester
}

// NewConsumer creates a new event consumer.
func NewConsumer(ingester ReviewIngester, logger *slog.Logger) *Consumer {
	return &Consumer{
		ingester: ingester,
		logger:   logger,
	}
}

// HandleReviewCrawled stores the reviews carried by a review.crawled event.
func (c *Consumer) HandleReviewCrawled(ctx context.Context, event *pkgkafka.Event) error {
	var data ReviewCrawledData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal review.crawled data: %w", err)
	}
	if err := validator.Validate(data); err != nil {
		return fmt.Errorf("validate review.crawled data: %w", err)
	}

	reviews := make([]domain.Review, 0, len(data.Reviews))
	for _, cr := range data.Reviews {
		reviews = append(reviews, cr.ToReview(data.ProductID, data.CrawlSessionID, data.Platform, event.Timestamp))
	}

	c.logger.InfoContext(ctx, "processing review.crawled event",
		slog.String("event_id", event.EventID),
		slog.String("product_id", data.ProductID),
		slog.Int("reviews", len(reviews)),
	)

	inserted, err := c.ingester.IngestReviews(ctx, data.ProductID, reviews)
	if err != nil {
		return fmt.Errorf("ingest reviews for product %s: %w", data.ProductID, err)
	}

	c.logger.InfoContext(ctx, "crawled reviews stored",
		slog.String("product_id", data.ProductID),
		slog.Int("inserted", inserted),
		slog.Int("duplicates", len(reviews)-inserted),
	)

	return nil
}
