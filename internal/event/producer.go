package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reviewtrust/trustscore/internal/domain"
	pkgkafka "github.com/reviewtrust/trustscore/pkg/kafka"
)

// Kafka topics published by the trust score service.
const (
	TopicTrustScoreUpdated = "reviewtrust.trust_score.updated"
)

// Aggregate type constant.
const AggregateTypeTrustScore = "trust_score"

// Source identifier for events originating from the trust score service.
const SourceTrustScoreService = "trustscore-service"

// TrustScoreUpdatedData is the payload for a trust_score.updated event.
type TrustScoreUpdatedData struct {
	ProductID       string             `json:"product_id"`
	TrustScore      *float64           `json:"trust_score"`
	Status          domain.ScoreStatus `json:"status"`
	FormulaVersion  string             `json:"formula_version"`
	TotalReviews    int                `json:"total_reviews"`
	AnalyzedReviews int                `json:"analyzed_reviews"`
	SpamPercentage  float64            `json:"spam_percentage"`
	CalculatedAt    time.Time          `json:"calculated_at"`
}

// Producer publishes trust score events to Kafka.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishTrustScoreUpdated publishes a trust_score.updated event.
func (p *Producer) PublishTrustScoreUpdated(ctx context.Context, ts *domain.TrustScore) error {
	data := TrustScoreUpdatedData{
		ProductID:       ts.ProductID,
		TrustScore:      ts.TrustScore,
		Status:          ts.Metadata.Status,
		FormulaVersion:  ts.Metadata.FormulaVersion,
		TotalReviews:    ts.TotalReviews,
		AnalyzedReviews: ts.AnalyzedReviews,
		SpamPercentage:  ts.SpamPercentage,
		CalculatedAt:    ts.CalculatedAt,
	}

	event, err := pkgkafka.NewEvent(TopicTrustScoreUpdated, ts.ProductID, AggregateTypeTrustScore, SourceTrustScoreService, data)
	if err != nil {
		return fmt.Errorf("create trust_score.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicTrustScoreUpdated, event); err != nil {
		return fmt.Errorf("publish trust_score.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published trust_score.updated event",
		slog.String("product_id", ts.ProductID),
		slog.String("status", string(ts.Metadata.Status)),
	)

	return nil
}
