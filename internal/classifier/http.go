package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/pkg/httpclient"
	"github.com/reviewtrust/trustscore/pkg/logger"
	"github.com/reviewtrust/trustscore/pkg/tracing"
	"github.com/reviewtrust/trustscore/pkg/validator"
)

const tracerName = "github.com/reviewtrust/trustscore/internal/classifier"

// Model versions the inference service reports when it answered without a
// loaded model. Those answers are placeholders and are never persisted.
var degradedModelVersions = map[string]bool{"fallback": true, "error": true}

// HTTPConfig configures HTTPClassifier.
type HTTPConfig struct {
	URL                    string
	Timeout                time.Duration
	RateLimit              float64
	Burst                  int
	LowConfidenceThreshold float64
}

// HTTPClassifier calls the inference service over HTTP through a circuit
// breaker and an outbound rate limiter.
type HTTPClassifier struct {
	client    *httpclient.CircuitBreakerClient
	limiter   *rate.Limiter
	url       string
	timeout   time.Duration
	threshold float64
	logger    *slog.Logger
}

// NewHTTPClassifier creates a classifier for the service at cfg.URL.
func NewHTTPClassifier(cfg HTTPConfig, logger *slog.Logger) *HTTPClassifier {
	base := httpclient.New(httpclient.Config{
		Timeout:         cfg.Timeout,
		MaxRetries:      0,
		MaxConnsPerHost: 32,
	})
	return &HTTPClassifier{
		client:    httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("classifier"), logger),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		url:       cfg.URL,
		timeout:   cfg.Timeout,
		threshold: cfg.LowConfidenceThreshold,
		logger:    logger,
	}
}

type classifyRequest struct {
	Content  string `json:"content"`
	Rating   int    `json:"rating,omitempty"`
	Platform string `json:"platform,omitempty"`
	Verified bool   `json:"is_verified_purchase"`
}

type sentimentResult struct {
	Label         string         `json:"sentiment_label" validate:"required"`
	Score         *float64       `json:"sentiment_score" validate:"required"`
	Confidence    *float64       `json:"sentiment_confidence" validate:"required"`
	Probabilities *Probabilities `json:"probabilities"`
	ModelVersion  string         `json:"model_version" validate:"required"`
}

type spamResult struct {
	IsSpam       bool     `json:"is_spam"`
	Score        *float64 `json:"spam_score" validate:"required"`
	Confidence   *float64 `json:"spam_confidence" validate:"required"`
	ModelVersion string   `json:"model_version" validate:"required"`
}

type classifyResponse struct {
	Sentiment *sentimentResult `json:"sentiment" validate:"required"`
	Spam      *spamResult      `json:"spam" validate:"required"`
}

// Classify sends req to the inference service. The call is bounded by the
// configured timeout, including time spent waiting on the rate limiter.
func (c *HTTPClassifier) Classify(ctx context.Context, req Request) (_ *domain.Classification, err error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "classifier.Classify",
		trace.WithSpanKind(trace.SpanKindClient))
	defer func() { tracing.EndSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.classifyError(ctx, err)
	}

	resp, err := c.client.PostJSON(ctx, c.url, classifyRequest{
		Content:  req.Content,
		Rating:   req.Hints.Rating,
		Platform: req.Hints.Platform,
		Verified: req.Hints.Verified,
	})
	if err != nil {
		return nil, c.classifyError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("%w: rate limited by classifier", domain.ErrClassificationUnavailable)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidClassification, httpclient.ParseResponseError(resp, "classifier"))
	}

	var body classifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		if ctx.Err() != nil {
			return nil, c.classifyError(ctx, err)
		}
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrInvalidClassification, err)
	}

	result, err := c.toClassification(&body)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sentiment.label", string(result.SentimentLabel)),
		attribute.Bool("spam.is_spam", result.IsSpam),
		attribute.Bool("low_confidence", result.LowConfidence),
	)
	return result, nil
}

func (c *HTTPClassifier) toClassification(body *classifyResponse) (*domain.Classification, error) {
	if err := validator.Validate(body); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidClassification, err)
	}
	s, sp := body.Sentiment, body.Spam
	if degradedModelVersions[s.ModelVersion] || degradedModelVersions[sp.ModelVersion] {
		return nil, fmt.Errorf("%w: model not loaded (sentiment=%s, spam=%s)",
			domain.ErrClassificationUnavailable, s.ModelVersion, sp.ModelVersion)
	}

	result := &domain.Classification{
		SentimentLabel:        domain.SentimentLabel(s.Label),
		SentimentScore:        *s.Score,
		SentimentConfidence:   *s.Confidence,
		IsSpam:                sp.IsSpam,
		SpamScore:             *sp.Score,
		SpamConfidence:        *sp.Confidence,
		SentimentModelVersion: s.ModelVersion,
		SpamModelVersion:      sp.ModelVersion,
		Raw:                   map[string]any{},
	}
	if s.Probabilities != nil {
		result.Raw["probabilities"] = *s.Probabilities
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	if err := validator.Validate(result); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidClassification, err)
	}
	flagLowConfidence(result, c.threshold)
	return result, nil
}

// classifyError maps a transport failure to a classification sentinel.
func (c *HTTPClassifier) classifyError(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", domain.ErrClassificationTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		if httpclient.IsCircuitOpen(err) {
			logger.WithContext(ctx, c.logger).DebugContext(ctx, "classifier circuit open")
		}
		return fmt.Errorf("%w: %v", domain.ErrClassificationUnavailable, err)
	}
}
