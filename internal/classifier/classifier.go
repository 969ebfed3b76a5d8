// Package classifier adapts sentiment and spam models to the pipeline.
//
// Implementations never retry; they report transient failures as
// domain.ErrClassificationUnavailable or domain.ErrClassificationTimeout and
// leave the retry policy to the caller.
package classifier

import (
	"context"
	"math"

	"github.com/reviewtrust/trustscore/internal/domain"
)

// Hints carry review attributes a model may use besides the text.
type Hints struct {
	Rating   int    `json:"rating,omitempty"`
	Platform string `json:"platform,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

// Request is one piece of text to classify.
type Request struct {
	Content string `json:"content"`
	Hints   Hints  `json:"hints"`
}

// Classifier labels review text for sentiment and spam.
type Classifier interface {
	Classify(ctx context.Context, req Request) (*domain.Classification, error)
}

// Probabilities is a sentiment distribution over the three labels.
type Probabilities struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Sentiment derives the label, score and confidence from p. The label is
// the most likely class (ties resolve negative, neutral, positive), the
// score is (positive + neutral/2) / total and the confidence is the
// probability of the label. An empty distribution is neutral at 0.5.
func (p Probabilities) Sentiment() (domain.SentimentLabel, float64, float64) {
	clamp := func(v float64) float64 { return math.Max(0, math.Min(1, v)) }
	pos, neu, neg := clamp(p.Positive), clamp(p.Neutral), clamp(p.Negative)

	label, conf := domain.SentimentNegative, neg
	if neu > conf {
		label, conf = domain.SentimentNeutral, neu
	}
	if pos > conf {
		label, conf = domain.SentimentPositive, pos
	}

	total := pos + neu + neg
	if total == 0 {
		return domain.SentimentNeutral, 0.5, 0
	}
	return label, (pos + 0.5*neu) / total, conf
}

// Spam derives the spam flag and confidence from a spam probability:
// spam above 0.5, confidence growing linearly with distance from 0.5.
func Spam(score float64) (bool, float64, float64) {
	score = math.Max(0, math.Min(1, score))
	return score > 0.5, score, math.Abs(score-0.5) * 2
}

// flagLowConfidence marks c when either confidence is under threshold.
func flagLowConfidence(c *domain.Classification, threshold float64) {
	c.LowConfidence = c.SentimentConfidence < threshold || c.SpamConfidence < threshold
}
