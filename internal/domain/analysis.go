package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SentimentLabel is the sentiment class assigned to a review.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

// Valid reports whether l is one of the three known labels.
func (l SentimentLabel) Valid() bool {
	switch l {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// Classification is what a classifier returns for one piece of text.
type Classification struct {
	SentimentLabel        SentimentLabel `json:"sentiment_label" validate:"required,oneof=positive negative neutral"`
	SentimentScore        float64        `json:"sentiment_score" validate:"gte=0,lte=1"`
	SentimentConfidence   float64        `json:"sentiment_confidence" validate:"gte=0,lte=1"`
	IsSpam                bool           `json:"is_spam"`
	SpamScore             float64        `json:"spam_score" validate:"gte=0,lte=1"`
	SpamConfidence        float64        `json:"spam_confidence" validate:"gte=0,lte=1"`
	SentimentModelVersion string         `json:"sentiment_model_version" validate:"required,max=50"`
	SpamModelVersion      string         `json:"spam_model_version" validate:"required,max=50"`
	// LowConfidence is set when either confidence is under the configured
	// threshold. It never blocks classification.
	LowConfidence bool           `json:"low_confidence"`
	Raw           map[string]any `json:"raw,omitempty"`
}

// Validate checks the ranges that struct tags cannot express (NaN).
func (c *Classification) Validate() error {
	if !c.SentimentLabel.Valid() {
		return fmt.Errorf("%w: sentiment label %q", ErrInvalidClassification, c.SentimentLabel)
	}
	scores := []struct {
		name string
		v    float64
	}{
		{"sentiment_score", c.SentimentScore},
		{"sentiment_confidence", c.SentimentConfidence},
		{"spam_score", c.SpamScore},
		{"spam_confidence", c.SpamConfidence},
	}
	for _, s := range scores {
		if !unitInterval(s.v) {
			return fmt.Errorf("%w: %s=%v outside [0,1]", ErrInvalidClassification, s.name, s.v)
		}
	}
	if c.SentimentModelVersion == "" || c.SpamModelVersion == "" {
		return fmt.Errorf("%w: missing model version", ErrInvalidClassification)
	}
	return nil
}

// ReviewAnalysis is the persisted classification of one review.
type ReviewAnalysis struct {
	ID                    string         `json:"id"`
	ReviewID              string         `json:"review_id"`
	SentimentLabel        SentimentLabel `json:"sentiment_label"`
	SentimentScore        float64        `json:"sentiment_score"`
	SentimentConfidence   float64        `json:"sentiment_confidence"`
	IsSpam                bool           `json:"is_spam"`
	SpamScore             float64        `json:"spam_score"`
	SpamConfidence        float64        `json:"spam_confidence"`
	SentimentModelVersion string         `json:"sentiment_model_version"`
	SpamModelVersion      string         `json:"spam_model_version"`
	AnalyzedAt            time.Time      `json:"analyzed_at"`
	Metadata              map[string]any `json:"analysis_metadata,omitempty"`
}

// NewReviewAnalysis builds the row to upsert for reviewID. Scores are rounded
// to the 4 decimals the store keeps, so classifying the same text twice with
// the same model yields the same row.
func NewReviewAnalysis(reviewID string, c *Classification, analyzedAt time.Time, elapsed time.Duration) *ReviewAnalysis {
	meta := map[string]any{
		"processing_time_ms": elapsed.Milliseconds(),
		"low_confidence":     c.LowConfidence,
	}
	if len(c.Raw) > 0 {
		meta["raw"] = c.Raw
	}
	return &ReviewAnalysis{
		ReviewID:              reviewID,
		SentimentLabel:        c.SentimentLabel,
		SentimentScore:        Round(c.SentimentScore, 4),
		SentimentConfidence:   Round(c.SentimentConfidence, 4),
		IsSpam:                c.IsSpam,
		SpamScore:             Round(c.SpamScore, 4),
		SpamConfidence:        Round(c.SpamConfidence, 4),
		SentimentModelVersion: c.SentimentModelVersion,
		SpamModelVersion:      c.SpamModelVersion,
		AnalyzedAt:            analyzedAt.UTC(),
		Metadata:              meta,
	}
}

// AnalysisStatistics summarizes the analyses of a product's reviews.
type AnalysisStatistics struct {
	TotalAnalyzed         int                    `json:"total_analyzed"`
	SentimentCounts       map[SentimentLabel]int `json:"sentiment_counts"`
	SpamCount             int                    `json:"spam_count"`
	SpamPercentage        float64                `json:"spam_percentage"`
	AverageSentimentScore float64                `json:"average_sentiment_score"`
}

// NewAnalysisStatistics derives the percentages from raw counts.
func NewAnalysisStatistics(total, positive, negative, neutral, spam int, avgSentiment float64) *AnalysisStatistics {
	s := &AnalysisStatistics{
		TotalAnalyzed: total,
		SentimentCounts: map[SentimentLabel]int{
			SentimentPositive: positive,
			SentimentNegative: negative,
			SentimentNeutral:  neutral,
		},
		SpamCount:             spam,
		AverageSentimentScore: Round(avgSentiment, 4),
	}
	if total > 0 {
		s.SpamPercentage = Round(float64(spam)/float64(total)*100, 2)
	}
	return s
}

func unitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Round rounds v half away from zero to places decimals.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// CompareModelVersions orders model version strings with embedded numbers
// compared numerically, so "lexicon-1.9" sorts before "lexicon-1.10". It
// matches the model_version collation used when selecting stale analyses.
func CompareModelVersions(a, b string) int {
	for a != "" && b != "" {
		var ca, cb string
		ca, a = nextVersionChunk(a)
		cb, b = nextVersionChunk(b)

		if isDigit(ca[0]) && isDigit(cb[0]) {
			na, nb := strings.TrimLeft(ca, "0"), strings.TrimLeft(cb, "0")
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			continue
		}
		if c := strings.Compare(ca, cb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

// nextVersionChunk splits off the leading run of digits or non-digits.
func nextVersionChunk(s string) (chunk, rest string) {
	digits := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digits {
		i++
	}
	return s[:i], s[i:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
