package domain

import (
	"fmt"
	"time"
)

// ScoreStatus distinguishes a computed score from the two "not evaluable" states.
type ScoreStatus string

const (
	StatusComputed         ScoreStatus = "computed"
	StatusNoData           ScoreStatus = "no_data"
	StatusInsufficientData ScoreStatus = "insufficient_data"
)

// ComponentScores are the normalized [0,1] inputs to the trust score.
type ComponentScores struct {
	SpamFactor       float64 `json:"spam_factor"`
	SentimentFactor  float64 `json:"sentiment_factor"`
	QualityFactor    float64 `json:"quality_factor"`
	EngagementFactor float64 `json:"engagement_factor"`
	VerifiedFactor   float64 `json:"verified_factor"`
	VolumeFactor     float64 `json:"volume_factor"`

	// Sub-factors, kept for audit.
	LengthFactor   float64 `json:"length_factor"`
	HelpfulDensity float64 `json:"helpful_density"`
	HelpfulShare   float64 `json:"helpful_share"`
	RecencyFactor  float64 `json:"recency_factor"`

	// ScoringReviews is the number of analyzed, non-spam reviews the
	// sentiment, quality, engagement and verified factors are computed over.
	ScoringReviews int `json:"scoring_reviews"`
}

// CalculationMetadata is stored alongside every score so it can be audited
// and recomputed.
type CalculationMetadata struct {
	FormulaVersion    string           `json:"formula_version"`
	Status            ScoreStatus      `json:"status"`
	Weights           Weights          `json:"weights"`
	Quality           QualityParams    `json:"quality_parameters"`
	Engagement        EngagementParams `json:"engagement_parameters"`
	ComponentScores   ComponentScores  `json:"component_scores"`
	UnanalyzedReviews int              `json:"unanalyzed_reviews"`
	AsOf              *time.Time       `json:"as_of,omitempty"`
	Notes             []string         `json:"notes,omitempty"`
}

// TrustScore is the per-product aggregate. TrustScore is nil when the
// product is not yet evaluable; Metadata.Status says why.
type TrustScore struct {
	ID                    string              `json:"id"`
	ProductID             string              `json:"product_id"`
	TrustScore            *float64            `json:"trust_score"`
	TotalReviews          int                 `json:"total_reviews"`
	AnalyzedReviews       int                 `json:"analyzed_reviews"`
	VerifiedReviewsCount  int                 `json:"verified_reviews_count"`
	SpamReviewsCount      int                 `json:"spam_reviews_count"`
	SpamPercentage        float64             `json:"spam_percentage"`
	PositiveReviewsCount  int                 `json:"positive_reviews_count"`
	NegativeReviewsCount  int                 `json:"negative_reviews_count"`
	NeutralReviewsCount   int                 `json:"neutral_reviews_count"`
	AverageSentimentScore float64             `json:"average_sentiment_score"`
	ReviewQualityScore    *float64            `json:"review_quality_score"`
	EngagementScore       *float64            `json:"engagement_score"`
	CalculatedAt          time.Time           `json:"calculated_at"`
	Metadata              CalculationMetadata `json:"calculation_metadata"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// IsComputed reports whether the score holds a value.
func (ts *TrustScore) IsComputed() bool {
	return ts.TrustScore != nil
}

// Validate checks the count and range invariants. A score failing these is
// never published.
func (ts *TrustScore) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: product %s: %s", ErrInconsistentAggregate, ts.ProductID, fmt.Sprintf(format, args...))
	}

	if ts.TotalReviews < 0 || ts.AnalyzedReviews < 0 || ts.VerifiedReviewsCount < 0 || ts.SpamReviewsCount < 0 ||
		ts.PositiveReviewsCount < 0 || ts.NegativeReviewsCount < 0 || ts.NeutralReviewsCount < 0 {
		return fail("negative count")
	}
	if ts.AnalyzedReviews > ts.TotalReviews {
		return fail("analyzed %d > total %d", ts.AnalyzedReviews, ts.TotalReviews)
	}
	if ts.VerifiedReviewsCount > ts.TotalReviews {
		return fail("verified %d > total %d", ts.VerifiedReviewsCount, ts.TotalReviews)
	}
	if ts.SpamReviewsCount > ts.AnalyzedReviews {
		return fail("spam %d > analyzed %d", ts.SpamReviewsCount, ts.AnalyzedReviews)
	}
	if sum := ts.PositiveReviewsCount + ts.NegativeReviewsCount + ts.NeutralReviewsCount; sum > ts.AnalyzedReviews {
		return fail("sentiment counts %d > analyzed %d", sum, ts.AnalyzedReviews)
	}
	if ts.SpamPercentage < 0 || ts.SpamPercentage > 100 {
		return fail("spam_percentage %v", ts.SpamPercentage)
	}
	if !unitInterval(ts.AverageSentimentScore) {
		return fail("average_sentiment_score %v", ts.AverageSentimentScore)
	}
	for name, v := range map[string]*float64{
		"trust_score":          ts.TrustScore,
		"review_quality_score": ts.ReviewQualityScore,
		"engagement_score":     ts.EngagementScore,
	} {
		if v != nil && !(*v >= 0 && *v <= 100) {
			return fail("%s %v outside [0,100]", name, *v)
		}
	}

	switch ts.Metadata.Status {
	case StatusComputed:
		if ts.TrustScore == nil || ts.AnalyzedReviews == 0 {
			return fail("computed status without a score")
		}
	case StatusNoData, StatusInsufficientData:
		if ts.TrustScore != nil {
			return fail("status %s with a score", ts.Metadata.Status)
		}
		if ts.AnalyzedReviews != 0 || ts.SpamPercentage != 0 {
			return fail("status %s with analyzed reviews", ts.Metadata.Status)
		}
	default:
		return fail("unknown status %q", ts.Metadata.Status)
	}
	return nil
}
