package domain

import (
	"time"
	"unicode/utf8"
)

// ProductAnalytics is the stored LLM summary for a product.
type ProductAnalytics struct {
	ID                   string          `json:"id"`
	ProductID            string          `json:"product_id"`
	Report               AnalyticsReport `json:"analysis_data"`
	ModelUsed            string          `json:"model_used"`
	TotalReviewsAnalyzed int             `json:"total_reviews_analyzed"`
	SampleReviewsCount   int             `json:"sample_reviews_count"`
	AnalyzedAt           time.Time       `json:"analyzed_at"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// AnalyticsReport is the JSON document the LLM is asked to produce.
type AnalyticsReport struct {
	Summary            string              `json:"summary"`
	TrustScoreAnalysis *TrustScoreAnalysis `json:"trust_score_analysis"`
	ReviewInsights     *ReviewInsights     `json:"review_insights"`
	Recommendations    []string            `json:"recommendations"`
	RiskAssessment     *RiskAssessment     `json:"risk_assessment"`
	// ParseError is set when the model reply was not valid JSON and the
	// report was built from the raw text.
	ParseError string `json:"parse_error,omitempty"`
}

type TrustScoreAnalysis struct {
	Interpretation string   `json:"interpretation"`
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
}

type ReviewInsights struct {
	SentimentOverview string   `json:"sentiment_overview"`
	KeyPositiveThemes []string `json:"key_positive_themes"`
	KeyNegativeThemes []string `json:"key_negative_themes"`
	SpamConcerns      string   `json:"spam_concerns"`
}

type RiskAssessment struct {
	OverallRisk     string   `json:"overall_risk"`
	RiskFactors     []string `json:"risk_factors"`
	ConfidenceLevel string   `json:"confidence_level"`
}

// Risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// FillDefaults replaces missing sections with placeholders and reports
// which sections were missing.
func (r *AnalyticsReport) FillDefaults() []string {
	var missing []string
	if r.Summary == "" {
		missing = append(missing, "summary")
		r.Summary = "Summary unavailable."
	}
	if r.TrustScoreAnalysis == nil {
		missing = append(missing, "trust_score_analysis")
		r.TrustScoreAnalysis = &TrustScoreAnalysis{Interpretation: "Trust score interpretation unavailable."}
	}
	if r.ReviewInsights == nil {
		missing = append(missing, "review_insights")
		r.ReviewInsights = &ReviewInsights{
			SentimentOverview: "Sentiment overview unavailable.",
			SpamConcerns:      "Spam assessment unavailable.",
		}
	}
	if r.Recommendations == nil {
		missing = append(missing, "recommendations")
		r.Recommendations = []string{}
	}
	if r.RiskAssessment == nil {
		missing = append(missing, "risk_assessment")
		r.RiskAssessment = &RiskAssessment{OverallRisk: RiskMedium, ConfidenceLevel: "low"}
	}
	switch r.RiskAssessment.OverallRisk {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		r.RiskAssessment.OverallRisk = RiskMedium
	}
	r.TrustScoreAnalysis.Strengths = nonNil(r.TrustScoreAnalysis.Strengths)
	r.TrustScoreAnalysis.Weaknesses = nonNil(r.TrustScoreAnalysis.Weaknesses)
	r.ReviewInsights.KeyPositiveThemes = nonNil(r.ReviewInsights.KeyPositiveThemes)
	r.ReviewInsights.KeyNegativeThemes = nonNil(r.ReviewInsights.KeyNegativeThemes)
	r.RiskAssessment.RiskFactors = nonNil(r.RiskAssessment.RiskFactors)
	return missing
}

// FallbackReport wraps an unparseable model reply.
func FallbackReport(raw string, parseErr error) AnalyticsReport {
	r := AnalyticsReport{
		Summary:         Truncate(raw, SampleContentLimit),
		Recommendations: []string{"Retry the analysis later."},
		RiskAssessment: &RiskAssessment{
			OverallRisk:     RiskMedium,
			RiskFactors:     []string{"model reply was not valid JSON"},
			ConfidenceLevel: "low",
		},
		ParseError: parseErr.Error(),
	}
	r.FillDefaults()
	return r
}

// Sampling limits for the analytics prompt.
const (
	SamplePositive     = 3
	SampleNegative     = 3
	SampleNeutral      = 2
	SampleContentLimit = 500
)

// SampleReview is one review quoted in the analytics prompt.
type SampleReview struct {
	Rating           int            `json:"rating"`
	Content          string         `json:"content"`
	Sentiment        SentimentLabel `json:"sentiment"`
	SentimentScore   float64        `json:"sentiment_score"`
	IsSpam           bool           `json:"is_spam"`
	VerifiedPurchase bool           `json:"verified_purchase"`
}

// SelectSamples keeps up to 3 positive, 3 negative and 2 neutral reviews,
// in input order, with content truncated to SampleContentLimit runes.
func SelectSamples(reviews []SampleReview) []SampleReview {
	var pos, neg, neu []SampleReview
	for _, r := range reviews {
		r.Content = Truncate(r.Content, SampleContentLimit)
		switch r.Sentiment {
		case SentimentPositive:
			if len(pos) < SamplePositive {
				pos = append(pos, r)
			}
		case SentimentNegative:
			if len(neg) < SampleNegative {
				neg = append(neg, r)
			}
		default:
			if len(neu) < SampleNeutral {
				neu = append(neu, r)
			}
		}
	}
	out := make([]SampleReview, 0, len(pos)+len(neg)+len(neu))
	out = append(out, pos...)
	out = append(out, neg...)
	return append(out, neu...)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ProductSummary is the product information quoted in the analytics prompt.
type ProductSummary struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Brand         *string  `json:"brand,omitempty"`
	Category      *string  `json:"category,omitempty"`
	Platform      *string  `json:"platform,omitempty"`
	CurrentPrice  *float64 `json:"price,omitempty"`
	Currency      string   `json:"currency"`
	AverageRating *float64 `json:"average_rating,omitempty"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
