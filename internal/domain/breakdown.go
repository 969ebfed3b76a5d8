package domain

import "time"

// Breakdown component names.
const (
	ComponentSpam       = "spam"
	ComponentSentiment  = "sentiment"
	ComponentQuality    = "quality"
	ComponentEngagement = "engagement"
	ComponentVerified   = "verified"
	ComponentVolume     = "volume"
)

// BreakdownComponent shows how one factor contributed to the score.
// Contribution = Factor × Weight × 100.
type BreakdownComponent struct {
	Factor       float64        `json:"factor"`
	Weight       float64        `json:"weight"`
	Contribution float64        `json:"contribution"`
	Details      map[string]any `json:"details,omitempty"`
}

// TrustScoreBreakdown explains a stored trust score.
type TrustScoreBreakdown struct {
	ProductID       string                        `json:"product_id"`
	TrustScore      *float64                      `json:"trust_score"`
	Status          ScoreStatus                   `json:"status"`
	FormulaVersion  string                        `json:"formula_version"`
	TotalReviews    int                           `json:"total_reviews"`
	AnalyzedReviews int                           `json:"analyzed_reviews"`
	Components      map[string]BreakdownComponent `json:"components"`
	CalculatedAt    time.Time                     `json:"calculated_at"`
}

// NewBreakdown rebuilds per-component contributions from a stored score.
// Components with zero weight in the score's formula are omitted.
func NewBreakdown(ts *TrustScore) *TrustScoreBreakdown {
	b := &TrustScoreBreakdown{
		ProductID:       ts.ProductID,
		TrustScore:      ts.TrustScore,
		Status:          ts.Metadata.Status,
		FormulaVersion:  ts.Metadata.FormulaVersion,
		TotalReviews:    ts.TotalReviews,
		AnalyzedReviews: ts.AnalyzedReviews,
		Components:      map[string]BreakdownComponent{},
		CalculatedAt:    ts.CalculatedAt,
	}
	if !ts.IsComputed() {
		return b
	}

	c := ts.Metadata.ComponentScores
	w := ts.Metadata.Weights
	add := func(name string, factor, weight float64, details map[string]any) {
		if weight <= 0 {
			return
		}
		b.Components[name] = BreakdownComponent{
			Factor:       factor,
			Weight:       weight,
			Contribution: Round(factor*weight*100, 2),
			Details:      details,
		}
	}

	add(ComponentSpam, c.SpamFactor, w.Spam, map[string]any{
		"spam_reviews":    ts.SpamReviewsCount,
		"spam_percentage": ts.SpamPercentage,
	})
	add(ComponentSentiment, c.SentimentFactor, w.Sentiment, map[string]any{
		"positive": ts.PositiveReviewsCount,
		"negative": ts.NegativeReviewsCount,
		"neutral":  ts.NeutralReviewsCount,
	})
	add(ComponentQuality, c.QualityFactor, w.Quality, map[string]any{
		"length_factor":   c.LengthFactor,
		"helpful_density": c.HelpfulDensity,
		"verified_factor": c.VerifiedFactor,
	})
	add(ComponentEngagement, c.EngagementFactor, w.Engagement, map[string]any{
		"helpful_share":  c.HelpfulShare,
		"recency_factor": c.RecencyFactor,
		"volume_factor":  c.VolumeFactor,
		"half_life_days": ts.Metadata.Engagement.HalfLifeDays,
	})
	add(ComponentVerified, c.VerifiedFactor, w.Verified, map[string]any{
		"verified_reviews": ts.VerifiedReviewsCount,
		"scoring_reviews":  c.ScoringReviews,
	})
	add(ComponentVolume, c.VolumeFactor, w.Volume, map[string]any{
		"scoring_reviews": c.ScoringReviews,
	})
	return b
}
