package domain

import (
	"fmt"
	"math"
)

// Formula versions. Every persisted score records the version it was
// computed with, so old scores stay reproducible after weights change.
const (
	FormulaV1SpamOnly = "1.0-spam-only"
	FormulaV2         = "2.0"

	CurrentFormulaVersion = FormulaV2
)

// Weights combine the component factors into the trust score. They sum to 1.
type Weights struct {
	Spam       float64 `json:"spam"`
	Sentiment  float64 `json:"sentiment"`
	Quality    float64 `json:"quality"`
	Engagement float64 `json:"engagement"`
	Verified   float64 `json:"verified"`
	Volume     float64 `json:"volume"`
}

func (w Weights) sum() float64 {
	return w.Spam + w.Sentiment + w.Quality + w.Engagement + w.Verified + w.Volume
}

// QualityParams define review_quality_score.
type QualityParams struct {
	VerifiedWeight float64 `json:"verified_weight"`
	LengthWeight   float64 `json:"length_weight"`
	HelpfulWeight  float64 `json:"helpful_weight"`
	// LengthTarget is the average content length (runes) that earns full marks.
	LengthTarget float64 `json:"length_target"`
	// HelpfulTarget is the helpful votes per review that earns full marks.
	HelpfulTarget float64 `json:"helpful_target"`
}

// EngagementParams define engagement_score.
type EngagementParams struct {
	HelpfulWeight float64 `json:"helpful_weight"`
	RecencyWeight float64 `json:"recency_weight"`
	VolumeWeight  float64 `json:"volume_weight"`
	HalfLifeDays  float64 `json:"half_life_days"`
}

// Formula is a complete, versioned scoring configuration.
type Formula struct {
	Version    string           `json:"version"`
	Weights    Weights          `json:"weights"`
	Quality    QualityParams    `json:"quality"`
	Engagement EngagementParams `json:"engagement"`
	// VolumeSaturation is the review count at which the volume factor reaches 1.
	VolumeSaturation int `json:"volume_saturation"`
	// AllReviewFactors takes the verified and volume factors over every
	// review, analyzed or not, instead of the scoring set.
	AllReviewFactors bool `json:"all_review_factors,omitempty"`
}

var defaultQuality = QualityParams{
	VerifiedWeight: 0.40,
	LengthWeight:   0.35,
	HelpfulWeight:  0.25,
	LengthTarget:   200,
	HelpfulTarget:  5,
}

var defaultEngagement = EngagementParams{
	HelpfulWeight: 0.35,
	RecencyWeight: 0.45,
	VolumeWeight:  0.20,
	HalfLifeDays:  90,
}

var formulas = map[string]Formula{
	FormulaV1SpamOnly: {
		Version:          FormulaV1SpamOnly,
		Weights:          Weights{Spam: 0.5, Volume: 0.3, Verified: 0.2},
		Quality:          defaultQuality,
		Engagement:       defaultEngagement,
		VolumeSaturation: 1000,
		AllReviewFactors: true,
	},
	FormulaV2: {
		Version:          FormulaV2,
		Weights:          Weights{Spam: 0.35, Sentiment: 0.25, Quality: 0.15, Engagement: 0.10, Verified: 0.15},
		Quality:          defaultQuality,
		Engagement:       defaultEngagement,
		VolumeSaturation: 1000,
	},
}

// LookupFormula returns the registered formula for version.
func LookupFormula(version string) (Formula, error) {
	f, ok := formulas[version]
	if !ok {
		return Formula{}, fmt.Errorf("%w: %q", ErrUnknownFormula, version)
	}
	return f, nil
}

// WithHalfLife returns a copy of f using the given recency half-life.
// Non-positive values keep the registered default.
func (f Formula) WithHalfLife(days float64) Formula {
	if days > 0 {
		f.Engagement.HalfLifeDays = days
	}
	return f
}

const weightTolerance = 1e-9

// Validate checks that every weight group is non-negative and sums to 1.
func (f Formula) Validate() error {
	if f.Version == "" {
		return fmt.Errorf("formula: version is required")
	}
	w := f.Weights
	for _, v := range []float64{w.Spam, w.Sentiment, w.Quality, w.Engagement, w.Verified, w.Volume} {
		if v < 0 {
			return fmt.Errorf("formula %s: negative weight", f.Version)
		}
	}
	if math.Abs(w.sum()-1) > weightTolerance {
		return fmt.Errorf("formula %s: weights sum to %v, want 1", f.Version, w.sum())
	}
	q := f.Quality
	if math.Abs(q.VerifiedWeight+q.LengthWeight+q.HelpfulWeight-1) > weightTolerance {
		return fmt.Errorf("formula %s: quality weights must sum to 1", f.Version)
	}
	if q.LengthTarget <= 0 || q.HelpfulTarget <= 0 {
		return fmt.Errorf("formula %s: quality targets must be positive", f.Version)
	}
	e := f.Engagement
	if math.Abs(e.HelpfulWeight+e.RecencyWeight+e.VolumeWeight-1) > weightTolerance {
		return fmt.Errorf("formula %s: engagement weights must sum to 1", f.Version)
	}
	if e.HalfLifeDays <= 0 {
		return fmt.Errorf("formula %s: half-life must be positive", f.Version)
	}
	if f.VolumeSaturation < 1 {
		return fmt.Errorf("formula %s: volume saturation must be at least 1", f.Version)
	}
	return nil
}
