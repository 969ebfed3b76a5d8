package domain

import (
	"fmt"
	"math"
	"time"
)

// AnalysisFacts is the part of a ReviewAnalysis the aggregator reads.
type AnalysisFacts struct {
	Label      SentimentLabel
	Score      float64
	Confidence float64
	IsSpam     bool
}

// ReviewFacts is the part of a Review (plus its analysis, if any) the
// aggregator reads.
type ReviewFacts struct {
	ReviewID      string
	Rating        int
	ContentLength int
	Verified      bool
	HelpfulCount  int
	ActivityAt    time.Time
	CrawledAt     time.Time
	Analysis      *AnalysisFacts
}

// AggregateInput is the full read set for one recompute.
type AggregateInput struct {
	ProductID string
	Reviews   []ReviewFacts
}

type tally struct {
	total, analyzed, verified, spam int
	positive, negative, neutral     int

	sentWeighted, sentConf, sentPlain float64

	// scoring set: analyzed and not spam
	scoring         int
	scoringVerified int
	scoringWeighted float64
	scoringConf     float64
	scoringPlain    float64
	scoringLength   int
	scoringHelpful  int
	scoringHelped   int
	activity        []time.Time

	asOf time.Time
}

// ComputeTrustScore derives the aggregate for one product. It is a pure
// function of its arguments: the same input, formula and calculatedAt always
// yield an identical TrustScore.
//
// Sentiment, quality, engagement, verified and volume factors are computed
// over the scoring set (analyzed, non-spam reviews), so adding a spam review
// can only lower the score. Formulas with AllReviewFactors take the verified
// and volume factors over every review instead. Recency is measured against the newest crawl
// time in the input rather than the wall clock.
func ComputeTrustScore(in AggregateInput, f Formula, calculatedAt time.Time) (*TrustScore, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	t, err := tallyReviews(in)
	if err != nil {
		return nil, err
	}

	ts := &TrustScore{
		ProductID:            in.ProductID,
		TotalReviews:         t.total,
		AnalyzedReviews:      t.analyzed,
		VerifiedReviewsCount: t.verified,
		SpamReviewsCount:     t.spam,
		PositiveReviewsCount: t.positive,
		NegativeReviewsCount: t.negative,
		NeutralReviewsCount:  t.neutral,
		CalculatedAt:         calculatedAt.UTC(),
		Metadata: CalculationMetadata{
			FormulaVersion:    f.Version,
			Weights:           f.Weights,
			Quality:           f.Quality,
			Engagement:        f.Engagement,
			UnanalyzedReviews: t.total - t.analyzed,
		},
	}
	if !t.asOf.IsZero() {
		asOf := t.asOf.UTC()
		ts.Metadata.AsOf = &asOf
	}

	switch {
	case t.total == 0:
		ts.Metadata.Status = StatusNoData
		ts.Metadata.Notes = []string{"product has no reviews"}
	case t.analyzed == 0:
		ts.Metadata.Status = StatusInsufficientData
		ts.Metadata.Notes = []string{"insufficient data: no analyzed reviews"}
	default:
		ts.Metadata.Status = StatusComputed
		ts.SpamPercentage = Round(float64(t.spam)/float64(t.analyzed)*100, 2)
		ts.AverageSentimentScore = Round(mean(t.sentWeighted, t.sentConf, t.sentPlain, t.analyzed), 4)
		applyComponents(ts, t, f)
	}

	if n := ts.Metadata.UnanalyzedReviews; n > 0 && t.total > 0 {
		ts.Metadata.Notes = append(ts.Metadata.Notes,
			fmt.Sprintf("%d review(s) without analysis (blank content or pending classification)", n))
	}

	if err := ts.Validate(); err != nil {
		return nil, err
	}
	return ts, nil
}

func tallyReviews(in AggregateInput) (*tally, error) {
	t := &tally{}
	seen := make(map[string]struct{}, len(in.Reviews))

	for i := range in.Reviews {
		r := &in.Reviews[i]
		if r.ReviewID != "" {
			if _, dup := seen[r.ReviewID]; dup {
				return nil, fmt.Errorf("%w: review %s appears twice", ErrInconsistentAggregate, r.ReviewID)
			}
			seen[r.ReviewID] = struct{}{}
		}
		if r.Rating < MinRating || r.Rating > MaxRating {
			return nil, fmt.Errorf("%w: review %s rating %d", ErrInconsistentAggregate, r.ReviewID, r.Rating)
		}
		if r.HelpfulCount < 0 || r.ContentLength < 0 {
			return nil, fmt.Errorf("%w: review %s has negative counters", ErrInconsistentAggregate, r.ReviewID)
		}

		t.total++
		if r.Verified {
			t.verified++
		}
		if r.CrawledAt.After(t.asOf) {
			t.asOf = r.CrawledAt
		}

		a := r.Analysis
		if a == nil {
			continue
		}
		if !a.Label.Valid() || !unitInterval(a.Score) || !unitInterval(a.Confidence) {
			return nil, fmt.Errorf("%w: review %s has an invalid analysis", ErrInconsistentAggregate, r.ReviewID)
		}

		t.analyzed++
		switch a.Label {
		case SentimentPositive:
			t.positive++
		case SentimentNegative:
			t.negative++
		case SentimentNeutral:
			t.neutral++
		}
		t.sentWeighted += a.Score * a.Confidence
		t.sentConf += a.Confidence
		t.sentPlain += a.Score

		if a.IsSpam {
			t.spam++
			continue
		}

		t.scoring++
		if r.Verified {
			t.scoringVerified++
		}
		t.scoringWeighted += a.Score * a.Confidence
		t.scoringConf += a.Confidence
		t.scoringPlain += a.Score
		t.scoringLength += r.ContentLength
		t.scoringHelpful += r.HelpfulCount
		if r.HelpfulCount > 0 {
			t.scoringHelped++
		}
		t.activity = append(t.activity, r.ActivityAt)
	}
	return t, nil
}

func applyComponents(ts *TrustScore, t *tally, f Formula) {
	c := ComponentScores{
		SpamFactor:     Round(1-float64(t.spam)/float64(t.analyzed), 4),
		ScoringReviews: t.scoring,
	}

	if t.scoring > 0 {
		n := float64(t.scoring)
		c.SentimentFactor = Round(mean(t.scoringWeighted, t.scoringConf, t.scoringPlain, t.scoring), 4)
		c.VerifiedFactor = Round(float64(t.scoringVerified)/n, 4)
		c.LengthFactor = Round(math.Min(float64(t.scoringLength)/n/f.Quality.LengthTarget, 1), 4)
		c.HelpfulDensity = Round(math.Min(float64(t.scoringHelpful)/n/f.Quality.HelpfulTarget, 1), 4)
		c.HelpfulShare = Round(float64(t.scoringHelped)/n, 4)
		c.RecencyFactor = Round(recency(t.activity, t.asOf, f.Engagement.HalfLifeDays), 4)
		c.VolumeFactor = volumeFactor(t.scoring, f.VolumeSaturation)

		q := f.Quality
		c.QualityFactor = Round(q.VerifiedWeight*c.VerifiedFactor+q.LengthWeight*c.LengthFactor+q.HelpfulWeight*c.HelpfulDensity, 4)
		e := f.Engagement
		c.EngagementFactor = Round(e.HelpfulWeight*c.HelpfulShare+e.RecencyWeight*c.RecencyFactor+e.VolumeWeight*c.VolumeFactor, 4)
	}

	if f.AllReviewFactors {
		c.VerifiedFactor = Round(float64(t.verified)/float64(t.total), 4)
		c.VolumeFactor = volumeFactor(t.total, f.VolumeSaturation)
	}

	w := f.Weights
	raw := 100 * (w.Spam*c.SpamFactor +
		w.Sentiment*c.SentimentFactor +
		w.Quality*c.QualityFactor +
		w.Engagement*c.EngagementFactor +
		w.Verified*c.VerifiedFactor +
		w.Volume*c.VolumeFactor)
	score := Round(clamp(raw, 0, 100), 2)
	quality := Round(c.QualityFactor*100, 2)
	engagement := Round(c.EngagementFactor*100, 2)

	ts.TrustScore = &score
	ts.ReviewQualityScore = &quality
	ts.EngagementScore = &engagement
	ts.Metadata.ComponentScores = c
	if t.scoring == 0 {
		ts.Metadata.Notes = append(ts.Metadata.Notes, "all analyzed reviews are flagged as spam")
	}
}

// mean is the confidence-weighted mean, or the plain mean when every
// confidence is zero.
func mean(weighted, conf, plain float64, n int) float64 {
	if n == 0 {
		return 0
	}
	if conf > 0 {
		return weighted / conf
	}
	return plain / float64(n)
}

func volumeFactor(n, saturation int) float64 {
	return Round(math.Min(math.Log(float64(n)+1)/math.Log(float64(saturation)+1), 1), 4)
}

func recency(at []time.Time, asOf time.Time, halfLifeDays float64) float64 {
	if len(at) == 0 {
		return 0
	}
	var sum float64
	for _, ts := range at {
		if ts.IsZero() {
			continue
		}
		ageDays := asOf.Sub(ts).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		sum += math.Pow(0.5, ageDays/halfLifeDays)
	}
	return sum / float64(len(at))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
