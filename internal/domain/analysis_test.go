package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validClassification() *Classification {
	return &Classification{
		SentimentLabel:        SentimentPositive,
		SentimentScore:        0.87654,
		SentimentConfidence:   0.9,
		SpamScore:             0.1,
		SpamConfidence:        0.8,
		SentimentModelVersion: "sentiment-v1.2",
		SpamModelVersion:      "spam-v1.0",
	}
}

func TestClassification_Validate(t *testing.T) {
	require.NoError(t, validClassification().Validate())

	tests := []struct {
		name   string
		mutate func(*Classification)
	}{
		{"unknown label", func(c *Classification) { c.SentimentLabel = "mixed" }},
		{"score above one", func(c *Classification) { c.SentimentScore = 1.01 }},
		{"negative confidence", func(c *Classification) { c.SpamConfidence = -0.1 }},
		{"nan", func(c *Classification) { c.SpamScore = math.NaN() }},
		{"missing model version", func(c *Classification) { c.SpamModelVersion = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validClassification()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidClassification)
		})
	}
}

func TestNewReviewAnalysis_RoundsAndIsDeterministic(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	c := validClassification()
	c.LowConfidence = true

	a := NewReviewAnalysis("r-1", c, at, 35*time.Millisecond)
	b := NewReviewAnalysis("r-1", c, at, 35*time.Millisecond)

	assert.Equal(t, a, b)
	assert.Equal(t, 0.8765, a.SentimentScore)
	assert.Equal(t, time.UTC, a.AnalyzedAt.Location())
	assert.Equal(t, int64(35), a.Metadata["processing_time_ms"])
	assert.Equal(t, true, a.Metadata["low_confidence"])
}

func TestNewAnalysisStatistics(t *testing.T) {
	s := NewAnalysisStatistics(3, 1, 1, 1, 1, 0.55555)
	assert.Equal(t, 33.33, s.SpamPercentage)
	assert.Equal(t, 0.5556, s.AverageSentimentScore)
	assert.Equal(t, 1, s.SentimentCounts[SentimentNeutral])

	empty := NewAnalysisStatistics(0, 0, 0, 0, 0, 0)
	assert.Zero(t, empty.SpamPercentage)
}

func TestIsRetryableClassification(t *testing.T) {
	assert.True(t, IsRetryableClassification(ErrClassificationTimeout))
	assert.True(t, IsRetryableClassification(ErrClassificationUnavailable))
	assert.False(t, IsRetryableClassification(ErrInvalidClassification))
}

func TestReview_ContentHelpers(t *testing.T) {
	blank := "  \n "
	text := "  Hàng tốt  "
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		review   Review
		has      bool
		length   int
		activity time.Time
	}{
		{"nil content", Review{CrawledAt: crawlTime}, false, 0, crawlTime},
		{"blank content", Review{Content: &blank, CrawledAt: crawlTime}, false, 0, crawlTime},
		{"multibyte content with date", Review{Content: &text, ReviewDate: &date, CrawledAt: crawlTime}, true, 8, date},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.has, tt.review.HasContent())
			assert.Equal(t, tt.length, tt.review.ContentLength())
			assert.Equal(t, tt.activity, tt.review.ActivityAt())
		})
	}
}

func TestNormalizePlatform(t *testing.T) {
	assert.Equal(t, PlatformShopee, NormalizePlatform(" Shopee "))
}

func TestCompareModelVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"lexicon-1.9", "lexicon-1.10", -1},
		{"lexicon-1.10", "lexicon-1.9", 1},
		{"lexicon-1.10", "lexicon-1.10", 0},
		{"lexicon-1.0", "lexicon-1.00", 0},
		{"v2", "v10", -1},
		{"v1.2", "v1.2.1", -1},
		{"lexicon-2.0", "sentiment-1.0", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareModelVersions(tt.a, tt.b))
		})
	}
}
