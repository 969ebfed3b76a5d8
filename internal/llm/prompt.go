package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reviewtrust/trustscore/internal/domain"
)

// AnalyticsSystemPrompt instructs the model to answer with a report document.
const AnalyticsSystemPrompt = `You are an e-commerce trust analyst. You receive a product, its computed trust score, review statistics and a sample of classified reviews.

Assess how far shoppers can rely on the reviews and the product.

Output JSON only, no other text:
{
  "summary": "2-3 sentence overview",
  "trust_score_analysis": {
    "interpretation": "what the trust score means for this product",
    "strengths": ["..."],
    "weaknesses": ["..."]
  },
  "review_insights": {
    "sentiment_overview": "...",
    "key_positive_themes": ["..."],
    "key_negative_themes": ["..."],
    "spam_concerns": "..."
  },
  "recommendations": ["advice for a prospective buyer"],
  "risk_assessment": {
    "overall_risk": "low | medium | high",
    "risk_factors": ["..."],
    "confidence_level": "low | medium | high"
  }
}`

// PromptInput is everything quoted in the analytics prompt.
type PromptInput struct {
	Product  *domain.ProductSummary
	Score    *domain.TrustScore
	Reviews  *domain.ReviewStatistics
	Analyses *domain.AnalysisStatistics
	Samples  []domain.SampleReview
}

// AnalyticsPrompt renders the user prompt for in.
func AnalyticsPrompt(in PromptInput) string {
	var sb strings.Builder

	p := in.Product
	sb.WriteString("## Product\n")
	fmt.Fprintf(&sb, "Name: %s\n", p.Name)
	if p.Brand != nil {
		fmt.Fprintf(&sb, "Brand: %s\n", *p.Brand)
	}
	if p.Category != nil {
		fmt.Fprintf(&sb, "Category: %s\n", *p.Category)
	}
	if p.Platform != nil {
		fmt.Fprintf(&sb, "Platform: %s\n", *p.Platform)
	}
	if p.CurrentPrice != nil {
		fmt.Fprintf(&sb, "Price: %.0f %s\n", *p.CurrentPrice, p.Currency)
	}

	s := in.Score
	sb.WriteString("\n## Trust score\n")
	if s.TrustScore != nil {
		fmt.Fprintf(&sb, "Score: %.2f / 100 (formula %s)\n", *s.TrustScore, s.Metadata.FormulaVersion)
	}
	fmt.Fprintf(&sb, "Spam: %d of %d analyzed (%.2f%%)\n", s.SpamReviewsCount, s.AnalyzedReviews, s.SpamPercentage)
	fmt.Fprintf(&sb, "Average sentiment: %.4f\n", s.AverageSentimentScore)
	if s.ReviewQualityScore != nil {
		fmt.Fprintf(&sb, "Review quality: %.2f\n", *s.ReviewQualityScore)
	}
	if s.EngagementScore != nil {
		fmt.Fprintf(&sb, "Engagement: %.2f\n", *s.EngagementScore)
	}

	if r := in.Reviews; r != nil {
		sb.WriteString("\n## Reviews\n")
		fmt.Fprintf(&sb, "Total: %d, verified purchases: %d, average rating: %.2f\n",
			r.TotalReviews, r.VerifiedPurchases, r.AverageRating)
		sb.WriteString("Rating distribution:")
		for star := domain.MaxRating; star >= domain.MinRating; star-- {
			fmt.Fprintf(&sb, " %d★=%d", star, r.RatingDistribution[star])
		}
		sb.WriteString("\n")
	}

	if a := in.Analyses; a != nil {
		sb.WriteString("\n## Sentiment\n")
		fmt.Fprintf(&sb, "Positive: %d, negative: %d, neutral: %d\n",
			a.SentimentCounts[domain.SentimentPositive],
			a.SentimentCounts[domain.SentimentNegative],
			a.SentimentCounts[domain.SentimentNeutral])
	}

	if len(in.Samples) > 0 {
		sb.WriteString("\n## Sample reviews\n")
		for i, r := range in.Samples {
			flags := ""
			if r.VerifiedPurchase {
				flags += " verified"
			}
			if r.IsSpam {
				flags += " spam"
			}
			fmt.Fprintf(&sb, "[%d] %d★ %s (%.2f)%s: %s\n", i+1, r.Rating, r.Sentiment, r.SentimentScore, flags, r.Content)
		}
	}
	return sb.String()
}

// ParseReport decodes a model reply into a report.
func ParseReport(text string) (domain.AnalyticsReport, error) {
	var report domain.AnalyticsReport
	if err := json.Unmarshal([]byte(cleanJSONResponse(text)), &report); err != nil {
		return report, fmt.Errorf("parse analytics report: %w", err)
	}
	return report, nil
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// Models sometimes wrap the document in prose.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
