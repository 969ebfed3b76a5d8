package domain

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// Review is one crawled opinion about one product.
type Review struct {
	ID                 string          `json:"id"`
	ProductID          string          `json:"product_id"`
	CrawlSessionID     *string         `json:"crawl_session_id,omitempty"`
	ReviewerName       *string         `json:"reviewer_name,omitempty"`
	ReviewerID         *string         `json:"reviewer_id,omitempty"`
	Rating             int             `json:"rating"`
	Content            *string         `json:"content,omitempty"`
	ReviewDate         *time.Time      `json:"review_date,omitempty"`
	Platform           string          `json:"platform"`
	SourceURL          *string         `json:"source_url,omitempty"`
	IsVerifiedPurchase bool            `json:"is_verified_purchase"`
	HelpfulCount       int             `json:"helpful_count"`
	Images             []string        `json:"images"`
	RawData            json.RawMessage `json:"raw_data,omitempty"`
	CrawledAt          time.Time       `json:"crawled_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Known platforms. Other lowercase identifiers are accepted as-is.
const (
	PlatformShopee = "shopee"
	PlatformLazada = "lazada"
	PlatformTiki   = "tiki"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Text returns the trimmed review content, or "" when there is none.
func (r *Review) Text() string {
	if r.Content == nil {
		return ""
	}
	return strings.TrimSpace(*r.Content)
}

// HasContent reports whether the review has classifiable text. Blank content
// counts towards total_reviews but is never sent to the classifier.
func (r *Review) HasContent() bool {
	return r.Text() != ""
}

// ContentLength is the trimmed content length in runes.
func (r *Review) ContentLength() int {
	return utf8.RuneCountInString(r.Text())
}

// ActivityAt is the time used for recency: the platform review date when
// known, otherwise the crawl time.
func (r *Review) ActivityAt() time.Time {
	if r.ReviewDate != nil && !r.ReviewDate.IsZero() {
		return *r.ReviewDate
	}
	return r.CrawledAt
}

// NormalizePlatform lowercases and trims a platform identifier.
func NormalizePlatform(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// ReviewStatistics summarizes the raw reviews of a product.
type ReviewStatistics struct {
	TotalReviews       int         `json:"total_reviews"`
	VerifiedPurchases  int         `json:"verified_purchases"`
	AverageRating      float64     `json:"average_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"`
}

// NewRatingDistribution returns a distribution with every star bucket present.
func NewRatingDistribution() map[int]int {
	d := make(map[int]int, MaxRating)
	for star := MinRating; star <= MaxRating; star++ {
		d[star] = 0
	}
	return d
}

// PendingReview is a review selected for (re)classification.
type PendingReview struct {
	ReviewID  string
	ProductID string
	Content   string
	Rating    int
	Platform  string
	Verified  bool
}

// CrawledReview is a review as delivered by the crawler, before it is
// attached to a product.
type CrawledReview struct {
	ID                 *string         `json:"id,omitempty" validate:"omitempty,uuid"`
	ReviewerName       string          `json:"reviewer_name" validate:"max=1000"`
	ReviewerID         *string         `json:"reviewer_id,omitempty" validate:"omitempty,max=200"`
	Rating             float64         `json:"rating"`
	Content            *string         `json:"content,omitempty"`
	ReviewDate         *time.Time      `json:"review_date,omitempty"`
	SourceURL          *string         `json:"source_url,omitempty" validate:"omitempty,max=1000"`
	IsVerifiedPurchase bool            `json:"is_verified_purchase"`
	HelpfulCount       int             `json:"helpful_count" validate:"gte=0"`
	Images             []string        `json:"images,omitempty"`
	RawData            json.RawMessage `json:"raw_data,omitempty"`
}

// MaxReviewerNameLength is the stored reviewer name limit in runes.
const MaxReviewerNameLength = 200

// ToReview converts c into a Review of productID. Ratings are rounded down
// and clamped to the 1-5 star range; a missing platform defaults to shopee.
func (c CrawledReview) ToReview(productID string, crawlSessionID *string, platform string, crawledAt time.Time) Review {
	rating := int(c.Rating)
	rating = max(MinRating, min(MaxRating, rating))

	platform = NormalizePlatform(platform)
	if platform == "" {
		platform = PlatformShopee
	}

	r := Review{
		ProductID:          productID,
		CrawlSessionID:     crawlSessionID,
		ReviewerID:         c.ReviewerID,
		Rating:             rating,
		Content:            c.Content,
		ReviewDate:         c.ReviewDate,
		Platform:           platform,
		SourceURL:          c.SourceURL,
		IsVerifiedPurchase: c.IsVerifiedPurchase,
		HelpfulCount:       c.HelpfulCount,
		Images:             c.Images,
		RawData:            c.RawData,
		CrawledAt:          crawledAt.UTC(),
	}
	if c.ID != nil {
		r.ID = *c.ID
	}
	if name := strings.TrimSpace(c.ReviewerName); name != "" {
		name = Truncate(name, MaxReviewerNameLength)
		r.ReviewerName = &name
	}
	return r
}
