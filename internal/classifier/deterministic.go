package classifier

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/reviewtrust/trustscore/internal/domain"
)

// DeterministicModelVersion is recorded on analyses produced by Deterministic.
const DeterministicModelVersion = "lexicon-1.0"

var (
	positiveTerms = []string{
		"good", "great", "excellent", "love", "perfect", "recommend", "fast delivery", "worth",
		"tốt", "tuyệt vời", "hài lòng", "đẹp", "chất lượng", "nhanh", "ưng", "đáng tiền", "xuất sắc",
	}
	negativeTerms = []string{
		"bad", "terrible", "broken", "fake", "refund", "worst", "disappointed", "poor",
		"tệ", "kém", "hỏng", "lỗi", "thất vọng", "hàng giả", "chậm", "không giống", "dở",
	}
	spamTerms = []string{
		"click", "free", "inbox", "follow", "zalo", "telegram", "promo code",
		"mua ngay", "khuyến mãi", "giảm giá", "liên hệ", "kết bạn",
	}

	urlPattern   = regexp.MustCompile(`(?i)(https?://|www\.)\S+`)
	phonePattern = regexp.MustCompile(`\d[\d .-]{8,}\d`)
)

// Deterministic classifies with fixed lexicon rules. It performs no I/O and
// returns the same result for the same request.
type Deterministic struct {
	threshold float64
}

// NewDeterministic creates a lexicon classifier flagging confidences under
// lowConfidenceThreshold.
func NewDeterministic(lowConfidenceThreshold float64) *Deterministic {
	return &Deterministic{threshold: lowConfidenceThreshold}
}

// Classify implements Classifier.
func (d *Deterministic) Classify(ctx context.Context, req Request) (*domain.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.ToLower(strings.TrimSpace(req.Content))

	probs := sentimentProbabilities(text, req.Hints.Rating)
	label, score, conf := probs.Sentiment()
	isSpam, spamScore, spamConf := Spam(spamProbability(req.Content, text, req.Hints.Verified))

	c := &domain.Classification{
		SentimentLabel:        label,
		SentimentScore:        domain.Round(score, 4),
		SentimentConfidence:   domain.Round(conf, 4),
		IsSpam:                isSpam,
		SpamScore:             domain.Round(spamScore, 4),
		SpamConfidence:        domain.Round(spamConf, 4),
		SentimentModelVersion: DeterministicModelVersion,
		SpamModelVersion:      DeterministicModelVersion,
		Raw:                   map[string]any{"probabilities": probs},
	}
	flagLowConfidence(c, d.threshold)
	return c, nil
}

// sentimentProbabilities weighs lexicon hits and the star rating. With no
// signal at all the neutral class wins.
func sentimentProbabilities(text string, rating int) Probabilities {
	pos := 1 + 2*float64(countTerms(text, positiveTerms))
	neg := 1 + 2*float64(countTerms(text, negativeTerms))
	neu := 2.0

	if rating >= domain.MinRating && rating <= domain.MaxRating {
		switch {
		case rating > 3:
			pos += float64(rating - 3)
		case rating < 3:
			neg += float64(3 - rating)
		default:
			neu++
		}
	}

	total := pos + neg + neu
	return Probabilities{
		Positive: domain.Round(pos/total, 4),
		Neutral:  domain.Round(neu/total, 4),
		Negative: domain.Round(neg/total, 4),
	}
}

// spamProbability scores promotional and low-effort patterns.
func spamProbability(raw, text string, verified bool) float64 {
	p := 0.05
	if urlPattern.MatchString(text) {
		p += 0.35
	}
	if phonePattern.MatchString(text) {
		p += 0.25
	}
	if longestRun(text) >= 5 {
		p += 0.15
	}
	if shouting(raw) {
		p += 0.15
	}
	p += 0.2 * float64(min(countTerms(text, spamTerms), 2))
	if verified {
		p -= 0.1
	}
	return p
}

// shouting reports whether most letters of s are upper case.
func shouting(s string) bool {
	var letters, upper int
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 8 && upper*10 >= letters*8
}

// longestRun returns the length of the longest run of one repeated
// non-space rune.
func longestRun(s string) int {
	best, run := 0, 0
	var prev rune = -1
	for _, r := range s {
		if r == prev && !unicode.IsSpace(r) {
			run++
		} else {
			run = 1
		}
		prev = r
		best = max(best, run)
	}
	return best
}

func countTerms(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		n += strings.Count(text, t)
	}
	return n
}
