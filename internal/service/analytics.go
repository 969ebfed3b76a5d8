package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/internal/llm"
	"github.com/reviewtrust/trustscore/internal/repository"
	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
	"github.com/reviewtrust/trustscore/pkg/logger"
)

// sampleCandidates is how many analyzed reviews are read to pick the
// prompt samples from.
const sampleCandidates = 50

// AnalyticsService produces LLM summaries of a product's reviews.
type AnalyticsService struct {
	analytics repository.AnalyticsRepository
	scores    repository.TrustScoreRepository
	reviews   repository.ReviewRepository
	analyses  repository.AnalysisRepository
	products  repository.ProductRepository
	provider  llm.Provider
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnalyticsService creates a new analytics service.
func NewAnalyticsService(
	analytics repository.AnalyticsRepository,
	scores repository.TrustScoreRepository,
	reviews repository.ReviewRepository,
	analyses repository.AnalysisRepository,
	products repository.ProductRepository,
	provider llm.Provider,
	timeout time.Duration,
	logger *slog.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		analytics: analytics,
		scores:    scores,
		reviews:   reviews,
		analyses:  analyses,
		products:  products,
		provider:  provider,
		timeout:   timeout,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetOrAnalyze returns the stored analytics of a product, producing them
// first when none exist or forceRefresh is set. Analysis requires a
// computed trust score.
func (s *AnalyticsService) GetOrAnalyze(ctx context.Context, productID string, forceRefresh bool) (*domain.ProductAnalytics, error) {
	if err := validateProductID(productID); err != nil {
		return nil, err
	}
	ctx = logger.WithProductID(ctx, productID)
	log := logger.WithContext(ctx, s.logger)

	if !forceRefresh {
		existing, err := s.analytics.GetByProductID(ctx, productID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get product analytics: %w", err)
		}
	}

	product, err := s.products.GetSummary(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	score, err := s.scores.GetByProductID(ctx, productID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("get trust score: %w", err)
	}
	if score == nil || !score.IsComputed() {
		return nil, fmt.Errorf("%w: %w", domain.ErrTrustScoreNotComputed,
			apperrors.Unprocessable("trust score must be computed before analytics"))
	}

	reviewStats, err := s.reviews.Statistics(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("review statistics: %w", err)
	}
	analysisStats, err := s.analyses.Statistics(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("analysis statistics: %w", err)
	}
	candidates, err := s.reviews.ListSamples(ctx, productID, sampleCandidates)
	if err != nil {
		return nil, fmt.Errorf("list sample reviews: %w", err)
	}
	samples := domain.SelectSamples(candidates)

	prompt := llm.AnalyticsPrompt(llm.PromptInput{
		Product:  product,
		Score:    score,
		Reviews:  reviewStats,
		Analyses: analysisStats,
		Samples:  samples,
	})

	llmCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	completion, err := s.provider.Complete(llmCtx, llm.AnalyticsSystemPrompt, prompt)
	if err != nil {
		log.ErrorContext(ctx, "llm analysis failed",
			slog.String("provider", s.provider.Name()),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.ServiceUnavailable("llm "+s.provider.Name(), err)
	}

	report, perr := llm.ParseReport(completion.Text)
	if perr != nil {
		log.WarnContext(ctx, "llm reply was not valid JSON, storing raw summary", slog.String("error", perr.Error()))
		report = domain.FallbackReport(completion.Text, perr)
	} else if missing := report.FillDefaults(); len(missing) > 0 {
		log.WarnContext(ctx, "llm reply missing sections", slog.Any("sections", missing))
	}

	model := completion.Model
	if model == "" {
		model = s.provider.Name()
	}
	pa := &domain.ProductAnalytics{
		ProductID:            productID,
		Report:               report,
		ModelUsed:            model,
		TotalReviewsAnalyzed: analysisStats.TotalAnalyzed,
		SampleReviewsCount:   len(samples),
		AnalyzedAt:           s.now(),
	}
	if err := s.analytics.Upsert(ctx, pa); err != nil {
		return nil, fmt.Errorf("store product analytics: %w", err)
	}

	log.InfoContext(ctx, "product analytics generated",
		slog.String("model", model),
		slog.Int("samples", len(samples)),
	)
	return pa, nil
}
