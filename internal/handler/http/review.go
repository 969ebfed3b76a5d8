package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/internal/service"
	"github.com/reviewtrust/trustscore/pkg/httputil"
	"github.com/reviewtrust/trustscore/pkg/validator"
)

// BatchProcessor runs one analysis batch.
type BatchProcessor interface {
	ProcessPendingReviews(ctx context.Context, req service.ProcessRequest) (*service.BatchResult, error)
}

// ReviewService stores crawled reviews and reports on them.
type ReviewService interface {
	IngestReviews(ctx context.Context, productID string, reviews []domain.Review) (int, error)
	Statistics(ctx context.Context, productID string) (*service.ReviewStatistics, error)
}

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	pipeline BatchProcessor
	reviews  ReviewService
	logger   *slog.Logger
	now      func() time.Time
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(pipeline BatchProcessor, reviews ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		pipeline: pipeline,
		reviews:  reviews,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// IngestReviewsRequest is the JSON request body for storing crawled reviews.
type IngestReviewsRequest struct {
	CrawlSessionID *string                `json:"crawl_session_id,omitempty" validate:"omitempty,uuid"`
	Platform       string                 `json:"platform" validate:"omitempty,max=50"`
	Reviews        []domain.CrawledReview `json:"reviews" validate:"required,min=1,max=1000,dive"`
}

// ProcessPending handles POST /api/v1/reviews/process
//
// An empty body processes one batch of the configured size across all products.
func (h *ReviewHandler) ProcessPending(w http.ResponseWriter, r *http.Request) {
	var req service.ProcessRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.pipeline.ProcessPendingReviews(r.Context(), req)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// Ingest handles POST /api/v1/products/{productId}/reviews
func (h *ReviewHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, "product id", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	var req IngestReviewsRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	crawledAt := h.now()
	reviews := make([]domain.Review, len(req.Reviews))
	for i, c := range req.Reviews {
		reviews[i] = c.ToReview(productID, req.CrawlSessionID, req.Platform, crawledAt)
	}

	inserted, err := h.reviews.IngestReviews(r.Context(), productID, reviews)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, map[string]any{
		"product_id": productID,
		"received":   len(reviews),
		"inserted":   inserted,
	})
}

// Statistics handles GET /api/v1/products/{productId}/reviews/statistics
func (h *ReviewHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, "product id", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	stats, err := h.reviews.Statistics(r.Context(), productID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, stats)
}
