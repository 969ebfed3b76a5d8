package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/pkg/httputil"
)

// AnalyticsService produces LLM summaries of a product's reviews.
type AnalyticsService interface {
	GetOrAnalyze(ctx context.Context, productID string, forceRefresh bool) (*domain.ProductAnalytics, error)
}

// AnalyticsHandler handles HTTP requests for product analytics.
type AnalyticsHandler struct {
	analytics AnalyticsService
	logger    *slog.Logger
}

// NewAnalyticsHandler creates a new analytics HTTP handler.
func NewAnalyticsHandler(analytics AnalyticsService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, logger: logger}
}

// Get handles GET /api/v1/products/{productId}/analytics?refresh=
func (h *AnalyticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, "product id", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	refresh := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeParamError(w, "refresh must be a boolean")
			return
		}
		refresh = b
	}

	pa, err := h.analytics.GetOrAnalyze(r.Context(), productID, refresh)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, pa)
}
