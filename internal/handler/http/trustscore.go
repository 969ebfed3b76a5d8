package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/internal/service"
	"github.com/reviewtrust/trustscore/pkg/httputil"
	"github.com/reviewtrust/trustscore/pkg/pagination"
)

// TrustScoreService is the trust score use case set served over HTTP.
type TrustScoreService interface {
	RecomputeTrustScore(ctx context.Context, productID string) (*domain.TrustScore, error)
	GetTrustScore(ctx context.Context, productID string) (*domain.TrustScore, error)
	Breakdown(ctx context.Context, productID string) (*domain.TrustScoreBreakdown, error)
	DeleteTrustScore(ctx context.Context, productID string) error
	ListTop(ctx context.Context, limit, minReviews int) ([]domain.TrustScore, error)
	ListByRange(ctx context.Context, lo, hi float64, page, perPage int) ([]domain.TrustScore, int, error)
}

// PendingDrainer recomputes products marked pending.
type PendingDrainer interface {
	DrainPending(ctx context.Context) (*service.DrainResult, error)
}

// TrustScoreHandler handles HTTP requests for trust score endpoints.
type TrustScoreHandler struct {
	scores  TrustScoreService
	drainer PendingDrainer
	logger  *slog.Logger
}

// NewTrustScoreHandler creates a new trust score HTTP handler.
func NewTrustScoreHandler(scores TrustScoreService, drainer PendingDrainer, logger *slog.Logger) *TrustScoreHandler {
	return &TrustScoreHandler{
		scores:  scores,
		drainer: drainer,
		logger:  logger,
	}
}

// Recompute handles POST /api/v1/trust-scores/{productId}/recompute
func (h *TrustScoreHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, "product id", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	ts, err := h.scores.RecomputeTrustScore(r.Context(), productID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, ts)
}

// Get handles GET /api/v1/trust-scores/{productId}
func (h *TrustScoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, "product id", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	ts, err := h.scores.GetTrustScore(r.Context(), productID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, ts)
}

// Breakdown handles GET /api/v1/trust-scores/{productId}/breakdown
func (h *TrustScoreHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, "product id", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	b, err := h.scores.Breakdown(r.Context(), productID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, b)
}

// Delete handles DELETE /api/v1/trust-scores/{productId}
func (h *TrustScoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, "product id", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	if err := h.scores.DeleteTrustScore(r.Context(), productID); err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTop handles GET /api/v1/trust-scores/top
func (h *TrustScoreHandler) ListTop(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", service.DefaultTopLimit)
	if !ok {
		return
	}
	minReviews, ok := intParam(w, r, "min_reviews", 0)
	if !ok {
		return
	}

	scores, err := h.scores.ListTop(r.Context(), limit, minReviews)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if scores == nil {
		scores = []domain.TrustScore{}
	}

	httputil.WriteData(w, http.StatusOK, scores)
}

// ListByRange handles GET /api/v1/trust-scores?min_score=&max_score=
func (h *TrustScoreHandler) ListByRange(w http.ResponseWriter, r *http.Request) {
	lo, ok := floatParam(w, r, "min_score", 0)
	if !ok {
		return
	}
	hi, ok := floatParam(w, r, "max_score", 100)
	if !ok {
		return
	}
	params := pagination.FromRequest(r)

	scores, total, err := h.scores.ListByRange(r.Context(), lo, hi, params.Page, params.PerPage)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(scores, total, params))
}

// RecomputePending handles POST /api/v1/trust-scores/recompute-pending
func (h *TrustScoreHandler) RecomputePending(w http.ResponseWriter, r *http.Request) {
	result, err := h.drainer.DrainPending(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeParamError(w, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func floatParam(w http.ResponseWriter, r *http.Request, name string, def float64) (float64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		writeParamError(w, name+" must be a number")
		return 0, false
	}
	return f, true
}

func writeParamError(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: message},
	})
}
