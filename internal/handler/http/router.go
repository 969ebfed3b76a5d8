package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reviewtrust/trustscore/pkg/health"
	"github.com/reviewtrust/trustscore/pkg/middleware"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	// APIKeys guard the write endpoints. Empty disables the check.
	APIKeys           []string
	PprofAllowedCIDRs []string
	// CacheMaxAge is the Cache-Control max-age of score reads, in seconds.
	CacheMaxAge int
}

// Services are the use cases exposed over HTTP.
type Services struct {
	Pipeline    BatchProcessor
	Scheduler   PendingDrainer
	TrustScores TrustScoreService
	Reviews     ReviewService
	Analytics   AnalyticsService
}

// NewRouter creates a chi router with all trust score service routes registered.
func NewRouter(svcs Services, healthHandler *health.Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.PrometheusMetrics())

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	requireKey := middleware.RequireAPIKey(cfg.APIKeys)
	cache := middleware.CacheControl(cfg.CacheMaxAge)

	reviewHandler := NewReviewHandler(svcs.Pipeline, svcs.Reviews, logger)
	scoreHandler := NewTrustScoreHandler(svcs.TrustScores, svcs.Scheduler, logger)
	analyticsHandler := NewAnalyticsHandler(svcs.Analytics, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.RequestLogger(logger))

		r.With(requireKey).Post("/reviews/process", reviewHandler.ProcessPending)

		r.Route("/trust-scores", func(r chi.Router) {
			r.With(cache).Get("/", scoreHandler.ListByRange)
			r.With(cache).Get("/top", scoreHandler.ListTop)
			r.With(requireKey).Post("/recompute-pending", scoreHandler.RecomputePending)

			r.Route("/{productId}", func(r chi.Router) {
				r.Use(middleware.RequestLogger(logger))

				r.With(cache).Get("/", scoreHandler.Get)
				r.With(cache).Get("/breakdown", scoreHandler.Breakdown)
				r.With(requireKey).Post("/recompute", scoreHandler.Recompute)
				r.With(requireKey).Delete("/", scoreHandler.Delete)
			})
		})

		r.Route("/products/{productId}", func(r chi.Router) {
			r.Use(middleware.RequestLogger(logger))

			r.With(requireKey).Post("/reviews", reviewHandler.Ingest)
			r.Get("/reviews/statistics", reviewHandler.Statistics)
			r.Get("/analytics", analyticsHandler.Get)
		})
	})

	return r
}
