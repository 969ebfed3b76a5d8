package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reviewtrust/trustscore/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation id, trace/span ids and, for product routes, the product id.
// Mount it after RequestLogging and Tracing, and inside the chi router so the
// {productId} URL parameter is resolvable.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := chi.URLParamFromCtx(ctx, "productId"); id != "" {
				ctx = logger.WithProductID(ctx, id)
			}

			enriched := logger.WithContext(ctx, base)
			next.ServeHTTP(w, r.WithContext(logger.NewContext(ctx, enriched)))
		})
	}
}
