package middleware

import (
	"log/slog"
	"net/http"

	"github.com/harborline/storefront/pkg/logger"
)

// RequestLogger builds a request-scoped logger enriched with correlation_id,
// user_id, trace_id, and span_id, and stores it in context. Downstream
// handlers retrieve it with logger.FromContext. Mount after RequestLogging
// (which sets the correlation ID).
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			enriched := logger.WithContext(ctx, base)
			ctx = logger.NewContext(ctx, enriched)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
