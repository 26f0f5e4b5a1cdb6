package middleware

import (
	"log/slog"
	"net/http"

	"github.com/shopflow/orderflow/pkg/logger"
)

// UserHeader identifies the calling customer when an upstream gateway has
// already authenticated the request.
const UserHeader = "X-User-ID"

// RequestLogger stores a logger carrying correlation_id, user_id, trace_id and
// span_id in the request context. Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID := r.Header.Get(UserHeader); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
