package middleware

import (
	"log/slog"
	"net/http"

	"github.com/garrettladley/paygate/internal/xcontext"
	"github.com/garrettladley/paygate/internal/xslog"
)

// Logger scopes base to the request (request id and client ip) and stores it in
// the request context. Must run AFTER RequestID middleware.
func Logger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attrs := make([]slog.Attr, 0, 2)
			if id, ok := xcontext.RequestID(r.Context()); ok {
				attrs = append(attrs, xslog.RequestID(id))
			}
			attrs = append(attrs, xslog.RequestIP(r))

			ctx := xslog.WithLogger(r.Context(), base)
			ctx = xslog.WithAttrs(ctx, attrs...)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
