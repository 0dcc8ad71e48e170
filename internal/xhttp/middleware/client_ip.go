package middleware

import (
	"net/http"

	"github.com/garrettladley/paygate/internal/xcontext"
	"github.com/garrettladley/paygate/internal/xhttp"
)

// ClientIP stores the resolved client address for rate limiting and logs.
func ClientIP(proxies xhttp.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := xcontext.WithClientIP(r.Context(), proxies.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
