package middleware

import (
	"net/http"

	"github.com/garrettladley/paygate/internal/storage"
	"github.com/garrettladley/paygate/internal/xerrors"
	"github.com/garrettladley/paygate/internal/xhttp"
	"github.com/garrettladley/paygate/internal/xslog"
)

const reasonIPRateLimit = "ip_rate_limit"

// RateLimitWithBackend applies IP-based rate limiting.
func RateLimitWithBackend(backend storage.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := xhttp.GetRequestIP(r)

			result, err := backend.Allow(ctx, ip)
			if err != nil {
				xerrors.WriteError(ctx, w, xerrors.ServiceUnavailable(
					xerrors.WithMessage("rate limit check failed"),
					xerrors.WithCause(err),
				))
				return
			}

			if !result.Allowed {
				xslog.FromContext(ctx).InfoContext(ctx, "rate limited", xslog.IP(ip), xslog.Reason(reasonIPRateLimit))
				xerrors.WriteError(ctx, w, xerrors.TooManyRequests(
					xerrors.WithRetryAfter(result.RetryAfter),
					xerrors.WithReason(reasonIPRateLimit),
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
