package middleware

import (
	"net/http"

	"github.com/garrettladley/paygate/internal/xerrors"
	"github.com/garrettladley/paygate/internal/xslog"
)

// Recovery turns a panic into a JSON 500 so callers see the same error shape as
// any other failure.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			ctx := r.Context()
			xslog.FromContext(ctx).ErrorContext(ctx, "panic recovered",
				xslog.RequestGroup(r),
				xslog.ErrorGroupWithStack(rec),
			)
			xerrors.WriteError(ctx, w, xerrors.Internal())
		}()
		next.ServeHTTP(w, r)
	})
}
