package middleware

import (
	"net/http"

	"github.com/garrettladley/paygate/internal/xcontext"
	"github.com/garrettladley/paygate/internal/xhttp"
	"github.com/google/uuid"
)

const maxInboundRequestIDLen = 128

type RequestIDMiddleware struct {
	IDFunc func(*http.Request) string
}

type RequestIDOption func(*RequestIDMiddleware)

func WithIDFunc(fn func(*http.Request) string) RequestIDOption {
	return func(m *RequestIDMiddleware) { m.IDFunc = fn }
}

// defaultRequestID keeps an id set by an upstream proxy and mints one otherwise.
func defaultRequestID(r *http.Request) string {
	if id := r.Header.Get(xhttp.XRequestID); id != "" && len(id) <= maxInboundRequestIDLen {
		return id
	}
	return uuid.New().String()
}

func RequestID(opts ...RequestIDOption) func(http.Handler) http.Handler {
	middleware := &RequestIDMiddleware{IDFunc: defaultRequestID}

	for _, opt := range opts {
		opt(middleware)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := middleware.IDFunc(r)
			ctx := xcontext.WithRequestID(r.Context(), id)
			xhttp.SetHeaderRequestID(w, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
