package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garrettladley/paygate/internal/xcontext"
	"github.com/garrettladley/paygate/internal/xhttp"
)

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/", nil))

	if got := strings.Join(order, ","); got != "first,second,handler" {
		t.Errorf("order = %s, want first,second,handler", got)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		inbound string
		opts    []RequestIDOption
		want    string
	}{
		{name: "keeps inbound", inbound: "req-123", want: "req-123"},
		{name: "custom func", opts: []RequestIDOption{WithIDFunc(func(*http.Request) string { return "fixed" })}, want: "fixed"},
		{name: "rejects oversized inbound", inbound: strings.Repeat("a", 200)},
		{name: "mints when absent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var fromCtx string
			h := RequestID(tt.opts...)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				fromCtx, _ = xcontext.RequestID(r.Context())
			}))

			req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/", nil)
			if tt.inbound != "" {
				req.Header.Set(xhttp.XRequestID, tt.inbound)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(xhttp.XRequestID)
			if got != fromCtx {
				t.Errorf("header id %q != context id %q", got, fromCtx)
			}
			if tt.want != "" && got != tt.want {
				t.Errorf("request id = %q, want %q", got, tt.want)
			}
			if tt.want == "" && (got == "" || got == tt.inbound) {
				t.Errorf("request id = %q, want a fresh id", got)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Errorf("panic value leaked into body: %q", rec.Body.String())
	}
	if got := rec.Header().Get(xhttp.ContentType); got != xhttp.ApplicationJSON {
		t.Errorf("Content-Type = %q, want %q", got, xhttp.ApplicationJSON)
	}
}

func TestChainLeavesSliceIntact(t *testing.T) {
	t.Parallel()

	noop := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Add("X-Trace", name)
				next.ServeHTTP(w, r)
			})
		}
	}
	mws := []func(http.Handler) http.Handler{noop("a"), noop("b")}

	for range 2 {
		rec := httptest.NewRecorder()
		Chain(http.NotFoundHandler(), mws...).ServeHTTP(rec, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/", nil))
		if got := strings.Join(rec.Header().Values("X-Trace"), ","); got != "a,b" {
			t.Fatalf("trace = %s, want a,b", got)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		xhttp.XContentTypeOpts: "nosniff",
		xhttp.XFrameOpts:       "DENY",
		xhttp.CacheControl:     "no-store",
		xhttp.ReferrerPolicy:   "no-referrer",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestLoggingCapturesStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), Logger(logger), Logging)

	req := httptest.NewRequestWithContext(t.Context(), http.MethodPost, "/payments/webhook", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{`"level":"ERROR"`, `"status":503`, `"path":"/payments/webhook"`, `"ip":"192.0.2.1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestClientIPStoresResolvedAddress(t *testing.T) {
	t.Parallel()

	proxies, err := xhttp.ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies() error = %v", err)
	}

	var got string
	h := ClientIP(proxies)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = xhttp.GetRequestIP(r)
	}))

	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:443"
	req.Header.Set(xhttp.XForwardedFor, "203.0.113.9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "203.0.113.9" {
		t.Errorf("GetRequestIP() = %q, want %q", got, "203.0.113.9")
	}
}
