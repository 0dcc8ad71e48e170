package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/garrettladley/paygate/internal/bus"
	"github.com/garrettladley/paygate/internal/client/stripe"
	"github.com/garrettladley/paygate/internal/server/handler"
	"github.com/garrettladley/paygate/internal/service/checkout"
	"github.com/garrettladley/paygate/internal/service/webhook"
	"github.com/garrettladley/paygate/internal/storage"
	"github.com/garrettladley/paygate/internal/xhttp"
	go_json "github.com/goccy/go-json"
)

const testWebhookSecret = "whsec_test_secret"

const chargeSucceededBody = `{"id":"evt_1","object":"event","type":"charge.succeeded","data":{"object":{"id":"ch_1","object":"charge","metadata":{"orderId":"ord_1"},"receipt_url":"https://pay.stripe.com/receipts/ch_1"}}}`

type fakeSessions struct {
	err error
}

func (f fakeSessions) CreateSession(ctx context.Context, items checkout.LineItems, successURL, cancelURL string) (checkout.Session, error) {
	if f.err != nil {
		if errors.Is(f.err, context.DeadlineExceeded) {
			<-ctx.Done()
			return checkout.Session{}, ctx.Err()
		}
		return checkout.Session{}, f.err
	}
	return checkout.Session{
		ID:         "cs_test_1",
		URL:        "https://checkout.stripe.com/c/pay/cs_test_1?order=" + items.OrderID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	}, nil
}

type testServer struct {
	handler http.Handler

	mu       sync.Mutex
	messages []bus.Message
}

func (s *testServer) published() []bus.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bus.Message(nil), s.messages...)
}

type testOptions struct {
	sessions       checkout.SessionCreator
	busErr         error
	timeout        time.Duration
	eventTypes     webhook.EventTypes
	rateLimiter    storage.RateLimiter
	trustedProxies xhttp.TrustedProxies
}

func newTestServer(t *testing.T, opts testOptions) *testServer {
	t.Helper()

	s := &testServer{}

	memBus := bus.NewMemoryBus()
	for _, pattern := range []string{bus.PatternPaymentSucceeded, bus.PatternPaymentFailed} {
		memBus.Subscribe(pattern, func(_ context.Context, msg bus.Message) error {
			if opts.busErr != nil {
				return opts.busErr
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			s.messages = append(s.messages, msg)
			return nil
		})
	}

	backend := storage.NewMemoryBackend(1000, 1000)
	t.Cleanup(func() { _ = backend.Close() })

	sessions := opts.sessions
	if sessions == nil {
		sessions = fakeSessions{}
	}
	var limiter storage.RateLimiter = backend
	if opts.rateLimiter != nil {
		limiter = opts.rateLimiter
	}

	s.handler = NewHandler(Deps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Checkout: checkout.NewProcessor(sessions, checkout.Config{
			SuccessURL: "https://shop.example/payments/success",
			CancelURL:  "https://shop.example/payments/cancel",
			Timeout:    opts.timeout,
		}),
		Webhook: webhook.NewProcessor(
			stripe.NewVerifier(testWebhookSecret),
			backend,
			memBus,
			webhook.Config{EventTypes: opts.eventTypes},
		),
		RateLimiter:    limiter,
		TrustedProxies: opts.trustedProxies,
		HealthChecks: map[string]handler.Pinger{
			"backend": backend,
		},
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequestWithContext(t.Context(), method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func signedHeader(body []byte, secret string) http.Header {
	h := http.Header{}
	h.Set(stripe.SignatureHeader, stripe.Sign(body, secret, time.Now()))
	return h
}

func TestWebhookChargeSucceededPublishesOnce(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testOptions{})
	body := []byte(chargeSucceededBody)

	rec := s.do(t, http.MethodPost, "/payments/webhook", body, signedHeader(body, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	msgs := s.published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}

	data, err := go_json.Marshal(msgs[0].Data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	want := `{"stripeChargeId":"ch_1","orderId":"ord_1","receiptUrl":"https://pay.stripe.com/receipts/ch_1"}`
	if string(data) != want {
		t.Errorf("payload = %s, want %s", data, want)
	}
	if msgs[0].Pattern != bus.PatternPaymentSucceeded {
		t.Errorf("pattern = %q, want %q", msgs[0].Pattern, bus.PatternPaymentSucceeded)
	}
}

func TestWebhookRejections(t *testing.T) {
	t.Parallel()

	body := []byte(chargeSucceededBody)
	tampered := []byte(strings.Replace(chargeSucceededBody, "ord_1", "ord_2", 1))

	tests := []struct {
		name   string
		body   []byte
		header http.Header
	}{
		{name: "invalid signature", body: body, header: signedHeader(body, "whsec_wrong")},
		{name: "tampered body", body: tampered, header: signedHeader(body, testWebhookSecret)},
		{name: "missing signature", body: body, header: http.Header{}},
		{name: "oversized body", body: bytes.Repeat([]byte("a"), handler.DefaultMaxWebhookBodyBytes+1), header: http.Header{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, testOptions{})

			rec := s.do(t, http.MethodPost, "/payments/webhook", tt.body, tt.header)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if n := len(s.published()); n != 0 {
				t.Errorf("published %d messages, want 0", n)
			}
		})
	}
}

func TestWebhookIgnoredAndDuplicate(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testOptions{})

	other := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_1"}}}`)
	rec := s.do(t, http.MethodPost, "/payments/webhook", other, signedHeader(other, testWebhookSecret))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"result":"ignored"`) {
		t.Errorf("ignored event: status = %d body = %s", rec.Code, rec.Body.String())
	}

	body := []byte(chargeSucceededBody)
	for i, want := range []string{"handled", "duplicate"} {
		rec := s.do(t, http.MethodPost, "/payments/webhook", body, signedHeader(body, testWebhookSecret))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"result":"`+want+`"`) {
			t.Errorf("delivery %d: status = %d body = %s, want result %s", i, rec.Code, rec.Body.String(), want)
		}
	}

	if n := len(s.published()); n != 1 {
		t.Errorf("published %d messages, want 1", n)
	}
}

func TestWebhookBusFailureAsksForRedelivery(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testOptions{busErr: errors.New("bus unreachable")})
	body := []byte(chargeSucceededBody)

	rec := s.do(t, http.MethodPost, "/payments/webhook", body, signedHeader(body, testWebhookSecret))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if strings.Contains(rec.Body.String(), "bus unreachable") {
		t.Errorf("internal cause leaked: %s", rec.Body.String())
	}
}

func TestCreatePaymentSession(t *testing.T) {
	t.Parallel()

	type response struct {
		CancelURL  string            `json:"cancelUrl"`
		SuccessURL string            `json:"successUrl"`
		URL        string            `json:"url"`
		Message    string            `json:"message"`
		Fields     map[string]string `json:"fields"`
	}

	validBody := `{"orderId":"ord_1","currency":"usd","items":[{"name":"Book","price":19.99,"quantity":2}]}`

	tests := []struct {
		name       string
		body       string
		opts       testOptions
		wantStatus int
		want       response
	}{
		{
			name:       "created",
			body:       validBody,
			wantStatus: http.StatusCreated,
			want: response{
				CancelURL:  "https://shop.example/payments/cancel",
				SuccessURL: "https://shop.example/payments/success",
				URL:        "https://checkout.stripe.com/c/pay/cs_test_1?order=ord_1",
			},
		},
		{
			name:       "validation",
			body:       `{"orderId":"ord_1","currency":"usd","items":[{"name":"Book","price":1,"quantity":0}]}`,
			wantStatus: http.StatusBadRequest,
			want: response{
				Message: "validation failed",
				Fields:  map[string]string{"items[0].quantity": "must be at least 1"},
			},
		},
		{
			name:       "empty items",
			body:       `{"orderId":"ord_1","currency":"usd","items":[]}`,
			wantStatus: http.StatusBadRequest,
			want: response{
				Message: "validation failed",
				Fields:  map[string]string{"items": "must contain at least one item"},
			},
		},
		{
			name:       "bad json",
			body:       `{"orderId":`,
			wantStatus: http.StatusBadRequest,
			want:       response{Message: "invalid JSON body"},
		},
		{
			name:       "upstream error",
			body:       validBody,
			opts:       testOptions{sessions: fakeSessions{err: errors.New("stripe: api_error")}},
			wantStatus: http.StatusBadGateway,
			want:       response{Message: "payment processor unavailable"},
		},
		{
			name:       "upstream timeout",
			body:       validBody,
			opts:       testOptions{sessions: fakeSessions{err: context.DeadlineExceeded}, timeout: 10 * time.Millisecond},
			wantStatus: http.StatusGatewayTimeout,
			want:       response{Message: "payment processor timed out"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, tt.opts)

			rec := s.do(t, http.MethodPost, "/payments/create-payment-session", []byte(tt.body), http.Header{
				xhttp.ContentType: []string{xhttp.ApplicationJSON},
			})
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}

			var got response
			if err := go_json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("response mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStaticRoutes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{method: http.MethodGet, path: "/payments/success", wantStatus: http.StatusOK, wantBody: `{"status":"success"}`},
		{method: http.MethodGet, path: "/payments/cancel", wantStatus: http.StatusOK, wantBody: `{"status":"cancel"}`},
		{method: http.MethodGet, path: "/health", wantStatus: http.StatusOK, wantBody: `"status":"ok"`},
		{method: http.MethodPost, path: "/payments/success", wantStatus: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/payments/webhook", wantStatus: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
	}

	s := newTestServer(t, testOptions{})
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()
			rec := s.do(t, tt.method, tt.path, nil, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", rec.Body.String(), tt.wantBody)
			}
			if rec.Header().Get(xhttp.XRequestID) == "" {
				t.Error("missing request id header")
			}
			if rec.Header().Get(xhttp.XContentTypeOpts) != "nosniff" {
				t.Error("missing security headers")
			}
		})
	}
}

func TestRateLimitByClientIP(t *testing.T) {
	t.Parallel()

	const peer = "203.0.113.7"
	tests := []struct {
		name        string
		proxies     []string
		wantLimited int
	}{
		{name: "forwarded-for from an untrusted peer is ignored", wantLimited: 49},
		{name: "forwarded-for from a trusted proxy is honored", proxies: []string{peer}, wantLimited: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			proxies, err := xhttp.ParseTrustedProxies(tt.proxies)
			if err != nil {
				t.Fatalf("ParseTrustedProxies() error = %v", err)
			}
			limiter := storage.NewMemoryBackend(0.001, 1)
			t.Cleanup(func() { _ = limiter.Close() })
			s := newTestServer(t, testOptions{rateLimiter: limiter, trustedProxies: proxies})

			limited := 0
			for i := range 50 {
				req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/payments/success", nil)
				req.RemoteAddr = peer + ":5555"
				req.Header.Set(xhttp.XForwardedFor, fmt.Sprintf("198.51.100.%d", i+1))
				rec := httptest.NewRecorder()
				s.handler.ServeHTTP(rec, req)
				if rec.Code == http.StatusTooManyRequests {
					limited++
				}
			}
			if limited != tt.wantLimited {
				t.Errorf("limited %d of 50 requests, want %d", limited, tt.wantLimited)
			}
		})
	}
}
