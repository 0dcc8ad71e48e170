package server

import (
	"log/slog"
	"net/http"

	"github.com/garrettladley/paygate/internal/server/handler"
	servermw "github.com/garrettladley/paygate/internal/server/middleware"
	"github.com/garrettladley/paygate/internal/service/checkout"
	"github.com/garrettladley/paygate/internal/service/webhook"
	"github.com/garrettladley/paygate/internal/storage"
	"github.com/garrettladley/paygate/internal/xhttp"
	"github.com/garrettladley/paygate/internal/xhttp/middleware"
)

type Deps struct {
	Logger              *slog.Logger
	Checkout            checkout.Service
	Webhook             webhook.Service
	RateLimiter         storage.RateLimiter
	HealthChecks        map[string]handler.Pinger
	MaxWebhookBodyBytes int64
	// TrustedProxies may set X-Forwarded-For; nil trusts no one.
	TrustedProxies xhttp.TrustedProxies
}

// NewHandler wires every route behind the common middleware chain.
func NewHandler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	checkoutHandler := handler.NewCheckout(d.Checkout)
	webhookHandler := handler.NewWebhook(d.Webhook, d.MaxWebhookBodyBytes)
	healthHandler := handler.NewHealth(d.HealthChecks)

	mux := http.NewServeMux()

	// Customer-facing routes - protected by IP rate limiter
	paymentsMux := http.NewServeMux()
	paymentsMux.HandleFunc("POST /payments/create-payment-session", checkoutHandler.HandleCreatePaymentSession)
	paymentsMux.HandleFunc("GET /payments/success", handler.HandleSuccess)
	paymentsMux.HandleFunc("GET /payments/cancel", handler.HandleCancel)
	var paymentsWrapped http.Handler = paymentsMux
	if d.RateLimiter != nil {
		paymentsWrapped = middleware.Chain(paymentsMux, servermw.RateLimitWithBackend(d.RateLimiter))
	}
	mux.Handle("/payments/create-payment-session", paymentsWrapped)
	mux.Handle("/payments/success", paymentsWrapped)
	mux.Handle("/payments/cancel", paymentsWrapped)

	// Stripe deliveries - authenticated by signature, never rate limited
	mux.HandleFunc("POST /payments/webhook", webhookHandler.HandleWebhook)

	mux.HandleFunc("GET /health", healthHandler.HandleHealth)

	return middleware.Chain(mux,
		middleware.ClientIP(d.TrustedProxies),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Logging,
		middleware.Recovery,
		middleware.SecurityHeaders,
	)
}
