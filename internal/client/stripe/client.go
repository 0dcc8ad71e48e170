package stripe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"

	"github.com/garrettladley/paygate/internal/service/checkout"
)

var _ checkout.SessionCreator = (*Client)(nil)

const defaultMaxNetworkRetries = 2

// Client is a Stripe API client bound to one secret key.
type Client struct {
	api *client.API
}

type options struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int64
}

type Option func(*options)

// WithBaseURL points the client at another API host, such as stripe-mock.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMaxNetworkRetries(n int64) Option {
	return func(o *options) { o.maxRetries = n }
}

func New(secretKey string, opts ...Option) *Client {
	o := options{
		logger:     slog.Default(),
		maxRetries: defaultMaxNetworkRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &stripe.BackendConfig{
		HTTPClient:        o.httpClient,
		LeveledLogger:     &leveledLogger{logger: o.logger},
		MaxNetworkRetries: stripe.Int64(o.maxRetries),
	}
	if o.baseURL != "" {
		cfg.URL = stripe.String(o.baseURL)
	}

	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	})

	return &Client{api: api}
}

// CreateSession opens a hosted checkout session in payment mode. The order id
// travels as the client reference and as payment intent metadata so it comes
// back on charge events.
func (c *Client) CreateSession(ctx context.Context, items checkout.LineItems, successURL, cancelURL string) (checkout.Session, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, len(items.Items))
	for i, item := range items.Items {
		lineItems[i] = &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(items.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(items.OrderID),
		LineItems:         lineItems,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: items.Metadata,
		},
	}
	params.Context = ctx

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return checkout.Session{}, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return checkout.Session{
		ID:         session.ID,
		URL:        session.URL,
		SuccessURL: session.SuccessURL,
		CancelURL:  session.CancelURL,
	}, nil
}

// leveledLogger routes stripe-go's logging into slog. Per-request chatter
// that stripe-go logs at info is demoted to debug.
type leveledLogger struct {
	logger *slog.Logger
}

var _ stripe.LeveledLoggerInterface = (*leveledLogger)(nil)

func (l *leveledLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Infof(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}
