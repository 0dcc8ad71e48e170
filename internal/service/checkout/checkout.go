package checkout

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// MetadataOrderID is the payment intent metadata key that carries the order id
// back to us on charge webhooks.
const MetadataOrderID = "orderId"

var (
	ErrValidation = errors.New("invalid checkout request")
	ErrUpstream   = errors.New("payment processor request failed")
)

type Item struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type Request struct {
	OrderID  string `json:"orderId"`
	Currency string `json:"currency"`
	Items    []Item `json:"items"`
}

type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

// LineItems is a Request in the processor's shape: lower-cased currency,
// minor-unit amounts and the metadata to attach to the payment intent.
type LineItems struct {
	OrderID  string
	Currency string
	Items    []LineItem
	Metadata map[string]string
}

// Session is what the processor hands back for a created checkout session.
type Session struct {
	ID         string
	URL        string
	SuccessURL string
	CancelURL  string
}

type Result struct {
	CancelURL  string `json:"cancelUrl"`
	SuccessURL string `json:"successUrl"`
	URL        string `json:"url"`
}

type SessionCreator interface {
	CreateSession(ctx context.Context, items LineItems, successURL, cancelURL string) (Session, error)
}

type Service interface {
	// CreatePaymentSession translates the request and opens a hosted checkout session.
	// Returns a *ValidationError for bad input and an *UpstreamError when the
	// processor cannot be reached or rejects the call.
	CreatePaymentSession(ctx context.Context, req Request) (Result, error)
}

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type UpstreamError struct {
	Timeout bool
	Cause   error
}

func (e *UpstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timed out: %v", ErrUpstream, e.Cause)
	}
	return fmt.Sprintf("%s: %v", ErrUpstream, e.Cause)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Cause} }
