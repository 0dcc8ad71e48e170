package stripe

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v80/webhook"

	paywebhook "github.com/garrettladley/paygate/internal/service/webhook"
)

// SignatureHeader is the request header Stripe signs webhook deliveries in.
const SignatureHeader = "Stripe-Signature"

var _ paywebhook.Verifier = (*Verifier)(nil)

// Verifier authenticates webhook deliveries with the endpoint signing secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Verify checks the v1 HMAC-SHA256 signatures over the raw payload and that
// the signed timestamp is within tolerance. The payload is decoded only after
// it has been authenticated.
func (v *Verifier) Verify(payload []byte, signature string) (paywebhook.Envelope, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return paywebhook.Envelope{}, fmt.Errorf("%w: %w", paywebhook.ErrInvalidSignature, err)
		}
		return paywebhook.Envelope{}, fmt.Errorf("%w: %w", paywebhook.ErrMalformedEvent, err)
	}

	env := paywebhook.Envelope{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if event.Data != nil {
		env.Object = event.Data.Raw
	}
	return env, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// Sign returns a Stripe-Signature header value for payload as Stripe would
// send it at time ts.
func Sign(payload []byte, secret string, ts time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	})
	return signed.Header
}
