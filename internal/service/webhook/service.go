package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garrettladley/paygate/internal/bus"
	"github.com/garrettladley/paygate/internal/storage"
	"github.com/garrettladley/paygate/internal/xslog"
)

const (
	DefaultDedupTTL = 72 * time.Hour
	// DefaultClaimLease outlasts a single delivery attempt.
	DefaultClaimLease = time.Minute
)

// PaymentCompleted is published on bus.PatternPaymentSucceeded.
type PaymentCompleted struct {
	StripeChargeID string `json:"stripeChargeId"`
	OrderID        string `json:"orderId"`
	ReceiptURL     string `json:"receiptUrl,omitempty"`
}

// PaymentFailed is published on bus.PatternPaymentFailed.
type PaymentFailed struct {
	StripeChargeID string `json:"stripeChargeId"`
	OrderID        string `json:"orderId"`
	FailureCode    string `json:"failureCode,omitempty"`
	FailureMessage string `json:"failureMessage,omitempty"`
}

type Config struct {
	EventTypes EventTypes
	// DedupTTL is how long a relayed event id is remembered.
	DedupTTL time.Duration
	// ClaimLease bounds how long an in-flight delivery blocks redeliveries.
	ClaimLease time.Duration
}

type Processor struct {
	verifier   Verifier
	dedup      storage.DedupStore
	publisher  bus.Publisher
	eventTypes EventTypes
	dedupTTL   time.Duration
	claimLease time.Duration
}

var _ Service = (*Processor)(nil)

func NewProcessor(verifier Verifier, dedup storage.DedupStore, publisher bus.Publisher, cfg Config) *Processor {
	eventTypes := cfg.EventTypes
	if len(eventTypes) == 0 {
		eventTypes = DefaultEventTypes()
	}
	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	lease := cfg.ClaimLease
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &Processor{
		verifier:   verifier,
		dedup:      dedup,
		publisher:  publisher,
		eventTypes: eventTypes,
		dedupTTL:   ttl,
		claimLease: lease,
	}
}

func (p *Processor) ProcessWebhook(ctx context.Context, req ProcessRequest) (Result, error) {
	if req.Signature == "" {
		return 0, ErrMissingSignature
	}

	env, err := p.verifier.Verify(req.Body, req.Signature)
	if err != nil {
		return p.verifyFailed(ctx, err)
	}

	ctx = xslog.WithAttrs(ctx, xslog.EventID(env.ID), xslog.EventType(env.Type))
	logger := xslog.FromContext(ctx)

	event, err := ParseEvent(env, p.eventTypes)
	if err != nil {
		logger.ErrorContext(ctx, "dropping malformed webhook event", xslog.Error(err))
		return ResultIgnored, nil
	}

	var msg bus.Message
	switch e := event.(type) {
	case ChargeSucceededEvent:
		msg = bus.Message{
			ID:      e.GetEventID(),
			Pattern: bus.PatternPaymentSucceeded,
			Key:     e.OrderID,
			Data: PaymentCompleted{
				StripeChargeID: e.ChargeID,
				OrderID:        e.OrderID,
				ReceiptURL:     e.ReceiptURL,
			},
		}
	case ChargeFailedEvent:
		msg = bus.Message{
			ID:      e.GetEventID(),
			Pattern: bus.PatternPaymentFailed,
			Key:     e.OrderID,
			Data: PaymentFailed{
				StripeChargeID: e.ChargeID,
				OrderID:        e.OrderID,
				FailureCode:    e.FailureCode,
				FailureMessage: e.FailureMessage,
			},
		}
	default:
		logger.WarnContext(ctx, "unhandled webhook event type")
		return ResultIgnored, nil
	}

	return p.relay(xslog.WithAttrs(ctx, xslog.ChargeID(chargeID(event))), msg)
}

func chargeID(event Event) string {
	switch e := event.(type) {
	case ChargeSucceededEvent:
		return e.ChargeID
	case ChargeFailedEvent:
		return e.ChargeID
	default:
		return ""
	}
}

func (p *Processor) verifyFailed(ctx context.Context, err error) (Result, error) {
	if errors.Is(err, ErrMalformedEvent) {
		xslog.FromContext(ctx).ErrorContext(ctx, "dropping undecodable webhook body", xslog.Error(err))
		return ResultIgnored, nil
	}
	return 0, err
}

// relay leases the event id for claimLease, publishes, then commits the id for
// dedupTTL. A delivery that dies mid-publish leaves only the lease behind, so
// the processor's redelivery after it lapses is relayed.
func (p *Processor) relay(ctx context.Context, msg bus.Message) (Result, error) {
	logger := xslog.FromContext(ctx).With(xslog.OrderID(msg.Key), xslog.Pattern(msg.Pattern))

	claimed := p.claim(ctx, msg.ID)
	if !claimed.ok {
		logger.InfoContext(ctx, "skipping duplicate webhook event")
		return ResultDuplicate, nil
	}

	if err := p.publisher.Publish(ctx, msg); err != nil {
		if claimed.held {
			if relErr := p.dedup.Release(context.WithoutCancel(ctx), msg.ID); relErr != nil {
				logger.ErrorContext(ctx, "failed to release webhook claim", xslog.Error(relErr))
			}
		}
		return 0, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	if claimed.held {
		if err := p.dedup.Commit(context.WithoutCancel(ctx), msg.ID, p.dedupTTL); err != nil {
			// the lease still covers immediate retries
			logger.WarnContext(ctx, "failed to commit webhook claim", xslog.Error(err))
		}
	}

	logger.InfoContext(ctx, "relayed webhook event")
	return ResultHandled, nil
}

type claim struct {
	ok   bool // proceed with publishing
	held bool // a claim was recorded and must be released on failure
}

func (p *Processor) claim(ctx context.Context, eventID string) claim {
	if eventID == "" {
		return claim{ok: true}
	}

	ok, err := p.dedup.Claim(ctx, eventID, p.claimLease)
	if err != nil {
		// at-least-once: a dedup outage must not block payments
		xslog.FromContext(ctx).WarnContext(ctx, "dedup claim failed, relaying anyway", xslog.Error(err))
		return claim{ok: true}
	}
	return claim{ok: ok, held: ok}
}
