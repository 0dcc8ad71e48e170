package webhook

import (
	"context"
	"errors"
)

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedEvent   = errors.New("malformed event")
	ErrPublish          = errors.New("failed to publish event")
)

type ProcessRequest struct {
	Body      []byte
	Signature string
}

// Envelope is a verified event: its id, type and the raw data.object bytes.
type Envelope struct {
	ID     string
	Type   string
	Object []byte
}

type Verifier interface {
	// Verify checks the signature header against the raw body and decodes the envelope.
	// Returns an error wrapping ErrInvalidSignature when authentication fails and
	// ErrMalformedEvent when an authentic body cannot be decoded.
	Verify(payload []byte, signature string) (Envelope, error)
}

type Result int

const (
	ResultHandled Result = iota + 1
	ResultIgnored
	ResultDuplicate
)

func (r Result) String() string {
	switch r {
	case ResultHandled:
		return "handled"
	case ResultIgnored:
		return "ignored"
	case ResultDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

type Service interface {
	// ProcessWebhook verifies the delivery, decodes the event and relays
	// recognized events to the bus.
	// Returns ErrMissingSignature if the signature header is empty.
	// Returns ErrInvalidSignature if the signature doesn't match.
	// Returns ErrPublish if the bus rejected the event (caller should ask for redelivery).
	// Unrecognized, malformed and duplicate events are not errors.
	ProcessWebhook(ctx context.Context, req ProcessRequest) (Result, error)
}
