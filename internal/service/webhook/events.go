package webhook

import (
	"fmt"
	"slices"
	"strings"

	"github.com/garrettladley/paygate/internal/service/checkout"
	go_json "github.com/goccy/go-json"
)

type EventType string

const (
	EventTypeChargeSucceeded EventType = "charge.succeeded"
	EventTypeChargeFailed    EventType = "charge.failed"
)

var knownEventTypes = []EventType{
	EventTypeChargeSucceeded,
	EventTypeChargeFailed,
}

// EventTypes is the set of event types that are relayed to the bus.
type EventTypes map[EventType]struct{}

func DefaultEventTypes() EventTypes {
	return EventTypes{EventTypeChargeSucceeded: {}}
}

// ParseEventTypes builds a set from names such as "charge.succeeded".
// Names this package cannot decode are rejected.
func ParseEventTypes(names []string) (EventTypes, error) {
	set := make(EventTypes, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		t := EventType(name)
		if !slices.Contains(knownEventTypes, t) {
			return nil, fmt.Errorf("unsupported webhook event type %q", name)
		}
		set[t] = struct{}{}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no webhook event types enabled")
	}
	return set, nil
}

func (s EventTypes) Has(t EventType) bool {
	_, ok := s[t]
	return ok
}

// List returns the enabled types in sorted order.
func (s EventTypes) List() []string {
	names := make([]string, 0, len(s))
	for t := range s {
		names = append(names, string(t))
	}
	slices.Sort(names)
	return names
}

type Event interface {
	webhookEvent()
	GetEventID() string
}

type eventBase struct {
	EventID string
	Type    EventType
}

func (e eventBase) GetEventID() string { return e.EventID }

type ChargeSucceededEvent struct {
	eventBase
	ChargeID   string
	OrderID    string
	ReceiptURL string
}

func (ChargeSucceededEvent) webhookEvent() {}

type ChargeFailedEvent struct {
	eventBase
	ChargeID       string
	OrderID        string
	FailureCode    string
	FailureMessage string
}

func (ChargeFailedEvent) webhookEvent() {}

// UnhandledEvent is any event whose type is unknown or not enabled.
type UnhandledEvent struct {
	eventBase
}

func (UnhandledEvent) webhookEvent() {}

type chargeObject struct {
	ID             string            `json:"id"`
	Metadata       map[string]string `json:"metadata"`
	ReceiptURL     string            `json:"receipt_url"`
	FailureCode    string            `json:"failure_code"`
	FailureMessage string            `json:"failure_message"`
}

// ParseEvent decodes a verified envelope into a typed event.
// Types outside enabled decode to UnhandledEvent. An enabled event without a
// charge id or order id returns ErrMalformedEvent.
func ParseEvent(env Envelope, enabled EventTypes) (Event, error) {
	base := eventBase{EventID: env.ID, Type: EventType(env.Type)}

	if !enabled.Has(base.Type) {
		return UnhandledEvent{eventBase: base}, nil
	}

	switch base.Type {
	case EventTypeChargeSucceeded:
		charge, err := parseCharge(env.Object)
		if err != nil {
			return nil, err
		}
		return ChargeSucceededEvent{
			eventBase:  base,
			ChargeID:   charge.ID,
			OrderID:    charge.Metadata[checkout.MetadataOrderID],
			ReceiptURL: charge.ReceiptURL,
		}, nil
	case EventTypeChargeFailed:
		charge, err := parseCharge(env.Object)
		if err != nil {
			return nil, err
		}
		return ChargeFailedEvent{
			eventBase:      base,
			ChargeID:       charge.ID,
			OrderID:        charge.Metadata[checkout.MetadataOrderID],
			FailureCode:    charge.FailureCode,
			FailureMessage: charge.FailureMessage,
		}, nil
	default:
		return UnhandledEvent{eventBase: base}, nil
	}
}

func parseCharge(data []byte) (chargeObject, error) {
	if len(data) == 0 {
		return chargeObject{}, fmt.Errorf("%w: missing data.object", ErrMalformedEvent)
	}

	var charge chargeObject
	if err := go_json.Unmarshal(data, &charge); err != nil {
		return chargeObject{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if charge.ID == "" {
		return chargeObject{}, fmt.Errorf("%w: missing charge id", ErrMalformedEvent)
	}
	if charge.Metadata[checkout.MetadataOrderID] == "" {
		return chargeObject{}, fmt.Errorf("%w: missing metadata.%s", ErrMalformedEvent, checkout.MetadataOrderID)
	}
	return charge, nil
}
