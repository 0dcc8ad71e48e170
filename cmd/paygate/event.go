package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garrettladley/paygate/internal/service/checkout"
	"github.com/garrettladley/paygate/internal/service/webhook"
	go_json "github.com/goccy/go-json"
)

type sampleEvent struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    sampleEventData `json:"data"`
}

type sampleEventData struct {
	Object sampleCharge `json:"object"`
}

type sampleCharge struct {
	ID             string            `json:"id"`
	Object         string            `json:"object"`
	Metadata       map[string]string `json:"metadata"`
	ReceiptURL     string            `json:"receipt_url,omitempty"`
	FailureCode    string            `json:"failure_code,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
}

// buildChargeEvent fabricates a charge event shaped like a Stripe delivery.
func buildChargeEvent(eventType webhook.EventType, orderID string, now time.Time) ([]byte, error) {
	chargeID := "ch_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	charge := sampleCharge{
		ID:       chargeID,
		Object:   "charge",
		Metadata: map[string]string{checkout.MetadataOrderID: orderID},
	}

	switch eventType {
	case webhook.EventTypeChargeSucceeded:
		charge.ReceiptURL = "https://pay.stripe.com/receipts/" + chargeID
	case webhook.EventTypeChargeFailed:
		charge.FailureCode = "card_declined"
		charge.FailureMessage = "Your card was declined."
	default:
		return nil, fmt.Errorf("cannot build sample for event type %q", eventType)
	}

	return go_json.Marshal(sampleEvent{
		ID:      "evt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
		Object:  "event",
		Type:    string(eventType),
		Created: now.Unix(),
		Data:    sampleEventData{Object: charge},
	})
}

// readPayload loads the event body from file, or "-" for stdin.
func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// parseItem reads "name:price:quantity"; the name may itself contain colons.
func parseItem(s string) (checkout.Item, error) {
	qtyIdx := strings.LastIndex(s, ":")
	if qtyIdx < 0 {
		return checkout.Item{}, fmt.Errorf("item %q: want name:price:quantity", s)
	}
	priceIdx := strings.LastIndex(s[:qtyIdx], ":")
	if priceIdx <= 0 {
		return checkout.Item{}, fmt.Errorf("item %q: want name:price:quantity", s)
	}

	price, err := decimal.NewFromString(s[priceIdx+1 : qtyIdx])
	if err != nil {
		return checkout.Item{}, fmt.Errorf("item %q: invalid price: %w", s, err)
	}
	qty, err := strconv.ParseInt(s[qtyIdx+1:], 10, 64)
	if err != nil {
		return checkout.Item{}, fmt.Errorf("item %q: invalid quantity: %w", s, err)
	}

	return checkout.Item{Name: s[:priceIdx], Price: price, Quantity: qty}, nil
}
