package bus

import (
	"context"
	"errors"
	"fmt"

	go_json "github.com/goccy/go-json"
)

const (
	PatternPaymentSucceeded = "payment.succeeded"
	PatternPaymentFailed    = "payment.failed"

	// PatternCreatePaymentSession is the inbound request other services send
	// instead of calling the HTTP route.
	PatternCreatePaymentSession = "create.payment.session"
)

var ErrPublish = errors.New("failed to publish message")

type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
	DriverKafka  Driver = "kafka"
	DriverSNS    Driver = "sns"
)

func ParseDriver(s string) (Driver, error) {
	switch d := Driver(s); d {
	case DriverMemory, DriverRedis, DriverKafka, DriverSNS:
		return d, nil
	default:
		return "", fmt.Errorf("unknown bus driver %q", s)
	}
}

// Message is one event bound for the bus. Pattern names the event kind and
// Key groups related messages (the order id) for drivers that partition.
// ID identifies the source event and stays the same across redeliveries.
type Message struct {
	ID      string
	Pattern string
	Key     string
	Data    any
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// envelope is the wire shape shared by every driver, {"pattern": ..., "data": ...},
// which is what pattern-based microservice consumers expect.
type envelope struct {
	Pattern string `json:"pattern"`
	Data    any    `json:"data"`
}

func Encode(msg Message) ([]byte, error) {
	data, err := go_json.Marshal(envelope{Pattern: msg.Pattern, Data: msg.Data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", msg.Pattern, err)
	}
	return data, nil
}
