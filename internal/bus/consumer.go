package bus

import (
	"context"
	"errors"
	"fmt"

	go_json "github.com/goccy/go-json"
)

// Request is one inbound message. Data is the raw JSON payload; ID is set when
// the sender expects a reply.
type Request struct {
	ID      string
	Pattern string
	Data    []byte
}

// Responder handles a Request and returns the value to reply with.
type Responder func(ctx context.Context, req Request) (any, error)

// Consumer feeds inbound requests to a Responder until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, respond Responder) error
	Close() error
}

// ReplyError lets a Responder choose the err payload sent back to the caller.
type ReplyError interface {
	error
	ReplyPayload() any
}

// inboundEnvelope is the request side of the wire format: the outbound
// envelope plus the caller's correlation id.
type inboundEnvelope struct {
	ID      string             `json:"id"`
	Pattern string             `json:"pattern"`
	Data    go_json.RawMessage `json:"data"`
}

type reply struct {
	ID         string `json:"id,omitempty"`
	Response   any    `json:"response,omitempty"`
	Err        any    `json:"err,omitempty"`
	IsDisposed bool   `json:"isDisposed"`
}

func Decode(data []byte) (Request, error) {
	var env inboundEnvelope
	if err := go_json.Unmarshal(data, &env); err != nil {
		return Request{}, fmt.Errorf("failed to decode request: %w", err)
	}
	if env.Pattern == "" {
		return Request{}, errors.New("failed to decode request: missing pattern")
	}
	return Request{ID: env.ID, Pattern: env.Pattern, Data: env.Data}, nil
}

// respondTo runs respond and encodes the outcome as a reply for id.
func respondTo(ctx context.Context, respond Responder, req Request) ([]byte, error) {
	resp, err := respond(ctx, req)

	r := reply{ID: req.ID, IsDisposed: true}
	if err != nil {
		var replyErr ReplyError
		if errors.As(err, &replyErr) {
			r.Err = replyErr.ReplyPayload()
		} else {
			r.Err = map[string]string{"message": err.Error()}
		}
	} else {
		r.Response = resp
	}

	data, marshalErr := go_json.Marshal(r)
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal %s reply: %w", req.Pattern, marshalErr)
	}
	return data, err
}

// ReplyPattern is where replies to pattern are sent.
func ReplyPattern(pattern string) string { return pattern + ".reply" }
