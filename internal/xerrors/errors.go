package xerrors

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

type Error struct {
	StatusCode int
	Message    string
	Cause      error
	RateLimit  *RateLimitInfo
	Validation *ValidationInfo
}

type RateLimitInfo struct {
	RetryAfter time.Duration
	Reason     string
}

type ValidationInfo struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

type replyPayload struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ReplyPayload is the err body sent back to bus callers.
func (e *Error) ReplyPayload() any {
	p := replyPayload{Status: e.StatusCode, Message: e.Message}
	if e.Validation != nil {
		p.Fields = e.Validation.Fields
	}
	return p
}

func BadRequest(opts ...Option) *Error         { return newErr(http.StatusBadRequest, opts) }
func Internal(opts ...Option) *Error           { return newErr(http.StatusInternalServerError, opts) }
func BadGateway(opts ...Option) *Error         { return newErr(http.StatusBadGateway, opts) }
func ServiceUnavailable(opts ...Option) *Error { return newErr(http.StatusServiceUnavailable, opts) }
func GatewayTimeout(opts ...Option) *Error     { return newErr(http.StatusGatewayTimeout, opts) }
func TooManyRequests(opts ...Option) *Error    { return newErr(http.StatusTooManyRequests, opts) }

// Validation reports user-correctable input problems keyed by field path.
func Validation(fields map[string]string, opts ...Option) *Error {
	e := newErr(http.StatusBadRequest, append([]Option{WithMessage("validation failed")}, opts...))
	e.Validation = &ValidationInfo{Fields: fields}
	return e
}

func newErr(status int, opts []Option) *Error {
	e := &Error{StatusCode: status, Message: strings.ToLower(http.StatusText(status))}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Option func(*Error)

func WithMessage(msg string) Option { return func(e *Error) { e.Message = msg } }
func WithCause(err error) Option    { return func(e *Error) { e.Cause = err } }
func WithRetryAfter(d time.Duration) Option {
	return func(e *Error) {
		if e.RateLimit == nil {
			e.RateLimit = &RateLimitInfo{}
		}
		e.RateLimit.RetryAfter = d
	}
}

func WithReason(reason string) Option {
	return func(e *Error) {
		if e.RateLimit == nil {
			e.RateLimit = &RateLimitInfo{}
		}
		e.RateLimit.Reason = reason
	}
}

func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
