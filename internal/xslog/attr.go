package xslog

import (
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/garrettladley/paygate/internal/version"
	"github.com/garrettladley/paygate/internal/xhttp"
)

// Version identifies the running build and its Go toolchain.
func Version() slog.Attr {
	const (
		versionKey = "version"
		goKey      = "go"
	)
	return slog.Group(versionKey,
		slog.String(versionKey, version.Get()),
		slog.String(goKey, runtime.Version()),
	)
}

func RequestID(requestID string) slog.Attr {
	const requestIDKey = "request_id"
	return slog.String(requestIDKey, requestID)
}

func Stack() slog.Attr {
	const stackKey = "stack"
	return slog.String(stackKey, string(debug.Stack()))
}

func HTTPStatus(status int) slog.Attr {
	const statusKey = "status"
	return slog.Int(statusKey, status)
}

func Duration(duration time.Duration) slog.Attr {
	const durationKey = "duration"
	return slog.Duration(durationKey, duration)
}

func RequestMethod(r *http.Request) slog.Attr {
	const methodKey = "method"
	return slog.String(methodKey, r.Method)
}

func RequestPath(r *http.Request) slog.Attr {
	const pathKey = "path"
	return slog.String(pathKey, r.URL.Path)
}

func IP(ip string) slog.Attr {
	const ipKey = "ip"
	return slog.String(ipKey, ip)
}

func RequestIP(r *http.Request) slog.Attr {
	return IP(xhttp.GetRequestIP(r))
}

func Count(count int) slog.Attr {
	const countKey = "count"
	return slog.Int(countKey, count)
}

func OrderID(id string) slog.Attr {
	const orderIDKey = "order_id"
	return slog.String(orderIDKey, id)
}

func SessionID(id string) slog.Attr {
	const sessionIDKey = "session_id"
	return slog.String(sessionIDKey, id)
}

func ChargeID(id string) slog.Attr {
	const chargeIDKey = "charge_id"
	return slog.String(chargeIDKey, id)
}

func EventID(id string) slog.Attr {
	const eventIDKey = "event_id"
	return slog.String(eventIDKey, id)
}

func EventType(eventType string) slog.Attr {
	const eventTypeKey = "event_type"
	return slog.String(eventTypeKey, eventType)
}

func Pattern(pattern string) slog.Attr {
	const patternKey = "pattern"
	return slog.String(patternKey, pattern)
}

func Topic(topic string) slog.Attr {
	const topicKey = "topic"
	return slog.String(topicKey, topic)
}

func Driver(driver string) slog.Attr {
	const driverKey = "driver"
	return slog.String(driverKey, driver)
}

func Attempt(n int) slog.Attr {
	const attemptKey = "attempt"
	return slog.Int(attemptKey, n)
}

func Reason(reason string) slog.Attr {
	const reasonKey = "reason"
	return slog.String(reasonKey, reason)
}
