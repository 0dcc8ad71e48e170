package xerrors

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/garrettladley/paygate/internal/xcontext"
	"github.com/garrettladley/paygate/internal/xhttp"
	"github.com/garrettladley/paygate/internal/xslog"
	go_json "github.com/goccy/go-json"
)

const (
	logKeyMessage    = "message"
	logKeyRateLimit  = "rate_limit"
	logKeyValidation = "validation"
)

// errorResponse echoes the request id so a failed payment call can be traced
// back to its log lines.
type errorResponse struct {
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	appErr := As(err)
	if appErr == nil {
		appErr = Internal(WithCause(err))
	}

	logError(ctx, appErr)

	xhttp.SetHeaderContentTypeApplicationJSON(w)

	if appErr.RateLimit != nil {
		if appErr.RateLimit.RetryAfter > 0 {
			xhttp.SetHeaderRetryAfter(w, appErr.RateLimit.RetryAfter)
		}
		if appErr.RateLimit.Reason != "" {
			w.Header().Set(xhttp.XRateLimitReason, appErr.RateLimit.Reason)
		}
	}

	w.WriteHeader(appErr.StatusCode)

	resp := errorResponse{Message: appErr.Message}
	if id, ok := xcontext.RequestID(ctx); ok {
		resp.RequestID = id
	}
	if appErr.Validation != nil {
		resp.Fields = appErr.Validation.Fields
	}

	_ = go_json.NewEncoder(w).Encode(resp)
}

func logError(ctx context.Context, err *Error) {
	attrs := []slog.Attr{
		xslog.HTTPStatus(err.StatusCode),
		slog.String(logKeyMessage, err.Message),
	}
	if err.Cause != nil {
		attrs = append(attrs, xslog.Error(err.Cause))
	}
	if err.RateLimit != nil {
		attrs = append(attrs, slog.Group(logKeyRateLimit,
			xslog.Reason(err.RateLimit.Reason),
			xslog.Duration(err.RateLimit.RetryAfter),
		))
	}
	if err.Validation != nil {
		attrs = append(attrs, slog.Any(logKeyValidation, err.Validation.Fields))
	}

	level, msg := slog.LevelInfo, "error response"
	switch err.StatusCode / 100 {
	case 5:
		level, msg = slog.LevelError, "server error"
	case 4:
		level, msg = slog.LevelWarn, "client error"
	}
	xslog.FromContext(ctx).LogAttrs(ctx, level, msg, attrs...)
}
