package xcontext

import "context"

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID reports the id stored by WithRequestID; an empty id counts as absent.
func RequestID(ctx context.Context) (string, bool) {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID, requestID != ""
}
