package xhttp

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

const (
	XForwardedFor    = "X-Forwarded-For"
	XRequestID       = "X-Request-ID"
	XRateLimitReason = "X-RateLimit-Reason"
	XContentTypeOpts = "X-Content-Type-Options"
	XFrameOpts       = "X-Frame-Options"
	ReferrerPolicy   = "Referrer-Policy"
	CacheControl     = "Cache-Control"
	ContentSecPolicy = "Content-Security-Policy"
	UserAgent        = "User-Agent"
)

const ContentType = "Content-Type"

const ApplicationJSON = "application/json"

func SetHeaderRequestID(w http.ResponseWriter, requestID string) {
	w.Header().Set(XRequestID, requestID)
}

func SetHeaderContentTypeApplicationJSON(w http.ResponseWriter) {
	w.Header().Set(ContentType, ApplicationJSON)
}

// SetHeaderRetryAfter rounds up to whole seconds, never below one.
func SetHeaderRetryAfter(w http.ResponseWriter, retryAfter time.Duration) {
	const retryAfterHeader = "Retry-After"
	retryAfterSeconds := max(int(math.Ceil(retryAfter.Seconds())), 1)
	w.Header().Set(retryAfterHeader, strconv.Itoa(retryAfterSeconds))
}
