package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/garrettladley/paygate/internal/version"
	"github.com/garrettladley/paygate/internal/xhttp"
	"github.com/garrettladley/paygate/internal/xslog"
)

const healthCheckTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type Health struct {
	checks map[string]Pinger
}

// NewHealth reports healthy only while every named dependency answers a ping.
func NewHealth(checks map[string]Pinger) *Health {
	return &Health{checks: checks}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HandleHealth handles GET /health requests.
func (h *Health) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Version: version.Get()}
	status := http.StatusOK

	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			xslog.FromContext(ctx).WarnContext(ctx, "health check failed", xslog.Driver(name), xslog.Error(err))
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	xhttp.WriteJSON(w, status, resp)
}
