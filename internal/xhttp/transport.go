package xhttp

import (
	"fmt"
	"net/http"

	"github.com/garrettladley/paygate/internal/version"
)

type paygateTransport struct {
	base http.RoundTripper
}

var _ http.RoundTripper = (*paygateTransport)(nil)

func (t *paygateTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(UserAgent, version.UserAgent())
	req.Header.Set(version.Header, version.Get())
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform round trip: %w", err)
	}
	return resp, nil
}

// NewTransport returns an http.RoundTripper with standard paygate headers.
func NewTransport() http.RoundTripper {
	return &paygateTransport{base: http.DefaultTransport}
}
