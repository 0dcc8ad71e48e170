package xhttp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/garrettladley/paygate/internal/version"
)

func TestNewHTTPClientStampsHeaders(t *testing.T) {
	t.Parallel()

	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Caller", "test")

	resp, err := NewHTTPClient().Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	got := <-headers
	if ua := got.Get(UserAgent); !strings.HasPrefix(ua, "paygate/") {
		t.Errorf("User-Agent = %q, want paygate/ prefix", ua)
	}
	if v := got.Get(version.Header); v != version.Get() {
		t.Errorf("%s = %q, want %q", version.Header, v, version.Get())
	}
	if got.Get("X-Caller") != "test" {
		t.Error("caller header dropped")
	}
	if req.Header.Get(UserAgent) != "" {
		t.Error("transport mutated the caller's request")
	}
}

func TestNewHTTPClientTimeout(t *testing.T) {
	t.Parallel()

	if got := NewHTTPClient().Timeout; got != defaultClientTimeout {
		t.Errorf("default Timeout = %v, want %v", got, defaultClientTimeout)
	}
	if got := NewHTTPClient(WithTimeout(time.Second)).Timeout; got != time.Second {
		t.Errorf("Timeout = %v, want 1s", got)
	}
}
