package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	t.Parallel()

	got := Get()
	if got == "" {
		t.Fatal("Get() returned empty version")
	}
	if again := Get(); again != got {
		t.Errorf("Get() = %q on second call, want %q", again, got)
	}
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	ua := UserAgent()
	if !strings.HasPrefix(ua, "paygate/") {
		t.Errorf("UserAgent() = %q, want paygate/ prefix", ua)
	}
	if strings.TrimPrefix(ua, "paygate/") != Get() {
		t.Errorf("UserAgent() = %q, want suffix %q", ua, Get())
	}
}
