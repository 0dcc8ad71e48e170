package storage

import (
	"testing"
	"time"
)

func TestNewSlidingWindow(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		rate  float64
		burst int
		want  slidingWindow
	}{
		{name: "rate equals burst", rate: 10, burst: 10, want: slidingWindow{size: time.Second, limit: 10}},
		{name: "burst above rate", rate: 10, burst: 20, want: slidingWindow{size: 2 * time.Second, limit: 20}},
		{name: "fractional rate", rate: 0.5, burst: 1, want: slidingWindow{size: 2 * time.Second, limit: 1}},
		{name: "very high rate", rate: 1e6, burst: 1, want: slidingWindow{size: time.Millisecond, limit: 1}},
		{name: "zero burst", rate: 1, burst: 0, want: slidingWindow{size: time.Second, limit: 1}},
		{name: "zero rate", rate: 0, burst: 5, want: slidingWindow{size: time.Second, limit: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := newSlidingWindow(tt.rate, tt.burst); got != tt.want {
				t.Errorf("newSlidingWindow(%v, %d) = %+v, want %+v", tt.rate, tt.burst, got, tt.want)
			}
		})
	}
}
