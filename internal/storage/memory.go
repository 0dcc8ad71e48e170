package storage

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var _ Backend = (*MemoryBackend)(nil)

type MemoryBackend struct {
	// Rate limiting
	limiters  map[string]*rate.Limiter
	limiterMu sync.RWMutex
	rateLimit rate.Limit
	rateBurst int

	// Dedup claims, event id -> expiry
	claims   map[string]time.Time
	claimsMu sync.Mutex

	now func() time.Time

	// Cleanup
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryBackend(ratePerSec float64, burst int) *MemoryBackend {
	m := &MemoryBackend{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rate.Limit(ratePerSec),
		rateBurst: burst,
		claims:    make(map[string]time.Time),
		now:       time.Now,
		done:      make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

func (m *MemoryBackend) Allow(_ context.Context, key string) (RateLimitResult, error) {
	limiter := m.limiter(key)

	r := limiter.Reserve()
	if !r.OK() {
		return RateLimitResult{Allowed: false, RetryAfter: time.Second}, nil
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return RateLimitResult{Allowed: false, RetryAfter: delay}, nil
	}
	return RateLimitResult{Allowed: true}, nil
}

func (m *MemoryBackend) limiter(key string) *rate.Limiter {
	m.limiterMu.RLock()
	limiter, exists := m.limiters[key]
	m.limiterMu.RUnlock()

	if exists {
		return limiter
	}

	m.limiterMu.Lock()
	defer m.limiterMu.Unlock()

	limiter, exists = m.limiters[key]
	if exists {
		return limiter
	}

	limiter = rate.NewLimiter(m.rateLimit, m.rateBurst)
	m.limiters[key] = limiter
	return limiter
}

func (m *MemoryBackend) Claim(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	m.claimsMu.Lock()
	defer m.claimsMu.Unlock()

	now := m.now()
	if expiry, ok := m.claims[eventID]; ok && now.Before(expiry) {
		return false, nil
	}
	m.claims[eventID] = now.Add(ttl)
	return true, nil
}

func (m *MemoryBackend) Commit(_ context.Context, eventID string, ttl time.Duration) error {
	m.claimsMu.Lock()
	m.claims[eventID] = m.now().Add(ttl)
	m.claimsMu.Unlock()
	return nil
}

func (m *MemoryBackend) Release(_ context.Context, eventID string) error {
	m.claimsMu.Lock()
	delete(m.claims, eventID)
	m.claimsMu.Unlock()
	return nil
}

func (m *MemoryBackend) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryBackend) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryBackend) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.claimsMu.Lock()
			now := m.now()
			for id, expiry := range m.claims {
				if !now.Before(expiry) {
					delete(m.claims, id)
				}
			}
			m.claimsMu.Unlock()
		case <-m.done:
			return
		}
	}
}
