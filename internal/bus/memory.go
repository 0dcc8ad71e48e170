package bus

import (
	"context"
	"sync"
)

var _ Publisher = (*MemoryBus)(nil)

type HandlerFunc func(ctx context.Context, msg Message) error

// MemoryBus delivers messages synchronously to in-process subscribers.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string][]HandlerFunc),
	}
}

func (b *MemoryBus) Subscribe(pattern string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[pattern] = append(b.handlers[pattern], handler)
}

func (b *MemoryBus) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	handlers := b.handlers[msg.Pattern]
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}

	return nil
}

func (b *MemoryBus) Close() error { return nil }
