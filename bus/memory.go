package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// MemoryEventBus is an in-process EventBus. Delivery is synchronous and in
// subscription order; handler errors are logged, not propagated to the
// publisher.
type MemoryEventBus struct {
	mu            sync.RWMutex
	subscriptions []*memorySubscription
	logger        *slog.Logger
	closed        bool
}

type memorySubscription struct {
	bus     *MemoryEventBus
	subject string
	handler EventHandler

	mu     sync.Mutex
	active bool
}

func (s *memorySubscription) Unsubscribe() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	for i, sub := range s.bus.subscriptions {
		if sub == s {
			s.bus.subscriptions = append(s.bus.subscriptions[:i], s.bus.subscriptions[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// NewMemoryEventBus creates an in-memory event bus. A nil logger uses the
// default slog logger.
func NewMemoryEventBus(logger *slog.Logger) *MemoryEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryEventBus{logger: logger}
}

func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}
	subs := append([]*memorySubscription(nil), b.subscriptions...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.IsValid() || !subjectMatches(subject, sub.subject) {
			continue
		}
		if err := sub.handler(ctx, event); err != nil {
			b.logger.Error("event handler failed",
				"subject", subject, "event_type", event.Type, "error", err)
		}
	}
	return nil
}

func (b *MemoryEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}
	sub := &memorySubscription{bus: b, subject: subject, handler: handler, active: true}
	b.subscriptions = append(b.subscriptions, sub)
	return sub, nil
}

func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.subscriptions = nil
	b.mu.Unlock()
}

func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

var _ EventBus = (*MemoryEventBus)(nil)

// subjectMatches applies NATS-style wildcard matching: "*" matches exactly
// one token, ">" matches one or more trailing tokens.
func subjectMatches(subject, pattern string) bool {
	if subject == pattern {
		return true
	}
	st := strings.Split(subject, ".")
	pt := strings.Split(pattern, ".")
	for i, p := range pt {
		if p == ">" {
			return i < len(st)
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(st) == len(pt)
}
