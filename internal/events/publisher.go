// Package events provides the in-process pub/sub that fans out transaction
// state-change notifications. Event delivery is best-effort: a failing
// subscriber is logged and isolated and never interrupts sibling subscribers
// or the financial operation that emitted the event.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/payflowhq/escrow_backend/internal/core/domain"
)

// DefaultHistorySize is the capacity of the diagnostic event ring buffer.
const DefaultHistorySize = 256

// Handler consumes one published event. Returning an error marks the
// subscriber as failed for that event; the error is logged, not propagated.
type Handler func(ctx context.Context, event domain.Event) error

type subscription struct {
	token string
	fn    Handler
}

// Publisher fans out events to type-specific subscribers first, then global
// subscribers, and keeps a bounded history of everything published.
type Publisher struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]subscription
	global  []subscription
	history []domain.Event
	histCap int
	logger  *slog.Logger
}

// NewPublisher creates a Publisher with the given history capacity
// (DefaultHistorySize when n <= 0).
func NewPublisher(n int, logger *slog.Logger) *Publisher {
	if n <= 0 {
		n = DefaultHistorySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		typed:   make(map[domain.EventType][]subscription),
		histCap: n,
		logger:  logger,
	}
}

// Subscribe registers fn for one event type and returns an unsubscribe token.
func (p *Publisher) Subscribe(eventType domain.EventType, fn Handler) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	token := uuid.NewString()
	p.typed[eventType] = append(p.typed[eventType], subscription{token: token, fn: fn})
	return token
}

// SubscribeAll registers fn for every event type and returns an unsubscribe token.
func (p *Publisher) SubscribeAll(fn Handler) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	token := uuid.NewString()
	p.global = append(p.global, subscription{token: token, fn: fn})
	return token
}

// Unsubscribe removes a type-specific subscription by token.
func (p *Publisher) Unsubscribe(eventType domain.EventType, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed[eventType] = removeToken(p.typed[eventType], token)
}

// UnsubscribeAll removes a global subscription by token.
func (p *Publisher) UnsubscribeAll(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.global = removeToken(p.global, token)
}

func removeToken(subs []subscription, token string) []subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.token != token {
			out = append(out, s)
		}
	}
	return out
}

// Publish appends the event to the bounded history, then invokes
// type-specific subscribers followed by global subscribers.
func (p *Publisher) Publish(ctx context.Context, event domain.Event) {
	p.mu.Lock()
	p.history = append(p.history, event)
	if len(p.history) > p.histCap {
		p.history = p.history[len(p.history)-p.histCap:]
	}
	subs := make([]subscription, 0, len(p.typed[event.Type])+len(p.global))
	subs = append(subs, p.typed[event.Type]...)
	subs = append(subs, p.global...)
	p.mu.Unlock()

	for _, s := range subs {
		if err := s.fn(ctx, event); err != nil {
			p.logger.Error("event subscriber failed",
				slog.String("event_type", string(event.Type)),
				slog.String("subscriber", s.token),
				slog.String("error", err.Error()))
		}
	}
}

// RecentEvents returns up to n most recent events, newest last. n <= 0
// returns the whole buffer.
func (p *Publisher) RecentEvents(n int) []domain.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if n <= 0 || n > len(p.history) {
		n = len(p.history)
	}
	out := make([]domain.Event, n)
	copy(out, p.history[len(p.history)-n:])
	return out
}
