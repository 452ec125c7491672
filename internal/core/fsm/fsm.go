// Package fsm provides a small generic finite state machine with an explicit
// transition table, post-commit handler hooks and a bounded diagnostic
// history of fired transitions.
package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/payflowhq/escrow_backend/internal/apperrors"
)

// DefaultHistorySize is the capacity of a machine's transition ring buffer.
const DefaultHistorySize = 32

// Record describes one committed transition.
type Record[S, E comparable] struct {
	From  S
	Event E
	To    S
	At    time.Time
}

// Handler is invoked after a transition commits. A handler's error is logged
// and isolated; it never propagates to sibling handlers or the caller.
type Handler[S, E comparable] func(ctx context.Context, rec Record[S, E], data map[string]interface{}) error

type transitionKey[S, E comparable] struct {
	from  S
	event E
}

// Machine is a transition-table driven state machine. The zero value is not
// usable; construct with New.
type Machine[S, E comparable] struct {
	mu       sync.Mutex
	current  S
	table    map[transitionKey[S, E]]S
	order    map[S][]E // registration order of events per state, for introspection
	handlers map[transitionKey[S, E]][]Handler[S, E]
	history  []Record[S, E]
	histCap  int
	logger   *slog.Logger
}

// Option configures a Machine.
type Option[S, E comparable] func(*Machine[S, E])

// WithHistorySize overrides the transition history ring capacity.
func WithHistorySize[S, E comparable](n int) Option[S, E] {
	return func(m *Machine[S, E]) {
		if n > 0 {
			m.histCap = n
		}
	}
}

// WithLogger sets the logger used to report isolated handler failures.
func WithLogger[S, E comparable](l *slog.Logger) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.logger = l
	}
}

// New creates a Machine starting in the given state.
func New[S, E comparable](initial S, opts ...Option[S, E]) *Machine[S, E] {
	m := &Machine[S, E]{
		current:  initial,
		table:    make(map[transitionKey[S, E]]S),
		order:    make(map[S][]E),
		handlers: make(map[transitionKey[S, E]][]Handler[S, E]),
		histCap:  DefaultHistorySize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddTransition registers a permitted (from, event) -> to move. Registering
// the same pair twice overwrites the destination.
func (m *Machine[S, E]) AddTransition(from S, event E, to S) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := transitionKey[S, E]{from: from, event: event}
	if _, exists := m.table[key]; !exists {
		m.order[from] = append(m.order[from], event)
	}
	m.table[key] = to
}

// AddHandler registers a callback fired after (state, event) commits.
func (m *Machine[S, E]) AddHandler(state S, event E, fn Handler[S, E]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := transitionKey[S, E]{from: state, event: event}
	m.handlers[key] = append(m.handlers[key], fn)
}

// Current returns the machine's current state.
func (m *Machine[S, E]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetCurrent forcibly reconciles the machine to an externally persisted
// state. The persisted state is always authoritative over the in-memory one.
func (m *Machine[S, E]) SetCurrent(state S) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = state
}

// Peek computes the state that firing the event would produce, without
// committing anything.
func (m *Machine[S, E]) Peek(event E) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	to, ok := m.table[transitionKey[S, E]{from: m.current, event: event}]
	if !ok {
		var zero S
		return zero, fmt.Errorf("%w: no transition for event %v from state %v", apperrors.ErrInvalidTransition, event, m.current)
	}
	return to, nil
}

// CanTrigger reports whether the event is permitted from the current state.
func (m *Machine[S, E]) CanTrigger(event E) bool {
	_, err := m.Peek(event)
	return err == nil
}

// AvailableEvents lists the events permitted from the current state, in
// registration order.
func (m *Machine[S, E]) AvailableEvents() []E {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.order[m.current]
	out := make([]E, len(events))
	copy(out, events)
	return out
}

// Trigger validates and commits a transition, records it in the history ring
// and fires the registered handlers. Handler errors are logged and isolated.
func (m *Machine[S, E]) Trigger(ctx context.Context, event E, data map[string]interface{}) (S, error) {
	m.mu.Lock()
	key := transitionKey[S, E]{from: m.current, event: event}
	to, ok := m.table[key]
	if !ok {
		from := m.current
		m.mu.Unlock()
		var zero S
		return zero, fmt.Errorf("%w: no transition for event %v from state %v", apperrors.ErrInvalidTransition, event, from)
	}

	rec := Record[S, E]{From: m.current, Event: event, To: to, At: time.Now().UTC()}
	m.current = to
	m.history = append(m.history, rec)
	if len(m.history) > m.histCap {
		m.history = m.history[len(m.history)-m.histCap:]
	}
	handlers := make([]Handler[S, E], len(m.handlers[key]))
	copy(handlers, m.handlers[key])
	logger := m.logger
	m.mu.Unlock()

	for _, fn := range handlers {
		if err := fn(ctx, rec, data); err != nil {
			logger.Error("fsm handler failed",
				slog.Any("event", event),
				slog.Any("from", rec.From),
				slog.Any("to", rec.To),
				slog.String("error", err.Error()))
		}
	}
	return to, nil
}

// History returns a copy of the bounded transition history, oldest first.
func (m *Machine[S, E]) History() []Record[S, E] {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record[S, E], len(m.history))
	copy(out, m.history)
	return out
}
