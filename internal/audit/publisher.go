package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/requestcontext"
)

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. Persistence is append-only;
// the optional Kafka sink fans events out to downstream consumers. Audit is
// never allowed to fail a business operation: faults are logged and
// swallowed.
type Publisher struct {
	store  Store
	sink   *KafkaSink
	logger *slog.Logger
}

func NewPublisher(store Store, sink *KafkaSink, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, sink: sink, logger: logger}
}

// Emit records one event, filling actor and client metadata from the
// request context.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.UserID(ctx)
	}
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.UserAgent = requestcontext.UserAgent(ctx)

	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit append failed",
			"action", event.Action,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if p.sink != nil {
		p.sink.Publish(ctx, event)
	}
}

// InMemoryStore keeps events in process memory so unit tests can assert on
// emitted events. Production wires PostgresStore instead; this store grows
// unboundedly and must never back a long-running server.
type InMemoryStore struct {
	mu     sync.Mutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of everything appended so far.
func (s *InMemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
