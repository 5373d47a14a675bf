package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ExchangeName = "library.events"
	ExchangeType = "topic"

	EventVersion = "1.0.0"

	// Catalog events
	EventTypeBookCreated = "book.created"
	EventTypeBookUpdated = "book.updated"
	EventTypeBookDeleted = "book.deleted"

	// Member events
	EventTypeMemberRegistered = "member.registered"
	EventTypeMemberUpdated    = "member.updated"
	EventTypeMemberDeleted    = "member.deleted"

	// Circulation events
	EventTypeTransactionBorrowed = "transaction.borrowed"
	EventTypeTransactionReturned = "transaction.returned"
	EventTypeTransactionOverdue  = "transaction.overdue"
	EventTypeTransactionUpdated  = "transaction.updated"
	EventTypeTransactionDeleted  = "transaction.deleted"

	// CommandSweepRequested asks the service to run an overdue sweep.
	CommandSweepRequested = "circulation.sweep_requested"

	publishTimeout = 10 * time.Second
)

// Event represents a domain event
type Event struct {
	EventID       string      `json:"event_id"`
	EventType     string      `json:"event_type"`
	EventVersion  string      `json:"event_version"`
	Timestamp     string      `json:"timestamp"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Payload       interface{} `json:"payload"`
}

// NewEvent builds an envelope for payload, carrying the correlation ID of ctx.
func NewEvent(ctx context.Context, eventType string, payload interface{}) Event {
	return Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: CorrelationID(ctx),
		Payload:       payload,
	}
}

// Publisher delivers domain events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
	IsHealthy() bool
	Close() error
}

// NopPublisher discards every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NopPublisher) IsHealthy() bool                                   { return true }
func (NopPublisher) Close() error                                      { return nil }

type correlationKey struct{}

// WithCorrelationID attaches a request correlation ID to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation ID attached to ctx, if any.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// Dispatcher publishes events in the background so that request handling
// never waits on the broker. Failures are logged and dropped.
type Dispatcher struct {
	pub Publisher
	log *zap.Logger
	wg  sync.WaitGroup

	// OnResult, when set, is called after every publish attempt.
	OnResult func(eventType string, err error)
}

// NewDispatcher creates a dispatcher over pub. A nil pub discards events.
func NewDispatcher(pub Publisher, log *zap.Logger) *Dispatcher {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Dispatcher{pub: pub, log: log}
}

// Emit publishes the event asynchronously. Only the correlation ID of ctx
// is carried over; cancellation of ctx does not abort the publish.
func (d *Dispatcher) Emit(ctx context.Context, eventType string, payload interface{}) {
	if d == nil {
		return
	}
	corrID := CorrelationID(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		eventCtx, cancel := context.WithTimeout(WithCorrelationID(context.Background(), corrID), publishTimeout)
		defer cancel()

		err := d.pub.Publish(eventCtx, eventType, payload)
		if err != nil {
			d.log.Error("Failed to publish event",
				zap.String("event_type", eventType),
				zap.Error(err),
			)
		}
		if d.OnResult != nil {
			d.OnResult(eventType, err)
		}
	}()
}

// Wait blocks until every emitted event has been handed to the publisher.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Healthy reports the health of the underlying publisher.
func (d *Dispatcher) Healthy() bool {
	if d == nil {
		return true
	}
	return d.pub.IsHealthy()
}
