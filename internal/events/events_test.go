package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlibrary/library/pkg/logger"
)

type published struct {
	eventType     string
	payload       interface{}
	correlationID string
}

type mockPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, published{eventType, payload, CorrelationID(ctx)})
	return m.err
}

func (m *mockPublisher) IsHealthy() bool { return true }
func (m *mockPublisher) Close() error    { return nil }

type ack struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (a *ack) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *ack) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}
func (a *ack) Reject(_ uint64, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

type mockSweeper struct {
	calls  int
	marked int
	err    error
}

func (s *mockSweeper) SweepOverdue(context.Context) (int, error) {
	s.calls++
	return s.marked, s.err
}

func TestNewEvent(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "req-1")
	event := NewEvent(ctx, EventTypeBookCreated, map[string]string{"id": "BOOK-00001"})

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, EventTypeBookCreated, event.EventType)
	assert.Equal(t, EventVersion, event.EventVersion)
	assert.Equal(t, "req-1", event.CorrelationID)

	body, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"correlation_id":"req-1"`)
	assert.Contains(t, string(body), `"payload":{"id":"BOOK-00001"}`)
}

func TestCorrelationIDMissing(t *testing.T) {
	assert.Equal(t, "", CorrelationID(context.Background()))
}

func TestDispatcherEmit(t *testing.T) {
	pub := &mockPublisher{}
	d := NewDispatcher(pub, logger.NewTestLogger())

	var results []error
	var mu sync.Mutex
	d.OnResult = func(_ string, err error) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(WithCorrelationID(context.Background(), "req-9"))
	d.Emit(ctx, EventTypeTransactionBorrowed, "TXN-00001")
	cancel()
	d.Wait()

	require.Len(t, pub.events, 1)
	assert.Equal(t, EventTypeTransactionBorrowed, pub.events[0].eventType)
	assert.Equal(t, "TXN-00001", pub.events[0].payload)
	assert.Equal(t, "req-9", pub.events[0].correlationID)
	assert.Equal(t, []error{nil}, results)
}

func TestDispatcherSwallowsErrors(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	d := NewDispatcher(pub, logger.NewTestLogger())

	d.Emit(context.Background(), EventTypeBookDeleted, nil)
	d.Wait()

	assert.Len(t, pub.events, 1)
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	d.Emit(context.Background(), EventTypeBookDeleted, nil)
	d.Wait()
	assert.True(t, d.Healthy())

	assert.True(t, NewDispatcher(nil, logger.NewTestLogger()).Healthy())
}

func TestConsumerHandlesSweepRequest(t *testing.T) {
	sweeper := &mockSweeper{marked: 3}
	c := newConsumer(nil, nil, "test", sweeper, logger.NewTestLogger())

	body, err := json.Marshal(NewEvent(context.Background(), CommandSweepRequested, SweepRequest{RequestedBy: "cron"}))
	require.NoError(t, err)

	a := &ack{}
	c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: a, RoutingKey: CommandSweepRequested, Body: body})

	assert.Equal(t, 1, sweeper.calls)
	assert.True(t, a.acked)
	assert.False(t, a.nacked)
}

func TestConsumerEmptyBodyStillSweeps(t *testing.T) {
	sweeper := &mockSweeper{}
	c := newConsumer(nil, nil, "test", sweeper, logger.NewTestLogger())

	a := &ack{}
	c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: a, RoutingKey: CommandSweepRequested})

	assert.Equal(t, 1, sweeper.calls)
	assert.True(t, a.acked)
}

func TestConsumerRejectsMalformedAndUnknown(t *testing.T) {
	sweeper := &mockSweeper{}
	c := newConsumer(nil, nil, "test", sweeper, logger.NewTestLogger())

	bad := &ack{}
	c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: bad, RoutingKey: CommandSweepRequested, Body: []byte("{")})
	assert.True(t, bad.nacked)
	assert.False(t, bad.requeued)

	unknown := &ack{}
	c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: unknown, RoutingKey: "payment.settled"})
	assert.True(t, unknown.nacked)
	assert.False(t, unknown.requeued)

	assert.Equal(t, 0, sweeper.calls)
}

func TestConsumerRequeuesFailedSweepOnce(t *testing.T) {
	sweeper := &mockSweeper{err: errors.New("db down")}
	c := newConsumer(nil, nil, "test", sweeper, logger.NewTestLogger())

	first := &ack{}
	c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: first, RoutingKey: CommandSweepRequested})
	assert.True(t, first.nacked)
	assert.True(t, first.requeued)

	again := &ack{}
	c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: again, RoutingKey: CommandSweepRequested, Redelivered: true})
	assert.True(t, again.nacked)
	assert.False(t, again.requeued)
}
