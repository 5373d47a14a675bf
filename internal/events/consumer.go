package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Sweeper runs one overdue sweep and reports how many loans it marked.
type Sweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

// SweepRequest is the payload of a sweep command. Both fields are optional.
type SweepRequest struct {
	RequestedBy string `json:"requested_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// SweepRequestedEvent is the envelope of a sweep command.
type SweepRequestedEvent struct {
	EventID       string       `json:"event_id"`
	EventType     string       `json:"event_type"`
	EventVersion  string       `json:"event_version"`
	Timestamp     string       `json:"timestamp"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	Payload       SweepRequest `json:"payload"`
}

const handleTimeout = time.Minute

// Consumer listens for circulation commands on the events exchange.
type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	serviceName string
	sweeper     Sweeper
	log         *zap.Logger
}

// NewConsumer connects to RabbitMQ and declares the events exchange.
func NewConsumer(url, serviceName string, sweeper Sweeper, log *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.Info("Consumer connected to RabbitMQ", zap.String("exchange", ExchangeName))

	return newConsumer(conn, ch, serviceName, sweeper, log), nil
}

func newConsumer(conn *amqp.Connection, ch *amqp.Channel, serviceName string, sweeper Sweeper, log *zap.Logger) *Consumer {
	return &Consumer{
		conn:        conn,
		channel:     ch,
		serviceName: serviceName,
		sweeper:     sweeper,
		log:         log,
	}
}

// Start consumes commands until ctx is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	queueName := fmt.Sprintf("%s.circulation.queue", c.serviceName)

	queue, err := c.channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	routingKeys := []string{
		CommandSweepRequested,
	}

	for _, key := range routingKeys {
		if err := c.channel.QueueBind(
			queue.Name,
			key,
			ExchangeName,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
		c.log.Info("Listening for events", zap.String("routing_key", key))
	}

	// One sweep at a time
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := c.channel.Consume(
		queue.Name,
		c.serviceName, // consumer tag
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	c.log.Debug("Received event", zap.String("routing_key", msg.RoutingKey))

	switch msg.RoutingKey {
	case CommandSweepRequested:
		c.handleSweepRequested(ctx, msg)
	default:
		c.log.Warn("Unknown event type", zap.String("routing_key", msg.RoutingKey))
		msg.Nack(false, false) // Don't requeue unknown events
	}
}

func (c *Consumer) handleSweepRequested(ctx context.Context, msg amqp.Delivery) {
	var event SweepRequestedEvent
	if len(msg.Body) > 0 {
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			c.log.Error("Failed to unmarshal sweep request", zap.Error(err))
			msg.Nack(false, false)
			return
		}
	}

	sweepCtx, cancel := context.WithTimeout(WithCorrelationID(ctx, event.CorrelationID), handleTimeout)
	defer cancel()

	marked, err := c.sweeper.SweepOverdue(sweepCtx)
	if err != nil {
		c.log.Error("Overdue sweep failed", zap.String("event_id", event.EventID), zap.Error(err))
		msg.Nack(false, !msg.Redelivered) // Requeue once for retry
		return
	}

	c.log.Info("Overdue sweep completed",
		zap.String("event_id", event.EventID),
		zap.String("requested_by", event.Payload.RequestedBy),
		zap.Int("marked", marked),
	)
	msg.Ack(false)
}

// Close closes the consumer connection
func (c *Consumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.log.Error("Failed to close consumer channel", zap.Error(err))
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
