package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// Очереди RabbitMQ.
const (
	QueueOrders    = "ibuy.orders"
	QueueOrdersDLQ = "ibuy.orders.dlq"
)

// Channel — часть *amqp.Channel, нужная паблишеру.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Connection держит соединение и канал до брокера.
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial открывает соединение и канал.
func Dial(url string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	return &Connection{conn: conn, channel: ch}, nil
}

// Channel возвращает открытый канал.
func (c *Connection) Channel() Channel {
	return c.channel
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	if c == nil {
		return nil
	}
	if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		_ = c.conn.Close()
		return fmt.Errorf("failed to close rabbitmq channel: %w", err)
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("failed to close rabbitmq connection: %w", err)
	}
	return nil
}

type message struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxQueuePublisher публикует outbox-сообщения в durable очередь через default exchange.
type OutboxQueuePublisher struct {
	channel Channel
	queue   string
	logger  *log.Entry
	now     func() time.Time
}

// NewOutboxPublisher объявляет очередь и возвращает паблишер в неё.
func NewOutboxPublisher(ch Channel, queue string) (*OutboxQueuePublisher, error) {
	if ch == nil {
		return nil, fmt.Errorf("rabbitmq channel is required")
	}
	if queue == "" {
		queue = QueueOrders
	}

	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &OutboxQueuePublisher{
		channel: ch,
		queue:   q.Name,
		logger:  log.WithFields(log.Fields{"component": "rabbitmq-publisher", "queue": q.Name}),
		now:     time.Now,
	}, nil
}

// NewDLQPublisher создаёт паблишер в очередь ibuy.orders.dlq.
func NewDLQPublisher(ch Channel) (*OutboxQueuePublisher, error) {
	return NewOutboxPublisher(ch, QueueOrdersDLQ)
}

// Queue возвращает имя очереди.
func (p *OutboxQueuePublisher) Queue() string {
	return p.queue
}

func (p *OutboxQueuePublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.channel == nil {
		return fmt.Errorf("rabbitmq outbox publisher is not initialized")
	}

	publishedAt := p.now().UTC()
	body, err := json.Marshal(message{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   publishedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox message: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Type:         event.EventType,
			Timestamp:    publishedAt,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.WithError(err).WithField("outbox_id", event.ID).Error("failed to publish to rabbitmq")
		return fmt.Errorf("failed to publish to rabbitmq: %w", err)
	}

	p.logger.WithField("outbox_id", event.ID).Debug("message published to rabbitmq")
	return nil
}

var _ domain.OutboxPublisher = (*OutboxQueuePublisher)(nil)
