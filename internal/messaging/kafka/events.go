package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "ibuy.order.events"
	TopicDeadLetterQueue = "ibuy.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType = "x-event-type"
	HeaderReplayed  = "x-replayed"
)

// Envelope — формат сообщения, которое уходит в topic.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   publishedAt.UTC(),
	}
}

// Key возвращает ключ партиционирования: события одного заказа идут в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}
