package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ibuy/internal/messaging/rabbitmq"
)

// outboxPublishers — основной и DLQ паблишеры выбранного брокера.
type outboxPublishers struct {
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	closeFn   func() error
}

// initOutboxPublishers подключается к брокеру. Для OutboxBrokerNone publisher остаётся nil,
// и события копятся в outbox до включения брокера.
func initOutboxPublishers(cfg Config, logger *log.Entry) (outboxPublishers, error) {
	switch cfg.OutboxBroker {
	case OutboxBrokerKafka:
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, kafka.WithProducerLogger(logger.WithField("broker", OutboxBrokerKafka)))
		if err != nil {
			return outboxPublishers{}, err
		}
		logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		return outboxPublishers{
			publisher: kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
			dlq:       kafka.NewDLQPublisher(producer),
			closeFn:   producer.Close,
		}, nil

	case OutboxBrokerRabbitMQ:
		conn, err := rabbitmq.Dial(cfg.RabbitMQURL)
		if err != nil {
			return outboxPublishers{}, err
		}
		publisher, err := rabbitmq.NewOutboxPublisher(conn.Channel(), rabbitmq.QueueOrders)
		if err != nil {
			_ = conn.Close()
			return outboxPublishers{}, err
		}
		dlq, err := rabbitmq.NewDLQPublisher(conn.Channel())
		if err != nil {
			_ = conn.Close()
			return outboxPublishers{}, err
		}
		logger.WithField("queue", publisher.Queue()).Info("rabbitmq publisher initialized")
		return outboxPublishers{publisher: publisher, dlq: dlq, closeFn: conn.Close}, nil

	default:
		logger.Info("outbox broker is disabled, events stay pending")
		return outboxPublishers{}, nil
	}
}

// closeQuietly вызывает closeFn и логирует ошибку.
func closeQuietly(name string, closeFn func() error, logger *log.Entry) {
	if closeFn == nil {
		return
	}
	if err := closeFn(); err != nil {
		logger.WithError(err).Warnf("failed to close %s", name)
		return
	}
	logger.Infof("%s closed", name)
}
