package outbox

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.OutboxMetrics
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) { opts.Logger = logger }
}

// WithMetrics подключает prometheus-метрики backlog.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(opts *WorkerOptions) { opts.Metrics = m }
}

// WithDLQPublisher задаёт publisher, который получает сообщения после последней неудачной попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) { opts.DLQPublisher = publisher }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

// WithBatchSize задаёт число сообщений, забираемых за один проход.
func WithBatchSize(size int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = size }
}

// WithMaxAttempts задаёт число попыток публикации одного сообщения.
func WithMaxAttempts(attempts int) Option {
	return func(opts *WorkerOptions) { opts.MaxAttempts = attempts }
}

// WithRetryBaseDelay задаёт паузу после первой неудачи; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) { opts.RetryBaseDelay = delay }
}

// BatchResult — итог одного прохода по outbox.
type BatchResult struct {
	Sent         int
	Failed       int
	DeadLettered int
}

// Worker доставляет события order.placed из outbox в брокер.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	opts      WorkerOptions
	logger    *log.Entry
	now       func() time.Time
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	opts.RetryBaseDelay = max(opts.RetryBaseDelay, 0)

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}

	return &Worker{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Run опрашивает outbox до отмены ctx. Первый проход выполняется сразу.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		if res := w.ProcessOnce(ctx); res.Sent+res.Failed > 0 {
			w.logger.WithFields(log.Fields{
				"sent":          res.Sent,
				"failed":        res.Failed,
				"dead_lettered": res.DeadLettered,
			}).Debug("outbox batch processed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce забирает одну порцию pending-сообщений и пытается их опубликовать.
// Сообщение, не опубликованное за MaxAttempts попыток, помечается failed и уходит в DLQ.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var res BatchResult
	if ctx.Err() != nil {
		return res
	}
	defer w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.opts.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return res
	}

	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		entry := w.logger.WithFields(log.Fields{"outbox_id": msg.ID, "event_type": msg.EventType})

		publishErr := w.deliver(ctx, msg)
		if publishErr == nil {
			res.Sent++
			if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
				entry.WithError(err).Warn("failed to mark outbox message as sent")
			}
			continue
		}
		if ctx.Err() != nil {
			break
		}

		res.Failed++
		w.opts.Metrics.RecordPublish(metrics.PublishFailed)
		entry.WithError(publishErr).Error("outbox message was not published")

		if w.opts.DLQPublisher != nil {
			if err := w.deadLetter(ctx, msg, publishErr); err != nil {
				w.opts.Metrics.RecordPublish(metrics.PublishDLQFailed)
				entry.WithError(err).Warn("failed to publish to DLQ")
			} else {
				res.DeadLettered++
				w.opts.Metrics.RecordPublish(metrics.PublishDeadLetter)
			}
		}
		if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("failed to mark outbox message as failed")
		}
	}
	return res
}

func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) error {
	var err error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		if err = w.publisher.Publish(ctx, msg); err == nil {
			w.opts.Metrics.RecordPublish(metrics.PublishSent)
			return nil
		}
		w.opts.Metrics.RecordPublish(metrics.PublishRetry)
		if attempt == w.opts.MaxAttempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrOutboxPublish, w.opts.MaxAttempts, err)
}

// backoff возвращает паузу после attempt-й неудачи: base, 2*base, 4*base... не больше maxRetryDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	base := w.opts.RetryBaseDelay
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func (w *Worker) deadLetter(ctx context.Context, msg domain.OutboxMessage, publishErr error) error {
	envelope, err := domain.NewDeadLetter(msg, publishErr, w.now()).Envelope()
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	return w.opts.DLQPublisher.Publish(ctx, envelope)
}

func (w *Worker) observeBacklog(ctx context.Context) {
	if w.opts.Metrics == nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	w.opts.Metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt, w.now())
}
