package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

// CleanupOptions задаёт параметры воркера очистки.
type CleanupOptions struct {
	Logger    *log.Entry
	Metrics   *metrics.CleanupMetrics
	Interval  time.Duration
	BatchSize int
	Clock     func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) { opts.Logger = logger }
}

// WithMetrics подключает prometheus-метрики очистки.
func WithMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(opts *CleanupOptions) { opts.Metrics = m }
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) { opts.Interval = interval }
}

// WithBatchSize ограничивает число записей, удаляемых одним запросом.
func WithBatchSize(size int) CleanupOption {
	return func(opts *CleanupOptions) { opts.BatchSize = size }
}

// WithClock подменяет источник текущего времени.
func WithClock(clock func() time.Time) CleanupOption {
	return func(opts *CleanupOptions) { opts.Clock = clock }
}

// CleanupWorker удаляет сохранённые ответы POST /store/orders/, у которых истёк TTL.
type CleanupWorker struct {
	repo   domain.IdempotencyRepository
	opts   CleanupOptions
	logger *log.Entry
}

// NewCleanupWorker создаёт воркер очистки idempotency-ключей.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
		Clock:     time.Now,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "idempotency-cleanup")
	}
	return &CleanupWorker{repo: repo, opts: opts, logger: logger}
}

// Run чистит просроченные ключи сразу и затем каждые Interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		deleted, err := w.DeleteExpired(ctx, w.opts.Clock().UTC())
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			w.logger.WithError(err).Warn("idempotency cleanup run failed")
		case deleted > 0:
			w.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
		}
		w.opts.Metrics.RecordRun(deleted, err)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DeleteExpired удаляет записи с ttl_at <= before, пока очередная порция не окажется неполной.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.opts.Clock().UTC()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.repo.DeleteExpired(ctx, before, w.opts.BatchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < w.opts.BatchSize {
			return total, nil
		}
	}
}
