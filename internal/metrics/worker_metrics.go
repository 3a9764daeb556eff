package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты публикации outbox-сообщения.
const (
	PublishSent       = "sent"
	PublishRetry      = "retry_error"
	PublishFailed     = "failed"
	PublishDeadLetter = "dlq"
	PublishDLQFailed  = "dlq_failed"
)

const (
	cleanupResultOK    = "ok"
	cleanupResultError = "error"
)

// OutboxMetrics описывает backlog outbox и результаты публикаций.
type OutboxMetrics struct {
	attempts  *prometheus.CounterVec
	pending   prometheus.Gauge
	oldestAge prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики outbox в prometheus.DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer регистрирует метрики outbox в переданном реестре.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		attempts: counterVec(registerer, "ibuy_outbox_publish_attempts_total",
			"Total number of outbox publish attempts grouped by result", "result"),
		pending: gauge(registerer, "ibuy_outbox_pending_records",
			"Current number of pending records in the transactional outbox"),
		oldestAge: gauge(registerer, "ibuy_outbox_oldest_pending_age_seconds",
			"Age in seconds of the oldest pending outbox record"),
	}
}

// RecordPublish увеличивает счётчик попыток с указанным результатом.
func (m *OutboxMetrics) RecordPublish(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog выставляет размер backlog и возраст самой старой записи.
func (m *OutboxMetrics) SetBacklog(pending int, oldest time.Time, now time.Time) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	if pending == 0 || oldest.IsZero() {
		m.oldestAge.Set(0)
		return
	}
	m.oldestAge.Set(max(now.Sub(oldest).Seconds(), 0))
}

// CleanupMetrics описывает очистку просроченных idempotency-ключей.
type CleanupMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

// NewCleanupMetrics регистрирует метрики очистки в prometheus.DefaultRegisterer.
func NewCleanupMetrics() *CleanupMetrics {
	return NewCleanupMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCleanupMetricsWithRegisterer регистрирует метрики очистки в переданном реестре.
func NewCleanupMetricsWithRegisterer(registerer prometheus.Registerer) *CleanupMetrics {
	return &CleanupMetrics{
		runs: counterVec(registerer, "ibuy_idempotency_cleanup_runs_total",
			"Total number of idempotency cleanup runs grouped by result", "result"),
		deleted: counter(registerer, "ibuy_idempotency_cleanup_deleted_total",
			"Total number of deleted expired idempotency records"),
		lastDeleted: gauge(registerer, "ibuy_idempotency_cleanup_last_deleted",
			"Number of records deleted during the last cleanup run"),
	}
}

// RecordRun фиксирует завершённый проход очистки.
func (m *CleanupMetrics) RecordRun(deleted int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.runs.WithLabelValues(cleanupResultError).Inc()
		return
	}
	m.runs.WithLabelValues(cleanupResultOK).Inc()
	m.deleted.Add(float64(deleted))
	m.lastDeleted.Set(float64(deleted))
}
