package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, c.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestStoreMetrics_RecordOrderPlaced(t *testing.T) {
	m := NewStoreMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordOrderPlaced(decimal.RequireFromString("12.50"), 20*time.Millisecond)
	m.RecordOrderPlaced(decimal.RequireFromString("3"), time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, m.ordersPlaced))

	hist := &dto.Metric{}
	require.NoError(t, m.invoiceAmount.Write(hist))
	assert.Equal(t, uint64(2), hist.GetHistogram().GetSampleCount())
	assert.InDelta(t, 15.5, hist.GetHistogram().GetSampleSum(), 0.0001)
}

func TestStoreMetrics_LabelledCounters(t *testing.T) {
	m := NewStoreMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordCartItemAdded(true)
	m.RecordCartItemAdded(false)
	m.RecordCartItemAdded(true)
	m.RecordCheckoutFailed(CheckoutFailCartEmpty)
	m.RecordDeleteRejected("collection")

	assert.Equal(t, 2.0, counterValue(t, m.cartItemsAdded.WithLabelValues("merged")))
	assert.Equal(t, 1.0, counterValue(t, m.cartItemsAdded.WithLabelValues("created")))
	assert.Equal(t, 1.0, counterValue(t, m.checkoutFailed.WithLabelValues(CheckoutFailCartEmpty)))
	assert.Equal(t, 1.0, counterValue(t, m.deleteRejected.WithLabelValues("collection")))
}

func TestStoreMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *StoreMetrics

	assert.NotPanics(t, func() {
		m.RecordOrderPlaced(decimal.NewFromInt(1), time.Second)
		m.RecordCheckoutFailed(CheckoutFailError)
		m.RecordCartItemAdded(false)
		m.RecordDeleteRejected("product")
		m.RecordUserRegistered()
	})
}

func TestRegister_ReturnsExistingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := counter(reg, "test_duplicate_total", "Test counter")
	second := counter(reg, "test_duplicate_total", "Test counter")
	first.Inc()

	assert.Equal(t, 1.0, counterValue(t, second))
}

func TestRegister_PanicsOnTypeClash(t *testing.T) {
	reg := prometheus.NewRegistry()
	counterVec(reg, "test_clash_total", "Test counter", "kind")

	assert.Panics(t, func() { counterVec(reg, "test_clash_total", "Test counter", "other") })
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, g.Write(metric))
	return metric.GetGauge().GetValue()
}

func TestOutboxMetrics_Backlog(t *testing.T) {
	m := NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())
	now := time.Now()

	m.SetBacklog(3, now.Add(-90*time.Second), now)
	assert.Equal(t, 3.0, gaugeValue(t, m.pending))
	assert.InDelta(t, 90, gaugeValue(t, m.oldestAge), 0.001)

	m.SetBacklog(0, now.Add(-time.Hour), now)
	assert.Equal(t, 0.0, gaugeValue(t, m.pending))
	assert.Equal(t, 0.0, gaugeValue(t, m.oldestAge))

	m.RecordPublish(PublishSent)
	m.RecordPublish(PublishSent)
	m.RecordPublish(PublishDeadLetter)
	assert.Equal(t, 2.0, counterValue(t, m.attempts.WithLabelValues(PublishSent)))
	assert.Equal(t, 1.0, counterValue(t, m.attempts.WithLabelValues(PublishDeadLetter)))
}

func TestCleanupMetrics_RecordRun(t *testing.T) {
	m := NewCleanupMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordRun(4, nil)
	m.RecordRun(2, nil)
	m.RecordRun(7, errors.New("db down"))

	assert.Equal(t, 2.0, counterValue(t, m.runs.WithLabelValues(cleanupResultOK)))
	assert.Equal(t, 1.0, counterValue(t, m.runs.WithLabelValues(cleanupResultError)))
	assert.Equal(t, 6.0, counterValue(t, m.deleted))
	assert.Equal(t, 2.0, gaugeValue(t, m.lastDeleted))
}

func TestWorkerMetrics_NilReceiverIsNoop(t *testing.T) {
	var (
		outbox  *OutboxMetrics
		cleanup *CleanupMetrics
	)

	assert.NotPanics(t, func() {
		outbox.RecordPublish(PublishFailed)
		outbox.SetBacklog(1, time.Now(), time.Now())
		cleanup.RecordRun(1, nil)
	})
}

func TestHTTPMetrics_RequestLifecycle(t *testing.T) {
	m := NewHTTPMetricsWithRegisterer(prometheus.NewRegistry())

	m.RequestStarted()
	m.RequestFinished(http.MethodGet, "/store/products/{id}/", http.StatusOK, 5*time.Millisecond)

	assert.Equal(t, 1.0, counterValue(t, m.requests.WithLabelValues(http.MethodGet, "/store/products/{id}/", "200")))

	gauge := &dto.Metric{}
	require.NoError(t, m.inFlight.Write(gauge))
	assert.Equal(t, 0.0, gauge.GetGauge().GetValue())
}
