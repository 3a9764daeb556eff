package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Причины неудачного оформления заказа.
const (
	CheckoutFailCartNotFound = "cart_not_found"
	CheckoutFailCartEmpty    = "cart_empty"
	CheckoutFailError        = "error"
)

// StoreMetrics содержит бизнес-метрики витрины.
type StoreMetrics struct {
	ordersPlaced     prometheus.Counter
	checkoutFailed   *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	invoiceAmount    prometheus.Histogram

	cartItemsAdded *prometheus.CounterVec
	deleteRejected *prometheus.CounterVec
	usersCreated   prometheus.Counter
}

// NewStoreMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewStoreMetrics() *StoreMetrics {
	return NewStoreMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStoreMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewStoreMetricsWithRegisterer(registerer prometheus.Registerer) *StoreMetrics {
	return &StoreMetrics{
		ordersPlaced: counter(registerer, "ibuy_orders_placed_total",
			"Total number of orders placed from carts"),
		checkoutFailed: counterVec(registerer, "ibuy_checkout_failed_total",
			"Total number of rejected or failed checkouts grouped by reason", "reason"),
		checkoutDuration: histogram(registerer, "ibuy_checkout_duration_seconds",
			"Duration of the checkout transaction in seconds",
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5}),
		invoiceAmount: histogram(registerer, "ibuy_order_invoice_amount",
			"Invoice amount of placed orders",
			[]float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000}),
		cartItemsAdded: counterVec(registerer, "ibuy_cart_items_added_total",
			"Total number of add-to-cart operations grouped by result (created or merged)", "result"),
		deleteRejected: counterVec(registerer, "ibuy_delete_rejected_total",
			"Total number of deletes rejected because of referencing records", "entity"),
		usersCreated: counter(registerer, "ibuy_users_registered_total",
			"Total number of registered users"),
	}
}

// RecordOrderPlaced фиксирует успешно оформленный заказ.
func (m *StoreMetrics) RecordOrderPlaced(invoice decimal.Decimal, duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
	m.checkoutDuration.Observe(duration.Seconds())
	m.invoiceAmount.Observe(invoice.InexactFloat64())
}

// RecordCheckoutFailed фиксирует отклонённое оформление.
func (m *StoreMetrics) RecordCheckoutFailed(reason string) {
	if m == nil {
		return
	}
	m.checkoutFailed.WithLabelValues(reason).Inc()
}

// RecordCartItemAdded фиксирует добавление в корзину; merged=true — количество увеличено у существующей позиции.
func (m *StoreMetrics) RecordCartItemAdded(merged bool) {
	if m == nil {
		return
	}
	result := "created"
	if merged {
		result = "merged"
	}
	m.cartItemsAdded.WithLabelValues(result).Inc()
}

// RecordDeleteRejected фиксирует удаление, отклонённое из-за ссылок.
func (m *StoreMetrics) RecordDeleteRejected(entity string) {
	if m == nil {
		return
	}
	m.deleteRejected.WithLabelValues(entity).Inc()
}

// RecordUserRegistered фиксирует регистрацию пользователя.
func (m *StoreMetrics) RecordUserRegistered() {
	if m == nil {
		return
	}
	m.usersCreated.Inc()
}
