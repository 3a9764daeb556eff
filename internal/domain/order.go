package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusPending — заказ оформлен, оплата ещё не подтверждена.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusComplete — оплата подтверждена.
	PaymentStatusComplete PaymentStatus = "complete"
	// PaymentStatusFailed — оплата не прошла.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusComplete, PaymentStatusFailed:
		return true
	default:
		return false
	}
}

// OrderItem — позиция заказа с ценой, зафиксированной на момент оформления.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Product   ProductSummary
	Quantity  int
	// UnitPrice не меняется при последующем изменении цены товара.
	UnitPrice decimal.Decimal
}

// Order — историческая запись о покупке.
type Order struct {
	ID            int64
	CustomerID    int64
	Customer      Customer
	PlacedAt      time.Time
	PaymentStatus PaymentStatus
	Items         []OrderItem
}

// InvoiceAmount считает сумму заказа по зафиксированным ценам.
func (o Order) InvoiceAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// NewOrderFromCart строит заказ из корзины, копируя текущие цены товаров в позиции.
func NewOrderFromCart(customerID int64, cart Cart, placedAt time.Time) (Order, error) {
	if len(cart.Items) == 0 {
		return Order{}, ErrCartEmpty
	}

	items := make([]OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, OrderItem{
			ProductID: item.ProductID,
			Product:   item.Product,
			Quantity:  item.Quantity,
			UnitPrice: item.Product.UnitPrice,
		})
	}

	order := Order{
		CustomerID:    customerID,
		PlacedAt:      placedAt,
		PaymentStatus: PaymentStatusPending,
		Items:         items,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return Order{}, errors.Join(errs...)
	}
	return order, nil
}

var (
	errOrderCustomerRequired = errors.New("order customer is required")
	errOrderItemsRequired    = errors.New("order must contain at least one item")
	errOrderItemQty          = errors.New("order item quantity must be greater than zero")
	errOrderItemPrice        = errors.New("order item price must be non-negative")
	errOrderPaymentStatus    = errors.New("order payment status is invalid")
)

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID <= 0 {
		errs = append(errs, errOrderCustomerRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, errOrderItemsRequired)
	}
	if !o.PaymentStatus.Valid() {
		errs = append(errs, errOrderPaymentStatus)
	}
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, errOrderItemQty)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, errOrderItemPrice)
		}
	}

	return errs
}

// OrderFilter ограничивает список заказов.
type OrderFilter struct {
	// CustomerID == nil означает все заказы (для персонала).
	CustomerID *int64
	Page       Page
}
