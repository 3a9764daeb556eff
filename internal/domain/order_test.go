package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// helper для корзины с двумя позициями.
func makeCart() domain.Cart {
	return domain.Cart{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Items: []domain.CartItem{
			{
				ID:        1,
				ProductID: 10,
				Product:   domain.ProductSummary{ID: 10, Title: "Coffee", UnitPrice: decimal.RequireFromString("12.50")},
				Quantity:  2,
			},
			{
				ID:        2,
				ProductID: 11,
				Product:   domain.ProductSummary{ID: 11, Title: "Tea", UnitPrice: decimal.RequireFromString("3.10")},
				Quantity:  3,
			},
		},
	}
}

func TestCartTotalPrice(t *testing.T) {
	cart := makeCart()

	want := decimal.RequireFromString("34.30")
	if got := cart.TotalPrice(); !got.Equal(want) {
		t.Fatalf("expected total %s, got %s", want, got)
	}
	if got := cart.Items[0].TotalPrice(); !got.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("expected line total 25, got %s", got)
	}
}

func TestNewOrderFromCart_CapturesPrices(t *testing.T) {
	cart := makeCart()
	placedAt := time.Now().UTC()

	order, err := domain.NewOrderFromCart(7, cart, placedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.CustomerID != 7 {
		t.Fatalf("expected customer 7, got %d", order.CustomerID)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending status, got %s", order.PaymentStatus)
	}
	if len(order.Items) != len(cart.Items) {
		t.Fatalf("expected %d items, got %d", len(cart.Items), len(order.Items))
	}

	// Изменение цены в корзине после оформления не влияет на заказ.
	cart.Items[0].Product.UnitPrice = decimal.RequireFromString("99")
	if !order.Items[0].UnitPrice.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("order item price must be captured, got %s", order.Items[0].UnitPrice)
	}
	if !order.InvoiceAmount().Equal(decimal.RequireFromString("34.30")) {
		t.Fatalf("expected invoice 34.30, got %s", order.InvoiceAmount())
	}
}

func TestNewOrderFromCart_EmptyCart(t *testing.T) {
	_, err := domain.NewOrderFromCart(7, domain.Cart{ID: uuid.New()}, time.Now())
	if !errors.Is(err, domain.ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}
}

func TestNewOrderFromCart_InvalidCustomer(t *testing.T) {
	if _, err := domain.NewOrderFromCart(0, makeCart(), time.Now()); err == nil {
		t.Fatal("expected invariant error for missing customer")
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	order := domain.Order{
		CustomerID:    1,
		PaymentStatus: domain.PaymentStatus("unknown"),
		Items: []domain.OrderItem{
			{ProductID: 1, Quantity: 0, UnitPrice: decimal.NewFromInt(-1)},
		},
	}

	if errs := order.ValidateInvariants(); len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}

func TestPaymentStatusValid(t *testing.T) {
	tests := []struct {
		status domain.PaymentStatus
		want   bool
	}{
		{status: domain.PaymentStatusPending, want: true},
		{status: domain.PaymentStatusComplete, want: true},
		{status: domain.PaymentStatusFailed, want: true},
		{status: domain.PaymentStatus("P"), want: false},
	}

	for _, tc := range tests {
		if got := tc.status.Valid(); got != tc.want {
			t.Errorf("status %q valid=%v, want %v", tc.status, got, tc.want)
		}
	}
}
