package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/metrics"
)

func gofakeitUUID() uuid.UUID {
	return uuid.MustParse(gofakeit.UUID())
}

func (s *storefrontSuite) filledCart(items map[int64]int) uuid.UUID {
	cart, err := s.svc.CreateCart(s.ctx())
	s.Require().NoError(err)
	for productID, qty := range items {
		_, err := s.svc.AddCartItem(s.ctx(), cart.ID, productID, qty)
		s.Require().NoError(err)
	}
	return cart.ID
}

func (s *storefrontSuite) TestPlaceOrder_CopiesCartAndDeletesIt() {
	c := s.collection()
	shampoo := s.product(c.ID, "4.50")
	soap := s.product(c.ID, "1.25")
	buyer := s.user(false)
	cartID := s.filledCart(map[int64]int{shampoo.ID: 2, soap.ID: 4})

	order, err := s.svc.PlaceOrder(s.ctx(), buyer, cartID)
	s.Require().NoError(err)

	s.Positive(order.ID)
	s.Equal(s.now, order.PlacedAt)
	s.Equal(domain.PaymentStatusPending, order.PaymentStatus)
	s.Equal(buyer.UserID, order.Customer.UserID)
	s.True(decimal.RequireFromString("14.00").Equal(order.InvoiceAmount()), order.InvoiceAmount().String())

	want := []domain.OrderItem{
		{ProductID: shampoo.ID, Product: shampoo.Summary(), Quantity: 2, UnitPrice: shampoo.UnitPrice},
		{ProductID: soap.ID, Product: soap.Summary(), Quantity: 4, UnitPrice: soap.UnitPrice},
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(domain.OrderItem{}, "ID", "OrderID"),
		cmpopts.SortSlices(func(a, b domain.OrderItem) bool { return a.ProductID < b.ProductID }),
	}
	s.Empty(cmp.Diff(want, order.Items, opts))

	_, err = s.svc.GetCart(s.ctx(), cartID)
	s.Require().ErrorIs(err, domain.ErrCartNotFound)

	pending, err := s.store.Repositories().Outbox.PullPending(s.ctx(), 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(domain.EventTypeOrderPlaced, pending[0].EventType)
	s.Equal(domain.AggregateTypeOrder, pending[0].AggregateType)

	var event OrderPlacedEvent
	s.Require().NoError(json.Unmarshal(pending[0].Payload, &event))
	s.Equal(order.ID, event.OrderID)
	s.Equal(order.CustomerID, event.CustomerID)
	s.Len(event.Items, 2)
	s.True(order.InvoiceAmount().Equal(event.InvoiceAmount))
}

func (s *storefrontSuite) TestPlaceOrder_PriceIsCaptured() {
	c := s.collection()
	p := s.product(c.ID, "10.00")
	buyer := s.user(false)
	order, err := s.svc.PlaceOrder(s.ctx(), buyer, s.filledCart(map[int64]int{p.ID: 1}))
	s.Require().NoError(err)

	p.UnitPrice = decimal.RequireFromString("99.99")
	_, err = s.svc.UpdateProduct(s.ctx(), p)
	s.Require().NoError(err)

	got, err := s.svc.GetOrder(s.ctx(), buyer, order.ID)
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("10.00").Equal(got.InvoiceAmount()))
}

func (s *storefrontSuite) TestPlaceOrder_ValidationErrors() {
	buyer := s.user(false)

	_, err := s.svc.PlaceOrder(s.ctx(), buyer, gofakeitUUID())
	s.requireValidation(err, "cart_id", "No cart with the given ID was found.")
	s.Require().ErrorIs(err, domain.ErrCartNotFound)

	empty, err := s.svc.CreateCart(s.ctx())
	s.Require().NoError(err)
	_, err = s.svc.PlaceOrder(s.ctx(), buyer, empty.ID)
	s.requireValidation(err, "cart_id", "The cart is empty.")
	s.Require().ErrorIs(err, domain.ErrCartEmpty)

	// Пустая корзина после неудачи остаётся на месте.
	_, err = s.svc.GetCart(s.ctx(), empty.ID)
	s.Require().NoError(err)

	_, err = s.svc.PlaceOrder(s.ctx(), domain.Actor{}, empty.ID)
	s.Require().ErrorIs(err, domain.ErrNotAuthenticated)
}

func (s *storefrontSuite) TestPlaceOrder_CreatesCustomerLazily() {
	c := s.collection()
	p := s.product(c.ID, "1.00")
	staff := s.user(true)

	order, err := s.svc.PlaceOrder(s.ctx(), staff, s.filledCart(map[int64]int{p.ID: 1}))
	s.Require().NoError(err)

	customer, err := s.store.Repositories().Customers.GetByUserID(s.ctx(), staff.UserID)
	s.Require().NoError(err)
	s.Equal(customer.ID, order.CustomerID)
}

func (s *storefrontSuite) TestOrders_Scoping() {
	c := s.collection()
	p := s.product(c.ID, "1.00")
	alice := s.user(false)
	bob := s.user(false)
	staff := s.user(true)

	aliceOrder, err := s.svc.PlaceOrder(s.ctx(), alice, s.filledCart(map[int64]int{p.ID: 1}))
	s.Require().NoError(err)
	_, err = s.svc.PlaceOrder(s.ctx(), bob, s.filledCart(map[int64]int{p.ID: 2}))
	s.Require().NoError(err)

	orders, count, err := s.svc.ListOrders(s.ctx(), alice, domain.Page{Number: 1})
	s.Require().NoError(err)
	s.Equal(1, count)
	s.Require().Len(orders, 1)
	s.Equal(aliceOrder.ID, orders[0].ID)

	_, count, err = s.svc.ListOrders(s.ctx(), staff, domain.Page{Number: 1})
	s.Require().NoError(err)
	s.Equal(2, count)

	_, err = s.svc.GetOrder(s.ctx(), bob, aliceOrder.ID)
	s.Require().ErrorIs(err, domain.ErrOrderNotFound)
	_, err = s.svc.GetOrder(s.ctx(), staff, aliceOrder.ID)
	s.Require().NoError(err)

	_, _, err = s.svc.ListOrders(s.ctx(), domain.Actor{}, domain.Page{})
	s.Require().ErrorIs(err, domain.ErrNotAuthenticated)
}

func (s *storefrontSuite) TestOrders_AdminOperations() {
	c := s.collection()
	p := s.product(c.ID, "1.00")
	buyer := s.user(false)
	order, err := s.svc.PlaceOrder(s.ctx(), buyer, s.filledCart(map[int64]int{p.ID: 1}))
	s.Require().NoError(err)

	_, err = s.svc.UpdatePaymentStatus(s.ctx(), order.ID, "refunded")
	s.requireValidation(err, "payment_status", `"refunded" is not a valid choice.`)

	updated, err := s.svc.UpdatePaymentStatus(s.ctx(), order.ID, domain.PaymentStatusComplete)
	s.Require().NoError(err)
	s.Equal(domain.PaymentStatusComplete, updated.PaymentStatus)

	s.Require().ErrorIs(s.svc.DeleteProduct(s.ctx(), p.ID), domain.ErrProductInOrders)

	customer, err := s.svc.Me(s.ctx(), buyer)
	s.Require().NoError(err)
	s.Require().ErrorIs(s.svc.DeleteCustomer(s.ctx(), customer.ID), domain.ErrCustomerHasOrders)

	s.Require().NoError(s.svc.DeleteOrder(s.ctx(), order.ID))
	s.Require().NoError(s.svc.DeleteProduct(s.ctx(), p.ID))
	s.Require().NoError(s.svc.DeleteCustomer(s.ctx(), customer.ID))
}

// failingOutboxStore отдаёт транзакции outbox, который отказывает в Enqueue.
type failingOutboxStore struct {
	Store
	err error
}

type failingOutbox struct {
	domain.OutboxRepository
	err error
}

func (f failingOutbox) Enqueue(context.Context, domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, f.err
}

func (f failingOutboxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return f.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		repos.Outbox = failingOutbox{OutboxRepository: repos.Outbox, err: f.err}
		return fn(ctx, repos)
	})
}

func (s *storefrontSuite) TestPlaceOrder_RollsBackOnFailure() {
	c := s.collection()
	p := s.product(c.ID, "2.00")
	staff := s.user(true)
	cartID := s.filledCart(map[int64]int{p.ID: 1})

	outboxDown := errors.New("outbox unavailable")
	svc := NewService(failingOutboxStore{Store: s.store, err: outboxDown},
		WithMetrics(metrics.NewStoreMetricsWithRegisterer(prometheus.NewRegistry())),
		WithClock(func() time.Time { return s.now }),
	)

	_, err := svc.PlaceOrder(s.ctx(), staff, cartID)
	s.Require().ErrorIs(err, outboxDown)

	cart, err := s.svc.GetCart(s.ctx(), cartID)
	s.Require().NoError(err)
	s.Require().Len(cart.Items, 1)
	s.Equal(1, cart.Items[0].Quantity)

	_, count, err := s.store.Repositories().Orders.List(s.ctx(), domain.OrderFilter{Page: domain.Page{Number: 1}})
	s.Require().NoError(err)
	s.Zero(count)

	_, err = s.store.Repositories().Customers.GetByUserID(s.ctx(), staff.UserID)
	s.Require().ErrorIs(err, domain.ErrCustomerNotFound)

	pending, err := s.store.Repositories().Outbox.PullPending(s.ctx(), 10)
	s.Require().NoError(err)
	s.Empty(pending)
}
