package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/metrics"
)

// OrderPlacedItem — позиция в событии order.placed.
type OrderPlacedItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPlacedEvent — полезная нагрузка события order.placed.
type OrderPlacedEvent struct {
	OrderID       int64             `json:"order_id"`
	CustomerID    int64             `json:"customer_id"`
	PlacedAt      time.Time         `json:"placed_at"`
	Items         []OrderPlacedItem `json:"items"`
	InvoiceAmount decimal.Decimal   `json:"invoice_amount"`
}

// PlaceOrder превращает корзину в заказ текущего пользователя.
// Заказ, его позиции, событие в outbox и удаление корзины фиксируются одной транзакцией.
func (s *Service) PlaceOrder(ctx context.Context, actor domain.Actor, cartID uuid.UUID) (domain.Order, error) {
	if err := requireUser(actor); err != nil {
		return domain.Order{}, err
	}

	started := time.Now()
	var placed domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Carts.Lock(ctx, cartID); err != nil {
			if errors.Is(err, domain.ErrCartNotFound) {
				return fmt.Errorf("%w: %w", domain.ErrCartNotFound, domain.NewValidationError("cart_id", msgNoCart))
			}
			return err
		}
		cart, err := repos.Carts.Get(ctx, cartID)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return fmt.Errorf("%w: %w", domain.ErrCartEmpty, domain.NewValidationError("cart_id", msgCartEmpty))
		}

		customer, err := customerFor(ctx, repos, actor.UserID)
		if err != nil {
			return fmt.Errorf("resolve customer: %w", err)
		}

		order, err := domain.NewOrderFromCart(customer.ID, cart, s.now())
		if err != nil {
			return err
		}
		placed, err = repos.Orders.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		msg, err := orderPlacedMessage(placed)
		if err != nil {
			return err
		}
		if _, err := repos.Outbox.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue order event: %w", err)
		}

		if err := repos.Carts.Delete(ctx, cartID); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordCheckoutFailed(checkoutFailReason(err))
		s.logger.WithError(err).WithFields(map[string]any{
			"cart_id": cartID,
			"user_id": actor.UserID,
		}).Warn("checkout failed")
		return domain.Order{}, err
	}

	s.metrics.RecordOrderPlaced(placed.InvoiceAmount(), time.Since(started))
	s.logger.WithFields(map[string]any{
		"order_id":    placed.ID,
		"customer_id": placed.CustomerID,
		"items":       len(placed.Items),
	}).Info("order placed")
	return placed, nil
}

func checkoutFailReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrCartNotFound):
		return metrics.CheckoutFailCartNotFound
	case errors.Is(err, domain.ErrCartEmpty):
		return metrics.CheckoutFailCartEmpty
	default:
		return metrics.CheckoutFailError
	}
}

func orderPlacedMessage(o domain.Order) (domain.OutboxMessage, error) {
	event := OrderPlacedEvent{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		PlacedAt:      o.PlacedAt,
		Items:         make([]OrderPlacedItem, 0, len(o.Items)),
		InvoiceAmount: o.InvoiceAmount(),
	}
	for _, item := range o.Items {
		event.Items = append(event.Items, OrderPlacedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal order event: %w", err)
	}
	return domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   strconv.FormatInt(o.ID, 10),
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       payload,
	}, nil
}

// ListOrders возвращает заказы: персоналу все, остальным только собственные.
func (s *Service) ListOrders(ctx context.Context, actor domain.Actor, page domain.Page) ([]domain.Order, int, error) {
	if err := requireUser(actor); err != nil {
		return nil, 0, err
	}
	filter := domain.OrderFilter{Page: page}
	if !actor.IsStaff {
		customer, err := s.repos.Customers.GetByUserID(ctx, actor.UserID)
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return []domain.Order{}, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		filter.CustomerID = &customer.ID
	}
	return s.repos.Orders.List(ctx, filter)
}

// GetOrder возвращает заказ; чужой заказ для обычного пользователя не существует.
func (s *Service) GetOrder(ctx context.Context, actor domain.Actor, id int64) (domain.Order, error) {
	if err := requireUser(actor); err != nil {
		return domain.Order{}, err
	}
	order, err := s.repos.Orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.IsStaff && order.Customer.UserID != actor.UserID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// UpdatePaymentStatus меняет статус оплаты заказа (только персонал).
func (s *Service) UpdatePaymentStatus(ctx context.Context, id int64, status domain.PaymentStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.NewValidationError("payment_status", fmt.Sprintf("\"%s\" is not a valid choice.", status))
	}
	order, err := s.repos.Orders.UpdatePaymentStatus(ctx, id, status)
	if err != nil {
		return domain.Order{}, err
	}
	s.logger.WithFields(map[string]any{
		"order_id":       id,
		"payment_status": status,
	}).Info("order payment status changed")
	return order, nil
}

// DeleteOrder удаляет заказ вместе с позициями (только персонал).
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	return s.repos.Orders.Delete(ctx, id)
}
