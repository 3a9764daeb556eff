package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type orderRepository struct {
	db access
}

// Create сохраняет заказ и его позиции, присваивая идентификаторы.
func (r *orderRepository) Create(_ context.Context, o domain.Order) (domain.Order, error) {
	err := r.db.write(func(st *state) error {
		if _, ok := st.customers[o.CustomerID]; !ok {
			return domain.ErrCustomerNotFound
		}
		for _, item := range o.Items {
			if _, ok := st.products[item.ProductID]; !ok {
				return domain.ErrProductNotFound
			}
		}

		o.ID = st.nextID()
		if o.PlacedAt.IsZero() {
			o.PlacedAt = time.Now().UTC()
		}
		if o.PaymentStatus == "" {
			o.PaymentStatus = domain.PaymentStatusPending
		}

		items := o.Items
		o.Items = nil
		o.Customer = domain.Customer{}
		st.orders[o.ID] = o

		for _, item := range items {
			item.ID = st.nextID()
			item.OrderID = o.ID
			item.Product = domain.ProductSummary{}
			st.orderItems[item.ID] = item
		}

		o = assembleOrder(st, o)
		return nil
	})
	return o, err
}

func (r *orderRepository) Get(_ context.Context, id int64) (domain.Order, error) {
	var result domain.Order
	err := r.db.read(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		result = assembleOrder(st, o)
		return nil
	})
	return result, err
}

func (r *orderRepository) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, int, error) {
	var (
		result []domain.Order
		total  int
	)
	err := r.db.read(func(st *state) error {
		all := make([]domain.Order, 0, len(st.orders))
		for _, o := range st.orders {
			if filter.CustomerID != nil && o.CustomerID != *filter.CustomerID {
				continue
			}
			all = append(all, o)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
		total = len(all)

		page := domain.Slice(all, filter.Page)
		result = make([]domain.Order, 0, len(page))
		for _, o := range page {
			result = append(result, assembleOrder(st, o))
		}
		return nil
	})
	return result, total, err
}

func (r *orderRepository) UpdatePaymentStatus(_ context.Context, id int64, status domain.PaymentStatus) (domain.Order, error) {
	var result domain.Order
	err := r.db.write(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		o.PaymentStatus = status
		st.orders[id] = o
		result = assembleOrder(st, o)
		return nil
	})
	return result, err
}

// Delete удаляет заказ вместе с позициями.
func (r *orderRepository) Delete(_ context.Context, id int64) error {
	return r.db.write(func(st *state) error {
		if _, ok := st.orders[id]; !ok {
			return domain.ErrOrderNotFound
		}
		delete(st.orders, id)
		for itemID, item := range st.orderItems {
			if item.OrderID == id {
				delete(st.orderItems, itemID)
			}
		}
		return nil
	})
}

func (r *orderRepository) CountItemsByProduct(_ context.Context, productID int64) (int, error) {
	var n int
	err := r.db.read(func(st *state) error {
		for _, item := range st.orderItems {
			if item.ProductID == productID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func assembleOrder(st *state, o domain.Order) domain.Order {
	if c, ok := st.customers[o.CustomerID]; ok {
		o.Customer = withUser(st, c)
	}

	items := make([]domain.OrderItem, 0)
	for _, item := range st.orderItems {
		if item.OrderID != o.ID {
			continue
		}
		if p, ok := st.products[item.ProductID]; ok {
			item.Product = p.Summary()
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	o.Items = items
	return o
}

var _ domain.OrderRepository = (*orderRepository)(nil)
