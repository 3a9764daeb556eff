package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type orderRepository struct {
	q querier
}

const orderSelect = `
	SELECT o.id, o.customer_id, o.placed_at, o.payment_status
	FROM orders o`

// Create вставляет заказ и позиции; вызывается внутри WithinTx вместе с удалением корзины.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if order.PlacedAt.IsZero() {
		order.PlacedAt = time.Now().UTC()
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = domain.PaymentStatusPending
	}

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO orders (customer_id, placed_at, payment_status)
		VALUES ($1, $2, $3)
		RETURNING id
	`, order.CustomerID, order.PlacedAt, string(order.PaymentStatus)).Scan(&order.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Order{}, domain.ErrCustomerNotFound
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
		`, order.ID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			if isForeignKeyViolation(err) {
				return domain.Order{}, domain.ErrProductNotFound
			}
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}

	return r.Get(ctx, order.ID)
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, orderSelect+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	if err := r.assemble(ctx, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	where := ""
	args := []any{}
	if filter.CustomerID != nil {
		where = " WHERE o.customer_id = $1"
		args = append(args, *filter.CustomerID)
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders o`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	page := filter.Page.Normalize()
	args = append(args, page.Size, page.Offset())
	rows, err := r.q.QueryContext(ctx, fmt.Sprintf(`%s%s ORDER BY o.id LIMIT $%d OFFSET $%d`,
		orderSelect, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0, page.Size)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	for i := range orders {
		if err := r.assemble(ctx, &orders[i]); err != nil {
			return nil, 0, err
		}
	}
	return orders, total, nil
}

func (r *orderRepository) UpdatePaymentStatus(ctx context.Context, id int64, status domain.PaymentStatus) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1 WHERE id = $2
	`, string(status), id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order payment status: %w", err)
	}
	if err := expectAffected(res, domain.ErrOrderNotFound); err != nil {
		return domain.Order{}, err
	}
	return r.Get(ctx, id)
}

// Delete удаляет заказ; позиции удаляются каскадно.
func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

func (r *orderRepository) CountItemsByProduct(ctx context.Context, productID int64) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int
	if err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM order_items WHERE product_id = $1
	`, productID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count order items by product: %w", err)
	}
	return n, nil
}

func (r *orderRepository) assemble(ctx context.Context, order *domain.Order) error {
	customer, err := scanCustomer(r.q.QueryRowContext(ctx, customerSelect+` WHERE c.id = $1`, order.CustomerID))
	if err != nil {
		return fmt.Errorf("load order customer: %w", err)
	}
	order.Customer = customer

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return err
	}
	order.Items = items
	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT oi.id, oi.product_id, oi.quantity, oi.unit_price, p.title, p.unit_price
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		item := domain.OrderItem{OrderID: orderID}
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.UnitPrice,
			&item.Product.Title, &item.Product.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Product.ID = item.ProductID
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func scanOrder(row interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(&order.ID, &order.CustomerID, &order.PlacedAt, &status); err != nil {
		return domain.Order{}, err
	}
	order.PlacedAt = order.PlacedAt.UTC()
	order.PaymentStatus = domain.PaymentStatus(status)
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
