package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type cartRepository struct {
	q querier
}

func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = time.Now().UTC()
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, created_at) VALUES ($1, $2)
	`, cart.ID, cart.CreatedAt); err != nil {
		return domain.Cart{}, fmt.Errorf("insert cart: %w", err)
	}

	cart.Items = []domain.CartItem{}
	return cart, nil
}

func (r *cartRepository) Get(ctx context.Context, id uuid.UUID) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cart := domain.Cart{ID: id}
	err := r.q.QueryRowContext(ctx, `SELECT created_at FROM carts WHERE id = $1`, id).Scan(&cart.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}
	cart.CreatedAt = cart.CreatedAt.UTC()

	if cart.Items, err = loadCartItems(ctx, r.q, id); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// Lock берёт строковую блокировку корзины до конца текущей транзакции.
func (r *cartRepository) Lock(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var locked uuid.UUID
	err := r.q.QueryRowContext(ctx, `SELECT id FROM carts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCartNotFound
		}
		return fmt.Errorf("lock cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return expectAffected(res, domain.ErrCartNotFound)
}

type cartItemRepository struct {
	q querier
}

const cartItemSelect = `
	SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, p.title, p.unit_price
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id`

func scanCartItem(row interface{ Scan(dest ...any) error }) (domain.CartItem, error) {
	var item domain.CartItem
	err := row.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.Product.Title, &item.Product.UnitPrice)
	item.Product.ID = item.ProductID
	return item, err
}

func (r *cartItemRepository) List(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM carts WHERE id = $1)`, cartID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check cart exists: %w", err)
	}
	if !exists {
		return nil, domain.ErrCartNotFound
	}

	return loadCartItems(ctx, r.q, cartID)
}

func (r *cartItemRepository) Get(ctx context.Context, cartID uuid.UUID, id int64) (domain.CartItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	item, err := scanCartItem(r.q.QueryRowContext(ctx, cartItemSelect+`
		WHERE ci.cart_id = $1 AND ci.id = $2
	`, cartID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, domain.ErrCartItemNotFound
		}
		return domain.CartItem{}, fmt.Errorf("select cart item: %w", err)
	}
	return item, nil
}

func (r *cartItemRepository) FindByProduct(ctx context.Context, cartID uuid.UUID, productID int64) (domain.CartItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	item, err := scanCartItem(r.q.QueryRowContext(ctx, cartItemSelect+`
		WHERE ci.cart_id = $1 AND ci.product_id = $2
	`, cartID, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, domain.ErrCartItemNotFound
		}
		return domain.CartItem{}, fmt.Errorf("find cart item by product: %w", err)
	}
	return item, nil
}

// Create опирается на ограничение cart_items_cart_product_uq: дубликат превращается в ErrCartItemConflict.
func (r *cartItemRepository) Create(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)
		RETURNING id
	`, item.CartID, item.ProductID, item.Quantity).Scan(&item.ID)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.CartItem{}, domain.ErrCartItemConflict
		case isForeignKeyViolation(err):
			if violatedConstraint(err) == "cart_items_cart_id_fkey" {
				return domain.CartItem{}, domain.ErrCartNotFound
			}
			return domain.CartItem{}, domain.ErrProductNotFound
		}
		return domain.CartItem{}, fmt.Errorf("insert cart item: %w", err)
	}

	return r.Get(ctx, item.CartID, item.ID)
}

func (r *cartItemRepository) UpdateQuantity(ctx context.Context, cartID uuid.UUID, id int64, quantity int) (domain.CartItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $1 WHERE cart_id = $2 AND id = $3
	`, quantity, cartID, id)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("update cart item quantity: %w", err)
	}
	if err := expectAffected(res, domain.ErrCartItemNotFound); err != nil {
		return domain.CartItem{}, err
	}
	return r.Get(ctx, cartID, id)
}

func (r *cartItemRepository) Delete(ctx context.Context, cartID uuid.UUID, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`, cartID, id)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return expectAffected(res, domain.ErrCartItemNotFound)
}

func (r *cartItemRepository) Count(ctx context.Context, cartID uuid.UUID) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM cart_items WHERE cart_id = $1`, cartID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cart items: %w", err)
	}
	return n, nil
}

func loadCartItems(ctx context.Context, q querier, cartID uuid.UUID) ([]domain.CartItem, error) {
	rows, err := q.QueryContext(ctx, cartItemSelect+`
		WHERE ci.cart_id = $1
		ORDER BY ci.id
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

var (
	_ domain.CartRepository     = (*cartRepository)(nil)
	_ domain.CartItemRepository = (*cartItemRepository)(nil)
)
