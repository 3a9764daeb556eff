package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type cartRepository struct {
	db access
}

func (r *cartRepository) Create(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	err := r.db.write(func(st *state) error {
		if cart.ID == uuid.Nil {
			cart.ID = uuid.New()
		}
		if cart.CreatedAt.IsZero() {
			cart.CreatedAt = time.Now().UTC()
		}
		cart.Items = nil
		st.carts[cart.ID] = cart
		cart.Items = []domain.CartItem{}
		return nil
	})
	return cart, err
}

func (r *cartRepository) Get(_ context.Context, id uuid.UUID) (domain.Cart, error) {
	var result domain.Cart
	err := r.db.read(func(st *state) error {
		cart, ok := st.carts[id]
		if !ok {
			return domain.ErrCartNotFound
		}
		cart.Items = cartItems(st, id)
		result = cart
		return nil
	})
	return result, err
}

// Lock в памяти только проверяет наличие: WithinTx уже держит эксклюзивную блокировку.
func (r *cartRepository) Lock(_ context.Context, id uuid.UUID) error {
	return r.db.read(func(st *state) error {
		if _, ok := st.carts[id]; !ok {
			return domain.ErrCartNotFound
		}
		return nil
	})
}

func (r *cartRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.db.write(func(st *state) error {
		if _, ok := st.carts[id]; !ok {
			return domain.ErrCartNotFound
		}
		delete(st.carts, id)
		for itemID, item := range st.cartItems {
			if item.CartID == id {
				delete(st.cartItems, itemID)
			}
		}
		return nil
	})
}

type cartItemRepository struct {
	db access
}

func (r *cartItemRepository) List(_ context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	var result []domain.CartItem
	err := r.db.read(func(st *state) error {
		if _, ok := st.carts[cartID]; !ok {
			return domain.ErrCartNotFound
		}
		result = cartItems(st, cartID)
		return nil
	})
	return result, err
}

func (r *cartItemRepository) Get(_ context.Context, cartID uuid.UUID, id int64) (domain.CartItem, error) {
	var result domain.CartItem
	err := r.db.read(func(st *state) error {
		item, ok := st.cartItems[id]
		if !ok || item.CartID != cartID {
			return domain.ErrCartItemNotFound
		}
		result = withProduct(st, item)
		return nil
	})
	return result, err
}

func (r *cartItemRepository) FindByProduct(_ context.Context, cartID uuid.UUID, productID int64) (domain.CartItem, error) {
	var result domain.CartItem
	err := r.db.read(func(st *state) error {
		for _, item := range st.cartItems {
			if item.CartID == cartID && item.ProductID == productID {
				result = withProduct(st, item)
				return nil
			}
		}
		return domain.ErrCartItemNotFound
	})
	return result, err
}

func (r *cartItemRepository) Create(_ context.Context, item domain.CartItem) (domain.CartItem, error) {
	err := r.db.write(func(st *state) error {
		if _, ok := st.carts[item.CartID]; !ok {
			return domain.ErrCartNotFound
		}
		if _, ok := st.products[item.ProductID]; !ok {
			return domain.ErrProductNotFound
		}
		// Уникальность (cart_id, product_id), как у ограничения в PostgreSQL.
		for _, existing := range st.cartItems {
			if existing.CartID == item.CartID && existing.ProductID == item.ProductID {
				return domain.ErrCartItemConflict
			}
		}
		item.ID = st.nextID()
		item.Product = domain.ProductSummary{}
		st.cartItems[item.ID] = item
		item = withProduct(st, item)
		return nil
	})
	return item, err
}

func (r *cartItemRepository) UpdateQuantity(_ context.Context, cartID uuid.UUID, id int64, quantity int) (domain.CartItem, error) {
	var result domain.CartItem
	err := r.db.write(func(st *state) error {
		item, ok := st.cartItems[id]
		if !ok || item.CartID != cartID {
			return domain.ErrCartItemNotFound
		}
		item.Quantity = quantity
		st.cartItems[id] = item
		result = withProduct(st, item)
		return nil
	})
	return result, err
}

func (r *cartItemRepository) Delete(_ context.Context, cartID uuid.UUID, id int64) error {
	return r.db.write(func(st *state) error {
		item, ok := st.cartItems[id]
		if !ok || item.CartID != cartID {
			return domain.ErrCartItemNotFound
		}
		delete(st.cartItems, id)
		return nil
	})
}

func (r *cartItemRepository) Count(_ context.Context, cartID uuid.UUID) (int, error) {
	var n int
	err := r.db.read(func(st *state) error {
		for _, item := range st.cartItems {
			if item.CartID == cartID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func cartItems(st *state, cartID uuid.UUID) []domain.CartItem {
	result := make([]domain.CartItem, 0)
	for _, item := range st.cartItems {
		if item.CartID == cartID {
			result = append(result, withProduct(st, item))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func withProduct(st *state, item domain.CartItem) domain.CartItem {
	if p, ok := st.products[item.ProductID]; ok {
		item.Product = p.Summary()
	}
	return item
}

var (
	_ domain.CartRepository     = (*cartRepository)(nil)
	_ domain.CartItemRepository = (*cartItemRepository)(nil)
)
