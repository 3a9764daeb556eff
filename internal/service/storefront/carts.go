package storefront

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// CreateCart создаёт пустую анонимную корзину.
func (s *Service) CreateCart(ctx context.Context) (domain.Cart, error) {
	cart, err := s.repos.Carts.Create(ctx, domain.Cart{CreatedAt: s.now()})
	if err != nil {
		return domain.Cart{}, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}

// GetCart возвращает корзину с позициями.
func (s *Service) GetCart(ctx context.Context, id uuid.UUID) (domain.Cart, error) {
	return s.repos.Carts.Get(ctx, id)
}

// DeleteCart удаляет корзину вместе с позициями.
func (s *Service) DeleteCart(ctx context.Context, id uuid.UUID) error {
	return s.repos.Carts.Delete(ctx, id)
}

// ListCartItems возвращает позиции корзины.
func (s *Service) ListCartItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	if err := s.repos.Carts.Lock(ctx, cartID); err != nil {
		return nil, err
	}
	return s.repos.CartItems.List(ctx, cartID)
}

// GetCartItem возвращает позицию корзины.
func (s *Service) GetCartItem(ctx context.Context, cartID uuid.UUID, id int64) (domain.CartItem, error) {
	return s.repos.CartItems.Get(ctx, cartID, id)
}

// AddCartItem добавляет товар в корзину. Если товар уже есть, количество складывается с имеющимся.
func (s *Service) AddCartItem(ctx context.Context, cartID uuid.UUID, productID int64, quantity int) (domain.CartItem, error) {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return domain.CartItem{}, err
	}

	item, merged, err := s.mergeCartItem(ctx, cartID, productID, quantity)
	// Параллельный запрос мог вставить ту же позицию между поиском и вставкой: повторяем один раз как слияние.
	if errors.Is(err, domain.ErrCartItemConflict) {
		item, merged, err = s.mergeCartItem(ctx, cartID, productID, quantity)
	}
	if err != nil {
		return domain.CartItem{}, err
	}

	s.metrics.RecordCartItemAdded(merged)
	s.logger.WithFields(map[string]any{
		"cart_id":    cartID,
		"product_id": productID,
		"merged":     merged,
	}).Debug("cart item added")
	return item, nil
}

func (s *Service) mergeCartItem(ctx context.Context, cartID uuid.UUID, productID int64, quantity int) (domain.CartItem, bool, error) {
	var (
		result domain.CartItem
		merged bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Carts.Lock(ctx, cartID); err != nil {
			return err
		}
		if _, err := repos.Products.Get(ctx, productID); err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				return domain.NewValidationError("product_id", msgNoProduct)
			}
			return err
		}

		existing, err := repos.CartItems.FindByProduct(ctx, cartID, productID)
		switch {
		case err == nil:
			result, err = repos.CartItems.UpdateQuantity(ctx, cartID, existing.ID, existing.Quantity+quantity)
			merged = true
			return err
		case errors.Is(err, domain.ErrCartItemNotFound):
			result, err = repos.CartItems.Create(ctx, domain.CartItem{
				CartID:    cartID,
				ProductID: productID,
				Quantity:  quantity,
			})
			return err
		default:
			return err
		}
	})
	return result, merged, err
}

// UpdateCartItem задаёт новое количество позиции.
func (s *Service) UpdateCartItem(ctx context.Context, cartID uuid.UUID, id int64, quantity int) (domain.CartItem, error) {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return domain.CartItem{}, err
	}
	return s.repos.CartItems.UpdateQuantity(ctx, cartID, id, quantity)
}

// RemoveCartItem удаляет позицию из корзины.
func (s *Service) RemoveCartItem(ctx context.Context, cartID uuid.UUID, id int64) error {
	return s.repos.CartItems.Delete(ctx, cartID, id)
}
