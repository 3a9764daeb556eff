package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart — анонимная корзина, идентифицируемая непрозрачным UUID.
type Cart struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Items     []CartItem
}

// TotalPrice считает стоимость корзины по текущим ценам товаров.
func (c Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.TotalPrice())
	}
	return total
}

// CartItem — одна позиция корзины. На пару (CartID, ProductID) допускается одна позиция.
type CartItem struct {
	ID        int64
	CartID    uuid.UUID
	ProductID int64
	Product   ProductSummary
	Quantity  int
}

// TotalPrice возвращает quantity * unit_price позиции.
func (i CartItem) TotalPrice() decimal.Decimal {
	return i.Product.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ValidateQuantity проверяет количество товара в позиции.
func ValidateQuantity(quantity int) error {
	if quantity < 1 {
		return NewValidationError("quantity", "Ensure this value is greater than or equal to 1.")
	}
	return nil
}
