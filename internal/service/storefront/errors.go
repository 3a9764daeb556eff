package storefront

import (
	"errors"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// Сообщения валидации, которые видит клиент.
const (
	msgNoCart    = "No cart with the given ID was found."
	msgCartEmpty = "The cart is empty."
	msgNoProduct = "No product with the given ID was found."
)

func titleConflict(err, sentinel error, entity string) error {
	if errors.Is(err, sentinel) {
		return domain.NewValidationError("title", entity+" with this title already exists.")
	}
	return err
}

func productWriteError(err error) error {
	switch {
	case errors.Is(err, domain.ErrProductTitleTaken):
		return titleConflict(err, domain.ErrProductTitleTaken, "product")
	case errors.Is(err, domain.ErrCollectionNotFound):
		return domain.NewValidationError("collection_id", "Invalid pk - object does not exist.")
	default:
		return err
	}
}
