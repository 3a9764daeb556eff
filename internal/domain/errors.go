package domain

import "errors"

var (
	// ErrCollectionNotFound возвращается, если коллекции нет в хранилище.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrCollectionNotEmpty — коллекцию нельзя удалить, пока на неё ссылаются товары.
	ErrCollectionNotEmpty = errors.New("collection cannot be deleted, because it includes one or more products")
	// ErrCollectionTitleTaken — название коллекции уже занято.
	ErrCollectionTitleTaken = errors.New("collection with this title already exists")

	// ErrProductNotFound возвращается, если товара нет в хранилище.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductInOrders — товар нельзя удалить, пока он есть в позициях заказов.
	ErrProductInOrders = errors.New("product cannot be deleted, because it is associated with an order item")
	// ErrProductTitleTaken — название товара уже занято.
	ErrProductTitleTaken = errors.New("product with this title already exists")

	// ErrImageNotFound возвращается, если изображения товара нет.
	ErrImageNotFound = errors.New("product image not found")

	// ErrCartNotFound возвращается, если корзины с таким ID нет.
	ErrCartNotFound = errors.New("no cart with the given ID was found")
	// ErrCartEmpty — корзина без позиций не может быть превращена в заказ.
	ErrCartEmpty = errors.New("the cart is empty")
	// ErrCartItemNotFound возвращается, если позиции корзины нет.
	ErrCartItemNotFound = errors.New("cart item not found")
	// ErrCartItemConflict — позиция с этим товаром уже есть в корзине (нарушение уникальности).
	ErrCartItemConflict = errors.New("cart already contains this product")

	// ErrCustomerNotFound возвращается, если профиля покупателя нет.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrCustomerExists — у пользователя уже есть профиль покупателя.
	ErrCustomerExists = errors.New("customer for this user already exists")
	// ErrCustomerHasOrders — покупателя нельзя удалить, пока у него есть заказы.
	ErrCustomerHasOrders = errors.New("customer cannot be deleted, because they have placed orders")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")

	// ErrReviewNotFound возвращается, если отзыва нет.
	ErrReviewNotFound = errors.New("review not found")

	// ErrUserNotFound возвращается, если пользователя нет.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken — имя пользователя уже занято.
	ErrUsernameTaken = errors.New("a user with that username already exists")
	// ErrInvalidCredentials — неверная пара логин/пароль.
	ErrInvalidCredentials = errors.New("no active account found with the given credentials")

	// ErrNotAuthenticated — операция требует входа в систему.
	ErrNotAuthenticated = errors.New("authentication credentials were not provided")
	// ErrPermissionDenied — у пользователя нет прав на операцию.
	ErrPermissionDenied = errors.New("you do not have permission to perform this action")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageNotFound — в outbox нет записи с таким id.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использовался.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использовался с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key is used with different request payload")
	// ErrIdempotencyKeyNotFound — записи по ключу нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// IsNotFound сообщает, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	switch {
	case errors.Is(err, ErrCollectionNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrImageNotFound),
		errors.Is(err, ErrCartNotFound),
		errors.Is(err, ErrCartItemNotFound),
		errors.Is(err, ErrCustomerNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrReviewNotFound),
		errors.Is(err, ErrUserNotFound):
		return true
	default:
		return false
	}
}

// IsDeleteProtected сообщает, что удаление запрещено из-за ссылающихся записей.
func IsDeleteProtected(err error) bool {
	return errors.Is(err, ErrCollectionNotEmpty) ||
		errors.Is(err, ErrProductInOrders) ||
		errors.Is(err, ErrCustomerHasOrders)
}

// IsIdempotencyConflict проверяет, что ключ уже занят (тем же или другим запросом).
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
