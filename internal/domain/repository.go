package domain

import (
	"context"

	"github.com/google/uuid"
)

// CollectionRepository описывает хранилище коллекций.
type CollectionRepository interface {
	Create(ctx context.Context, c Collection) (Collection, error)
	// Get возвращает коллекцию с ProductsCount или ErrCollectionNotFound.
	Get(ctx context.Context, id int64) (Collection, error)
	List(ctx context.Context, page Page) ([]Collection, int, error)
	Update(ctx context.Context, c Collection) (Collection, error)
	// Delete возвращает ErrCollectionNotEmpty, если на коллекцию ссылаются товары.
	Delete(ctx context.Context, id int64) error
}

// ProductRepository описывает хранилище товаров.
type ProductRepository interface {
	Create(ctx context.Context, p Product) (Product, error)
	// Get возвращает товар вместе с изображениями.
	Get(ctx context.Context, id int64) (Product, error)
	List(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	Update(ctx context.Context, p Product) (Product, error)
	// Delete возвращает ErrProductInOrders, если товар есть в позициях заказов.
	Delete(ctx context.Context, id int64) error
	CountByCollection(ctx context.Context, collectionID int64) (int, error)
}

// ProductImageRepository описывает хранилище изображений товаров.
type ProductImageRepository interface {
	Create(ctx context.Context, img ProductImage) (ProductImage, error)
	Get(ctx context.Context, productID, id int64) (ProductImage, error)
	List(ctx context.Context, productID int64) ([]ProductImage, error)
	Delete(ctx context.Context, productID, id int64) error
}

// CartRepository описывает хранилище корзин.
type CartRepository interface {
	Create(ctx context.Context, cart Cart) (Cart, error)
	// Get возвращает корзину с позициями и сводкой по товарам.
	Get(ctx context.Context, id uuid.UUID) (Cart, error)
	// Lock блокирует корзину до конца транзакции; вне транзакции только проверяет наличие.
	Lock(ctx context.Context, id uuid.UUID) error
	// Delete удаляет корзину вместе с позициями.
	Delete(ctx context.Context, id uuid.UUID) error
}

// CartItemRepository описывает хранилище позиций корзины.
type CartItemRepository interface {
	List(ctx context.Context, cartID uuid.UUID) ([]CartItem, error)
	Get(ctx context.Context, cartID uuid.UUID, id int64) (CartItem, error)
	// FindByProduct возвращает позицию с товаром или ErrCartItemNotFound.
	FindByProduct(ctx context.Context, cartID uuid.UUID, productID int64) (CartItem, error)
	// Create возвращает ErrCartItemConflict, если товар уже есть в корзине.
	Create(ctx context.Context, item CartItem) (CartItem, error)
	UpdateQuantity(ctx context.Context, cartID uuid.UUID, id int64, quantity int) (CartItem, error)
	Delete(ctx context.Context, cartID uuid.UUID, id int64) error
	Count(ctx context.Context, cartID uuid.UUID) (int, error)
}

// CustomerRepository описывает хранилище профилей покупателей.
type CustomerRepository interface {
	// Create возвращает ErrCustomerExists, если профиль пользователя уже есть.
	Create(ctx context.Context, c Customer) (Customer, error)
	Get(ctx context.Context, id int64) (Customer, error)
	GetByUserID(ctx context.Context, userID int64) (Customer, error)
	List(ctx context.Context, page Page) ([]Customer, int, error)
	Update(ctx context.Context, c Customer) (Customer, error)
	// Delete возвращает ErrCustomerHasOrders, если у покупателя есть заказы.
	Delete(ctx context.Context, id int64) error
}

// OrderRepository описывает хранилище заказов.
type OrderRepository interface {
	// Create сохраняет заказ и все его позиции.
	Create(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter OrderFilter) ([]Order, int, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) (Order, error)
	Delete(ctx context.Context, id int64) error
	CountItemsByProduct(ctx context.Context, productID int64) (int, error)
}

// ReviewRepository описывает хранилище отзывов.
type ReviewRepository interface {
	Create(ctx context.Context, r Review) (Review, error)
	Get(ctx context.Context, productID, id int64) (Review, error)
	List(ctx context.Context, productID int64, page Page) ([]Review, int, error)
	Update(ctx context.Context, r Review) (Review, error)
	Delete(ctx context.Context, productID, id int64) error
}

// UserRepository описывает хранилище учётных записей.
type UserRepository interface {
	// Create возвращает ErrUsernameTaken при занятом имени.
	Create(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
}

// Repositories объединяет репозитории, работающие в одной транзакции.
type Repositories struct {
	Collections CollectionRepository
	Products    ProductRepository
	Images      ProductImageRepository
	Carts       CartRepository
	CartItems   CartItemRepository
	Customers   CustomerRepository
	Orders      OrderRepository
	Reviews     ReviewRepository
	Users       UserRepository
	Outbox      OutboxRepository
}

// UnitOfWork выполняет fn в транзакции: nil фиксирует изменения, ошибка откатывает их целиком.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
