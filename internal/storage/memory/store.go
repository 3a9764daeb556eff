package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// state — всё содержимое in-memory базы. Производные поля (позиции, сводки) собираются при чтении.
type state struct {
	seq int64

	users       map[int64]domain.User
	collections map[int64]domain.Collection
	products    map[int64]domain.Product
	images      map[int64]domain.ProductImage
	carts       map[uuid.UUID]domain.Cart
	cartItems   map[int64]domain.CartItem
	customers   map[int64]domain.Customer
	orders      map[int64]domain.Order
	orderItems  map[int64]domain.OrderItem
	reviews     map[int64]domain.Review
	outbox      map[string]outboxRecord
}

func newState() *state {
	return &state{
		users:       make(map[int64]domain.User),
		collections: make(map[int64]domain.Collection),
		products:    make(map[int64]domain.Product),
		images:      make(map[int64]domain.ProductImage),
		carts:       make(map[uuid.UUID]domain.Cart),
		cartItems:   make(map[int64]domain.CartItem),
		customers:   make(map[int64]domain.Customer),
		orders:      make(map[int64]domain.Order),
		orderItems:  make(map[int64]domain.OrderItem),
		reviews:     make(map[int64]domain.Review),
		outbox:      make(map[string]outboxRecord),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// clone делает копию карт; значения — структуры без разделяемых срезов.
func (s *state) clone() *state {
	return &state{
		seq:         s.seq,
		users:       cloneMap(s.users),
		collections: cloneMap(s.collections),
		products:    cloneMap(s.products),
		images:      cloneMap(s.images),
		carts:       cloneMap(s.carts),
		cartItems:   cloneMap(s.cartItems),
		customers:   cloneMap(s.customers),
		orders:      cloneMap(s.orders),
		orderItems:  cloneMap(s.orderItems),
		reviews:     cloneMap(s.reviews),
		outbox:      cloneMap(s.outbox),
	}
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// access абстрагирует блокировки: вне транзакции репозиторий берёт мьютекс Store,
// внутри — работает с копией состояния без блокировок.
type access interface {
	read(fn func(st *state) error) error
	write(fn func(st *state) error) error
}

// Store — in-memory реализация хранилища для локальной разработки и тестов.
type Store struct {
	mu sync.RWMutex
	st *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Repositories возвращает репозитории, каждая операция которых атомарна сама по себе.
func (s *Store) Repositories() domain.Repositories {
	return repositoriesFor(s)
}

// WithinTx выполняет fn над копией состояния и применяет её только при успехе.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := &txState{st: s.st.clone()}
	if err := fn(ctx, repositoriesFor(work)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.st = work.st
	return nil
}

// txState — состояние внутри транзакции, мьютекс уже удерживается WithinTx.
type txState struct {
	st *state
}

func (t *txState) read(fn func(st *state) error) error  { return fn(t.st) }
func (t *txState) write(fn func(st *state) error) error { return fn(t.st) }

func repositoriesFor(a access) domain.Repositories {
	return domain.Repositories{
		Collections: &collectionRepository{db: a},
		Products:    &productRepository{db: a},
		Images:      &imageRepository{db: a},
		Carts:       &cartRepository{db: a},
		CartItems:   &cartItemRepository{db: a},
		Customers:   &customerRepository{db: a},
		Orders:      &orderRepository{db: a},
		Reviews:     &reviewRepository{db: a},
		Users:       &userRepository{db: a},
		Outbox:      &outboxRepository{db: a},
	}
}

var _ domain.UnitOfWork = (*Store)(nil)
