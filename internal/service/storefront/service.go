package storefront

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/metrics"
)

// DefaultMaxImageSize — предельный размер загружаемого изображения (50 KB).
const DefaultMaxImageSize int64 = 50 * 1024

// Store — хранилище, поддерживающее одиночные операции и транзакции.
type Store interface {
	domain.UnitOfWork
	Repositories() domain.Repositories
}

// PasswordHasher хэширует и проверяет пароли пользователей.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// ServiceOptions задаёт необязательные зависимости сервиса.
type ServiceOptions struct {
	Logger       *log.Entry
	Metrics      *metrics.StoreMetrics
	Images       domain.ImageStore
	Hasher       PasswordHasher
	MaxImageSize int64
	Clock        func() time.Time
}

// Option настраивает Service.
type Option func(*ServiceOptions)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ServiceOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт бизнес-метрики.
func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(opts *ServiceOptions) {
		opts.Metrics = m
	}
}

// WithImageStore задаёт хранилище файлов изображений.
func WithImageStore(images domain.ImageStore) Option {
	return func(opts *ServiceOptions) {
		opts.Images = images
	}
}

// WithPasswordHasher задаёт алгоритм хэширования паролей.
func WithPasswordHasher(hasher PasswordHasher) Option {
	return func(opts *ServiceOptions) {
		opts.Hasher = hasher
	}
}

// WithMaxImageSize ограничивает размер изображения в байтах.
func WithMaxImageSize(size int64) Option {
	return func(opts *ServiceOptions) {
		opts.MaxImageSize = size
	}
}

// WithClock подменяет источник времени (используется в тестах).
func WithClock(clock func() time.Time) Option {
	return func(opts *ServiceOptions) {
		opts.Clock = clock
	}
}

// Service реализует бизнес-правила витрины поверх репозиториев.
type Service struct {
	store        Store
	repos        domain.Repositories
	logger       *log.Entry
	metrics      *metrics.StoreMetrics
	images       domain.ImageStore
	hasher       PasswordHasher
	maxImageSize int64
	now          func() time.Time
}

// NewService конструирует сервис с зависимостями.
func NewService(store Store, options ...Option) *Service {
	opts := ServiceOptions{MaxImageSize: DefaultMaxImageSize}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "storefront")
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = DefaultMaxImageSize
	}

	return &Service{
		store:        store,
		repos:        store.Repositories(),
		logger:       logger,
		metrics:      opts.Metrics,
		images:       opts.Images,
		hasher:       opts.Hasher,
		maxImageSize: opts.MaxImageSize,
		now:          clock,
	}
}

func requireStaff(actor domain.Actor) error {
	if !actor.Authenticated() {
		return domain.ErrNotAuthenticated
	}
	if !actor.IsStaff {
		return domain.ErrPermissionDenied
	}
	return nil
}

func requireUser(actor domain.Actor) error {
	if !actor.Authenticated() {
		return domain.ErrNotAuthenticated
	}
	return nil
}

// customerFor возвращает профиль пользователя, создавая его при первом обращении.
func customerFor(ctx context.Context, repos domain.Repositories, userID int64) (domain.Customer, error) {
	customer, err := repos.Customers.GetByUserID(ctx, userID)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, domain.ErrCustomerNotFound) {
		return domain.Customer{}, err
	}

	customer, err = repos.Customers.Create(ctx, domain.Customer{UserID: userID})
	if errors.Is(err, domain.ErrCustomerExists) {
		return repos.Customers.GetByUserID(ctx, userID)
	}
	return customer, err
}
