package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

const opTimeout = 5 * time.Second

// querier — общее подмножество *sql.DB и *sql.Tx, которым пользуются репозитории.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PoolOptions настраивает пул соединений database/sql.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// Option изменяет PoolOptions.
type Option func(*PoolOptions)

// WithMaxConns ограничивает число открытых и простаивающих соединений.
func WithMaxConns(n int) Option {
	return func(o *PoolOptions) {
		if n > 0 {
			o.MaxOpenConns = n
			o.MaxIdleConns = n
		}
	}
}

// WithPingTimeout задаёт таймаут проверки соединения при открытии и в Ping.
func WithPingTimeout(d time.Duration) Option {
	return func(o *PoolOptions) {
		if d > 0 {
			o.PingTimeout = d
		}
	}
}

func defaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db          *sql.DB
	logger      *log.Entry
	pingTimeout time.Duration
}

// Open разбирает DSN драйвером pgx, настраивает пул и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	o := defaultPoolOptions()
	for _, opt := range opts {
		opt(&o)
	}

	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxIdleConns)
	db.SetConnMaxLifetime(o.ConnMaxLifetime)
	db.SetConnMaxIdleTime(o.ConnMaxIdleTime)

	store := NewFromDB(db)
	store.pingTimeout = o.PingTimeout
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres %s:%d: %w", connCfg.Host, connCfg.Port, err)
	}
	store.logger.WithFields(log.Fields{
		"host":      connCfg.Host,
		"database":  connCfg.Database,
		"max_conns": o.MaxOpenConns,
	}).Info("postgres connected")
	return store, nil
}

// NewFromDB оборачивает уже открытое подключение (например, sqlmock в тестах).
func NewFromDB(db *sql.DB) *Store {
	return &Store{
		db:          db,
		logger:      log.WithField("component", "postgres"),
		pingTimeout: defaultPoolOptions().PingTimeout,
	}
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции; используется при старте сервиса.
func (s *Store) EnsureSchema(ctx context.Context) error {
	applied, err := s.MigrateUp(ctx, 0)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		s.logger.WithField("applied", applied).Info("schema is up to date")
	}
	return nil
}

// Repositories возвращает репозитории, работающие в режиме autocommit.
func (s *Store) Repositories() domain.Repositories {
	return repositoriesFor(s.db)
}

// WithinTx выполняет fn в одной транзакции: ошибка или паника откатывают все изменения.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, repositoriesFor(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func repositoriesFor(q querier) domain.Repositories {
	return domain.Repositories{
		Collections: &collectionRepository{q: q},
		Products:    &productRepository{q: q},
		Images:      &imageRepository{q: q},
		Carts:       &cartRepository{q: q},
		CartItems:   &cartItemRepository{q: q},
		Customers:   &customerRepository{q: q},
		Orders:      &orderRepository{q: q},
		Reviews:     &reviewRepository{q: q},
		Users:       &userRepository{q: q},
		Outbox:      &outboxRepository{q: q},
	}
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ domain.UnitOfWork = (*Store)(nil)
