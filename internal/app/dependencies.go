package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ibuy/internal/health"
	"github.com/vladislavdragonenkov/ibuy/internal/service/storefront"
	"github.com/vladislavdragonenkov/ibuy/internal/storage/memory"
	"github.com/vladislavdragonenkov/ibuy/internal/storage/postgres"
)

// runtimeDependencies содержит хранилище, выбранное по Config.StorageDriver.
type runtimeDependencies struct {
	store           storefront.Store
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		logger.Warn("using in-memory storage, data is lost on restart")
		return runtimeDependencies{
			store:           store,
			outboxRepo:      store.Repositories().Outbox,
			idempotencyRepo: memory.NewIdempotencyRepository(),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return runtimeDependencies{}, fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
		if err != nil {
			return runtimeDependencies{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		return runtimeDependencies{
			store:           store,
			outboxRepo:      store.Repositories().Outbox,
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			storageChecker:  healthcheck.NewFuncChecker("postgres", store.Ping),
			closeFn:         store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
