package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	schemaLockID       = int64(0x1b0e7)
	schemaLockTimeout  = 5 * time.Second
	schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

//go:embed sql/migrations/*.sql
var embeddedMigrations embed.FS

var migrationNameRe = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

// SchemaStatus описывает состояние схемы: последнюю применённую версию и хвост неприменённых миграций.
type SchemaStatus struct {
	Version int64
	Applied int
	Pending []string
}

type schemaMigration struct {
	version int64
	name    string
	up      string
	down    string
}

func (m schemaMigration) label() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

// MigrateUp накатывает до steps неприменённых миграций по возрастанию версии (0 = все).
// Возвращает имена применённых миграций.
func (s *Store) MigrateUp(ctx context.Context, steps int) ([]string, error) {
	var done []string
	err := s.withSchemaLock(ctx, func(conn *sql.Conn, plan []schemaMigration) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		for _, m := range plan {
			if applied[m.version] {
				continue
			}
			if steps > 0 && len(done) == steps {
				break
			}
			err := runInTx(ctx, conn, m.up,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name)
			if err != nil {
				return fmt.Errorf("migration %s up: %w", m.label(), err)
			}
			s.logger.WithField("migration", m.label()).Info("migration applied")
			done = append(done, m.label())
		}
		return nil
	})
	return done, err
}

// MigrateDown откатывает последние steps миграций; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) ([]string, error) {
	if steps <= 0 {
		steps = 1
	}
	var done []string
	err := s.withSchemaLock(ctx, func(conn *sql.Conn, plan []schemaMigration) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		byVersion := make(map[int64]schemaMigration, len(plan))
		for _, m := range plan {
			byVersion[m.version] = m
		}

		versions := make([]int64, 0, len(applied))
		for v := range applied {
			versions = append(versions, v)
		}
		slices.Sort(versions)
		slices.Reverse(versions)

		for _, v := range versions {
			if len(done) == steps {
				break
			}
			m, ok := byVersion[v]
			if !ok {
				return fmt.Errorf("applied migration %d has no down script", v)
			}
			err := runInTx(ctx, conn, m.down, `DELETE FROM schema_migrations WHERE version = $1`, m.version)
			if err != nil {
				return fmt.Errorf("migration %s down: %w", m.label(), err)
			}
			s.logger.WithField("migration", m.label()).Info("migration rolled back")
			done = append(done, m.label())
		}
		return nil
	})
	return done, err
}

// MigrationStatus сравнивает встроенные миграции с таблицей schema_migrations.
func (s *Store) MigrationStatus(ctx context.Context) (SchemaStatus, error) {
	if s == nil || s.db == nil {
		return SchemaStatus{}, errStoreNotInitialized
	}
	plan, err := parseMigrations(embeddedMigrations)
	if err != nil {
		return SchemaStatus{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	conn, err := s.db.Conn(queryCtx)
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(queryCtx, schemaVersionTable); err != nil {
		return SchemaStatus{}, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := appliedVersions(queryCtx, conn)
	if err != nil {
		return SchemaStatus{}, err
	}

	status := SchemaStatus{Applied: len(applied)}
	for v := range applied {
		status.Version = max(status.Version, v)
	}
	for _, m := range plan {
		if !applied[m.version] {
			status.Pending = append(status.Pending, m.label())
		}
	}
	return status, nil
}

// withSchemaLock держит advisory lock на отдельном соединении, чтобы параллельные
// экземпляры сервиса не накатывали схему одновременно.
func (s *Store) withSchemaLock(ctx context.Context, fn func(conn *sql.Conn, plan []schemaMigration) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	plan, err := parseMigrations(embeddedMigrations)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, schemaLockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, schemaLockID); err != nil {
			s.logger.WithError(err).Warn("failed to release schema lock")
		}
	}()

	if _, err := conn.ExecContext(ctx, schemaVersionTable); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return fn(conn, plan)
}

// runInTx выполняет скрипт миграции и запись в schema_migrations атомарно.
func runInTx(ctx context.Context, conn *sql.Conn, script, bookkeeping string, args ...any) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec script: %w", err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update schema_migrations: %w", err)
	}
	return tx.Commit()
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// parseMigrations собирает пары up/down из каталога sql/migrations.
// Каждая версия обязана иметь оба скрипта с одинаковым именем.
func parseMigrations(fsys fs.FS) ([]schemaMigration, error) {
	entries, err := fs.ReadDir(fsys, "sql/migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := make(map[int64]*schemaMigration)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		parts := migrationNameRe.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("bad migration file name %q", entry.Name())
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad migration version in %q: %w", entry.Name(), err)
		}

		raw, err := fs.ReadFile(fsys, path.Join("sql/migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		script := strings.TrimSpace(string(raw))
		if script == "" {
			return nil, fmt.Errorf("migration %q is empty", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &schemaMigration{version: version, name: parts[2]}
			byVersion[version] = m
		}
		if m.name != parts[2] {
			return nil, fmt.Errorf("version %d is used by %q and %q", version, m.name, parts[2])
		}
		target := &m.up
		if parts[3] == "down" {
			target = &m.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s script for version %d", parts[3], version)
		}
		*target = script
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migrations embedded")
	}

	plan := make([]schemaMigration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down scripts", m.label())
		}
		plan = append(plan, *m)
	}
	slices.SortFunc(plan, func(a, b schemaMigration) int {
		return cmp.Compare(a.version, b.version)
	})
	return plan, nil
}
