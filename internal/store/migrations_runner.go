package store

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"gitea.jw6.us/james/bookingcal/internal/migrations"
)

// MigrationPool is the part of the pool the migrator needs.
type MigrationPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const (
	qMigrationTableExists = `SELECT EXISTS (
        SELECT 1 FROM information_schema.tables
        WHERE table_schema='public' AND table_name='schema_migrations'
)`
	qCountTables = `SELECT COUNT(*) FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')`
	qCreateMigrationTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version TEXT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	qMigrationApplied = `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version=$1)`
	qRecordMigration  = `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`
)

// Migrator applies SQL files from a filesystem in name order, each inside
// its own transaction, and records them in schema_migrations.
type Migrator struct {
	pool   MigrationPool
	files  fs.FS
	logger *zap.Logger
}

// NewMigrator returns a migrator over the embedded booking schema.
func NewMigrator(pool MigrationPool, logger *zap.Logger) *Migrator {
	return &Migrator{pool: pool, files: migrations.Files, logger: logger}
}

// ApplyMigrations runs the embedded migrations against pool.
func ApplyMigrations(ctx context.Context, pool MigrationPool, logger *zap.Logger) error {
	return NewMigrator(pool, logger).Apply(ctx)
}

// Apply runs pending migrations. A database that already holds tables but no
// tracking table is assumed to contain the first migration, which is then
// only recorded, not replayed.
func (m *Migrator) Apply(ctx context.Context) error {
	defer observeDB(ctx, "db.migrate")()

	names, err := m.list()
	if err != nil || len(names) == 0 {
		return err
	}

	tracked, err := m.queryBool(ctx, qMigrationTableExists)
	if err != nil {
		return fmt.Errorf("check migration table: %w", err)
	}
	if !tracked {
		var tables int
		if err := m.pool.QueryRow(ctx, qCountTables).Scan(&tables); err != nil {
			return fmt.Errorf("count tables: %w", err)
		}
		if _, err := m.pool.Exec(ctx, qCreateMigrationTable); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}
		if tables > 0 {
			if _, err := m.pool.Exec(ctx, qRecordMigration, names[0]); err != nil {
				return fmt.Errorf("record migration %s: %w", names[0], err)
			}
			m.logger.Info("existing schema adopted", zap.String("migration", names[0]))
		}
	}

	for _, name := range names {
		applied, err := m.queryBool(ctx, qMigrationApplied, name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		if err := m.apply(ctx, name); err != nil {
			return err
		}
		m.logger.Info("migration applied", zap.String("migration", name))
	}
	return nil
}

func (m *Migrator) list() ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Migrator) queryBool(ctx context.Context, q string, args ...any) (bool, error) {
	var v bool
	err := m.pool.QueryRow(ctx, q, args...).Scan(&v)
	return v, err
}

func (m *Migrator) apply(ctx context.Context, name string) error {
	contents, err := fs.ReadFile(m.files, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, string(contents)); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, qRecordMigration, name); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}
