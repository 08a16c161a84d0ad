// Package db opens the SQLite store and applies the embedded schema.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vytor/simclinic/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	*sql.DB
	log *logger.Logger
}

// Open opens the database at path and brings its schema up to date.
func Open(path string) (*DB, error) {
	log := logger.Default().WithPrefix("db")

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL", path)
	log.Info("opening database: %s", path)

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.Error("failed to open database: %v", err)
		return nil, err
	}
	// Single writer; optimistic version checks rely on serialized statements.
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(context.Background(), sqlDB); err != nil {
		log.Error("failed to apply migrations: %v", err)
		_ = sqlDB.Close()
		return nil, err
	}

	log.Info("database ready")
	return &DB{DB: sqlDB, log: log}, nil
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, in file name order.
func Migrate(ctx context.Context, sqlDB *sql.DB) error {
	log := logger.FromContext(ctx).WithPrefix("db")

	if _, err := sqlDB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at DATETIME DEFAULT CURRENT_TIMESTAMP)`); err != nil {
		return err
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		version := entry.Name()
		applied, err := isMigrationApplied(ctx, sqlDB, version)
		if err != nil {
			return err
		}
		if applied {
			log.Debug("migration %s already applied, skipping", version)
			continue
		}
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + version)
		if err != nil {
			return err
		}
		log.Info("applying migration: %s", version)
		if _, err := sqlDB.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := sqlDB.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return err
		}
	}
	return nil
}

func isMigrationApplied(ctx context.Context, sqlDB *sql.DB, version string) (bool, error) {
	var v string
	err := sqlDB.QueryRowContext(ctx, `SELECT version FROM schema_migrations WHERE version = ?`, version).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Ready runs a trivial query; used by the readiness probe.
func (db *DB) Ready(ctx context.Context) error {
	var one int
	return db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}
