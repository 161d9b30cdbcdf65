// Package runstore keeps a history of generation runs in SQLite or
// PostgreSQL.
package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var (
	ErrRunNotFound   = errors.New("runstore: run not found")
	ErrDuplicateRun  = errors.New("runstore: run with this digest already recorded")
	ErrUnknownDriver = errors.New("runstore: unknown driver")
)

// Store wraps the database connection.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the configured database and creates the schema.
func Open(cfg Config) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.SQLitePath
	if d.numbered {
		dsn = cfg.Postgres.DSN()
	} else if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d.numbered {
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	} else {
		// One writer keeps WAL mode and the pragmas on a single connection.
		db.SetMaxOpenConns(1)
	}

	s, err := newStore(db, d)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// newStore runs the dialect's session setup and creates the schema on an
// open handle.
func newStore(db *sql.DB, d dialect) (*Store, error) {
	for _, stmt := range d.init {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("init statement %q failed: %w", stmt, err)
		}
	}
	for _, m := range schema(d) {
		if _, err := db.Exec(m); err != nil {
			return nil, fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return &Store{db: db, dialect: d}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// schema returns the idempotent DDL for d.
func schema(d dialect) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id ` + d.primaryKey + `,
			seed BIGINT NOT NULL,
			digest TEXT UNIQUE NOT NULL,
			mode TEXT NOT NULL,
			strategy TEXT NOT NULL,
			nodes INTEGER NOT NULL,
			completed INTEGER NOT NULL,
			contradictions INTEGER NOT NULL,
			in_progress INTEGER NOT NULL,
			ticks INTEGER NOT NULL,
			restarts INTEGER NOT NULL DEFAULT 0,
			degraded INTEGER NOT NULL DEFAULT 0,
			bound_violations INTEGER NOT NULL DEFAULT 0,
			conflicts INTEGER NOT NULL DEFAULT 0,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS assignments (
			run_id BIGINT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			node_id INTEGER NOT NULL,
			tile_id TEXT NOT NULL DEFAULT '',
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			biome TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL,
			forced ` + d.boolType + ` NOT NULL DEFAULT ` + d.boolFalse + `,
			PRIMARY KEY (run_id, node_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed)`,
	}
}
