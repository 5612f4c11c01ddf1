package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"photoflow/internal/config"
)

// FileName is the database file created under the configured data directory.
const FileName = "photoflow.db"

// DB is the shared SQLite handle.
type DB struct {
	db   *sql.DB
	path string
}

// Open connects to the database under cfg.Paths.DataDir, creating the
// directory and schema if needed.
func Open(cfg *config.Config) (*DB, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, FileName))
}

// OpenPath connects to the SQLite database at path.
func OpenPath(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has a single writer; serialize in-process access on one connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	handle := &DB{db: db, path: path}
	if err := handle.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return handle, nil
}

// SQL exposes the underlying connection pool for read queries.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Path returns the database file path.
func (d *DB) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("database not open")
	}
	return d.db.PingContext(EnsureContext(ctx))
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
