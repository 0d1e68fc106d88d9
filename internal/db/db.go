// Package db wraps the SQLite connection, migration runner, and the small
// set of transaction/query-building helpers every storage-backed package in
// this repo builds on (internal/catalog, internal/auth, internal/accesskeys,
// internal/points).
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DB wraps the SQLite connection pool.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and runs
// all pending migrations. journal_mode=wal and a busy_timeout let readers and
// a single writer coexist without SQLITE_BUSY errors under normal load.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db: ping sqlite: %w", err)
	}

	migrationsSub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db: migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsSub)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db: create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db: apply migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the underlying connection pool.
func (d *DB) Close() error { return d.conn.Close() }

// Conn returns the underlying *sql.DB for packages that need raw access.
func (d *DB) Conn() *sql.DB { return d.conn }
