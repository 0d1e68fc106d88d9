package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

var errFailed = errors.New("boom")

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestOpenAppliesAllMigrations(t *testing.T) {
	d := openTestDB(t)

	tables := []string{
		"players", "users", "servers", "server_sessions",
		"maps", "courses", "filters", "plugin_versions",
		"mode_checksums", "style_checksums",
		"records", "best_records", "best_pro_records",
		"distribution_parameters", "pro_distribution_parameters",
		"filters_to_recalculate", "bans", "unbans",
		"browser_sessions", "config",
		"goose_db_version",
	}
	for _, table := range tables {
		var name string
		err := d.Conn().QueryRowContext(context.Background(),
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}
}

func TestInTransactionCommitsOnSuccess(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	err := d.InTransaction(ctx, func(ctx context.Context, q Querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO config (key, value) VALUES ('k', 'v')`)
		return err
	})
	if err != nil {
		t.Fatalf("InTransaction: %v", err)
	}

	var value string
	if err := d.Conn().QueryRowContext(ctx, `SELECT value FROM config WHERE key = 'k'`).Scan(&value); err != nil {
		t.Fatalf("expected committed row: %v", err)
	}
	if value != "v" {
		t.Errorf("got %q, want %q", value, "v")
	}
}

func TestInTransactionRollsBackOnError(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	sentinel := errFailed
	err := d.InTransaction(ctx, func(ctx context.Context, q Querier) error {
		if _, err := q.ExecContext(ctx, `INSERT INTO config (key, value) VALUES ('k2', 'v2')`); err != nil {
			return err
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	var count int
	if err := d.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM config WHERE key = 'k2'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected rollback, found %d rows", count)
	}
}

func TestInTransactionFlattensNested(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	err := d.InTransaction(ctx, func(ctx context.Context, q Querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO config (key, value) VALUES ('outer', '1')`)
		if err != nil {
			return err
		}
		return d.InTransaction(ctx, func(ctx context.Context, q Querier) error {
			_, err := q.ExecContext(ctx, `INSERT INTO config (key, value) VALUES ('inner', '1')`)
			return err
		})
	})
	if err != nil {
		t.Fatalf("InTransaction: %v", err)
	}

	var count int
	if err := d.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM config WHERE key IN ('outer', 'inner')`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected both rows committed together, got %d", count)
	}
}
