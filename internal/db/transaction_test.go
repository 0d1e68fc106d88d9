package db

import (
	"context"
	"testing"
)

func TestMigrationsRecordAllVersions(t *testing.T) {
	d := openTestDB(t)

	var count int
	err := d.Conn().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM goose_db_version WHERE version_id > 0`,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count goose_db_version: %v", err)
	}
	if count == 0 {
		t.Fatal("expected at least one applied migration")
	}
}

func TestIsUniqueViolationDetectsConflict(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	_, err := d.Conn().ExecContext(ctx, `INSERT INTO config (key, value) VALUES ('dup', 'a')`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = d.Conn().ExecContext(ctx, `INSERT INTO config (key, value) VALUES ('dup', 'b')`)
	if err == nil {
		t.Fatal("expected unique constraint violation")
	}
	if !IsUniqueViolation(err, "config.key") {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}
}

func TestIsFKViolationDetectsConflict(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	_, err := d.Conn().ExecContext(ctx,
		`INSERT INTO users (id, permissions) VALUES (999999, 0)`)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	_, err = d.Conn().ExecContext(ctx,
		`INSERT INTO servers (name, host, port, game, owner_id, access_key) VALUES ('s', '127.0.0.1', 27015, 1, 1, randomblob(16))`)
	if err == nil {
		t.Fatal("expected foreign key violation (owner 1 does not exist)")
	}
	if !IsFKViolation(err) {
		t.Errorf("IsFKViolation(%v) = false, want true", err)
	}
}
