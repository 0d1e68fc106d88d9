package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestRegisterIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	players := NewPlayers(d)
	ctx := context.Background()
	id := kz.PlayerID(76561198282622073)

	if _, err := players.Register(ctx, id, "alice", "1.2.3.4"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := players.Register(ctx, id, "alice2", "5.6.7.8"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	pl, err := players.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if pl.Name != "alice2" || pl.IPAddress != "5.6.7.8" {
		t.Errorf("expected updated name/ip, got %q/%q", pl.Name, pl.IPAddress)
	}
}

func TestRegisterReportsBanStatus(t *testing.T) {
	d := openTestDB(t)
	players := NewPlayers(d)
	ctx := context.Background()
	id := kz.PlayerID(76561198282622073)

	if _, err := players.Register(ctx, id, "bob", "1.1.1.1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	future := time.Now().Add(24 * time.Hour).UTC().Format(time.DateTime)
	_, err := d.Conn().ExecContext(ctx,
		`INSERT INTO bans (player_id, player_ip, reason, expires_at) VALUES (?, ?, 1, ?)`,
		uint64(id), "1.1.1.1", future)
	if err != nil {
		t.Fatalf("insert ban: %v", err)
	}

	result, err := players.Register(ctx, id, "bob", "1.1.1.1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !result.IsBanned {
		t.Error("expected player to be reported as banned")
	}
}
