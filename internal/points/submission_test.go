package points

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

// fixture builds one player/server/plugin-version/filter/session tuple and
// returns the filter, server, and session ids submissions need.
type fixture struct {
	playerID  kz.PlayerID
	serverID  kz.ServerID
	filterID  kz.FilterID
	sessionID uint64
}

func setupFixture(t *testing.T, d *db.DB) fixture {
	t.Helper()
	ctx := context.Background()
	conn := d.Conn()

	playerID := kz.PlayerID(76561198282622073)
	if _, err := conn.ExecContext(ctx, `INSERT INTO players (id, name, ip_address) VALUES (?, 'runner', '1.1.1.1')`, uint64(playerID)); err != nil {
		t.Fatalf("insert player: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO users (id) VALUES (999999)`); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	res, err := conn.ExecContext(ctx, `INSERT INTO servers (name, host, port, game, owner_id) VALUES ('s1', '127.0.0.1', 27015, 1, 999999)`)
	if err != nil {
		t.Fatalf("insert server: %v", err)
	}
	serverID, _ := res.LastInsertId()

	res, err = conn.ExecContext(ctx, `INSERT INTO plugin_versions (semver, git_revision) VALUES ('1.0.0', 'abc123')`)
	if err != nil {
		t.Fatalf("insert plugin version: %v", err)
	}
	pluginVersionID, _ := res.LastInsertId()

	res, err = conn.ExecContext(ctx, `INSERT INTO maps (name, game) VALUES ('kz_test', 1)`)
	if err != nil {
		t.Fatalf("insert map: %v", err)
	}
	mapID, _ := res.LastInsertId()

	res, err = conn.ExecContext(ctx, `INSERT INTO courses (map_id, name) VALUES (?, 'main')`, mapID)
	if err != nil {
		t.Fatalf("insert course: %v", err)
	}
	courseID, _ := res.LastInsertId()

	res, err = conn.ExecContext(ctx, `INSERT INTO filters (course_id, mode, nub_tier, pro_tier, ranked) VALUES (?, 1, 3, 3, 1)`, courseID)
	if err != nil {
		t.Fatalf("insert filter: %v", err)
	}
	filterID, _ := res.LastInsertId()

	res, err = conn.ExecContext(ctx, `INSERT INTO server_sessions (server_id, plugin_version_id) VALUES (?, ?)`, serverID, pluginVersionID)
	if err != nil {
		t.Fatalf("insert session: %v", err)
	}
	sessionID, _ := res.LastInsertId()

	return fixture{
		playerID:  playerID,
		serverID:  kz.ServerID(serverID),
		filterID:  kz.FilterID(filterID),
		sessionID: uint64(sessionID),
	}
}

func TestSubmitFirstRunBecomesRankZero(t *testing.T) {
	d := openTestDB(t)
	fx := setupFixture(t, d)
	s := NewSubmissions(d)

	result, err := s.Submit(context.Background(), Input{
		FilterID: fx.filterID, PlayerID: fx.playerID, SessionID: fx.sessionID, ServerID: fx.serverID,
		Time: 30.0, Teleports: 0,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Ranked == nil {
		t.Fatal("expected ranked result")
	}
	if result.Ranked.NUBStats == nil || result.Ranked.NUBStats.Rank != 0 {
		t.Errorf("expected NUB rank 0, got %+v", result.Ranked.NUBStats)
	}
	if result.Ranked.PROStats == nil || result.Ranked.PROStats.Rank != 0 {
		t.Errorf("expected PRO rank 0 (teleports=0), got %+v", result.Ranked.PROStats)
	}
	if result.Ranked.PlayerRating <= 0 {
		t.Errorf("expected positive rating, got %v", result.Ranked.PlayerRating)
	}
}

func TestSubmitWithTeleportsSkipsPROLeaderboard(t *testing.T) {
	d := openTestDB(t)
	fx := setupFixture(t, d)
	s := NewSubmissions(d)

	result, err := s.Submit(context.Background(), Input{
		FilterID: fx.filterID, PlayerID: fx.playerID, SessionID: fx.sessionID, ServerID: fx.serverID,
		Time: 30.0, Teleports: 3,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Ranked.PROStats != nil {
		t.Errorf("expected no PRO stats for a teleported run, got %+v", result.Ranked.PROStats)
	}
}

func TestSubmitStyledRunBypassesLeaderboards(t *testing.T) {
	d := openTestDB(t)
	fx := setupFixture(t, d)
	s := NewSubmissions(d)

	result, err := s.Submit(context.Background(), Input{
		FilterID: fx.filterID, PlayerID: fx.playerID, SessionID: fx.sessionID, ServerID: fx.serverID,
		Time: 30.0, Teleports: 0, Styles: kz.StyleBackwards,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Ranked != nil {
		t.Errorf("expected nil ranked result for a styled run, got %+v", result.Ranked)
	}
}

func TestSubmitNonImprovingRunDoesNotUpdateLeaderboard(t *testing.T) {
	d := openTestDB(t)
	fx := setupFixture(t, d)
	s := NewSubmissions(d)
	ctx := context.Background()

	if _, err := s.Submit(ctx, Input{FilterID: fx.filterID, PlayerID: fx.playerID, SessionID: fx.sessionID, ServerID: fx.serverID, Time: 20.0}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	result, err := s.Submit(ctx, Input{FilterID: fx.filterID, PlayerID: fx.playerID, SessionID: fx.sessionID, ServerID: fx.serverID, Time: 25.0})
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if result.Ranked.NUBStats != nil {
		t.Errorf("expected nil NUB stats for a non-improving run, got %+v", result.Ranked.NUBStats)
	}

	var storedTime float64
	err = d.Conn().QueryRowContext(ctx, `
		SELECT r.time_seconds FROM best_records br JOIN records r ON r.id = br.record_id
		WHERE br.filter_id = ? AND br.player_id = ?`, uint64(fx.filterID), uint64(fx.playerID),
	).Scan(&storedTime)
	if err != nil {
		t.Fatalf("load stored PB: %v", err)
	}
	if storedTime != 20.0 {
		t.Errorf("expected stored PB to remain 20.0, got %v", storedTime)
	}
}

func TestSubmitRejectsBannedPlayer(t *testing.T) {
	d := openTestDB(t)
	fx := setupFixture(t, d)
	s := NewSubmissions(d)
	ctx := context.Background()

	future := time.Now().Add(24 * time.Hour).UTC().Format(time.DateTime)
	if _, err := d.Conn().ExecContext(ctx,
		`INSERT INTO bans (player_id, player_ip, reason, expires_at) VALUES (?, '1.1.1.1', 1, ?)`,
		uint64(fx.playerID), future); err != nil {
		t.Fatalf("insert ban: %v", err)
	}

	_, err := s.Submit(ctx, Input{FilterID: fx.filterID, PlayerID: fx.playerID, SessionID: fx.sessionID, ServerID: fx.serverID, Time: 30.0})
	if err != ErrPlayerBanned {
		t.Errorf("expected ErrPlayerBanned, got %v", err)
	}
}

func TestSubmitRejectsSessionFromDifferentServer(t *testing.T) {
	d := openTestDB(t)
	fx := setupFixture(t, d)
	s := NewSubmissions(d)
	ctx := context.Background()

	_, err := s.Submit(ctx, Input{FilterID: fx.filterID, PlayerID: fx.playerID, SessionID: fx.sessionID, ServerID: kz.ServerID(999), Time: 30.0})
	if err != ErrSessionMismatch {
		t.Errorf("expected ErrSessionMismatch, got %v", err)
	}
}

func TestSubmitCollectsPlayersToRecalc(t *testing.T) {
	d := openTestDB(t)
	fx := setupFixture(t, d)
	s := NewSubmissions(d)
	ctx := context.Background()

	other := kz.PlayerID(76561198000000001)
	if _, err := d.Conn().ExecContext(ctx, `INSERT INTO players (id, name, ip_address) VALUES (?, 'slower', '2.2.2.2')`, uint64(other)); err != nil {
		t.Fatalf("insert player: %v", err)
	}
	if _, err := s.Submit(ctx, Input{FilterID: fx.filterID, PlayerID: other, SessionID: fx.sessionID, ServerID: fx.serverID, Time: 40.0}); err != nil {
		t.Fatalf("submit slower run: %v", err)
	}

	result, err := s.Submit(ctx, Input{FilterID: fx.filterID, PlayerID: fx.playerID, SessionID: fx.sessionID, ServerID: fx.serverID, Time: 30.0})
	if err != nil {
		t.Fatalf("submit faster run: %v", err)
	}
	if len(result.Ranked.NUBStats.PlayersToRecalc) != 1 || result.Ranked.NUBStats.PlayersToRecalc[0] != other {
		t.Errorf("expected players_to_recalc = [%v], got %v", other, result.Ranked.NUBStats.PlayersToRecalc)
	}
}
