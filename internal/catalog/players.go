// Package catalog implements the storage-backed CRUD surface for players,
// users, servers, maps/courses/filters, plugin versions, and bans —
// spec section 4.4. Every store wraps a *db.DB and speaks internal/kz
// value types at its boundary.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// Players stores the player registry.
type Players struct {
	db *db.DB
}

// NewPlayers constructs a Players store.
func NewPlayers(d *db.DB) *Players { return &Players{db: d} }

// Player is a row from the players table.
type Player struct {
	ID           kz.PlayerID
	Name         string
	IPAddress    string
	Rating       kz.Points
	Preferences  json.RawMessage
	CreatedAt    time.Time
	LastJoinedAt time.Time
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	IsBanned    bool
	Preferences json.RawMessage
}

// Register upserts a player's name/IP on first sight or any subsequent
// join, never touching rating or preferences, then reports the player's
// current ban status computed in the same transaction.
func (p *Players) Register(ctx context.Context, id kz.PlayerID, name, ip string) (RegisterResult, error) {
	var result RegisterResult

	err := p.db.InTransaction(ctx, func(ctx context.Context, q db.Querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO players (id, name, ip_address)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, ip_address = excluded.ip_address, last_joined_at = datetime('now')`,
			uint64(id), name, ip,
		)
		if err != nil {
			return fmt.Errorf("catalog: register player: %w", err)
		}

		var prefs string
		if err := q.QueryRowContext(ctx, `SELECT preferences FROM players WHERE id = ?`, uint64(id)).Scan(&prefs); err != nil {
			return fmt.Errorf("catalog: load preferences: %w", err)
		}
		result.Preferences = json.RawMessage(prefs)

		var banned int
		err = q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM bans b
			WHERE b.player_id = ?
			  AND b.expires_at > datetime('now')
			  AND NOT EXISTS (SELECT 1 FROM unbans u WHERE u.ban_id = b.id)`,
			uint64(id),
		).Scan(&banned)
		if err != nil {
			return fmt.Errorf("catalog: check ban status: %w", err)
		}
		result.IsBanned = banned > 0
		return nil
	})
	if err != nil {
		return RegisterResult{}, err
	}
	return result, nil
}

// UpdateOnLeave persists the name and client-side preferences a server
// reports when a player disconnects.
func (p *Players) UpdateOnLeave(ctx context.Context, id kz.PlayerID, name string, preferences json.RawMessage) error {
	_, err := p.db.Conn().ExecContext(ctx,
		`UPDATE players SET name = ?, preferences = ? WHERE id = ?`,
		name, string(preferences), uint64(id))
	if err != nil {
		return fmt.Errorf("catalog: update player on leave: %w", err)
	}
	return nil
}

// GetByID loads a player by id.
func (p *Players) GetByID(ctx context.Context, id kz.PlayerID) (*Player, error) {
	row := p.db.Conn().QueryRowContext(ctx, `
		SELECT id, name, ip_address, rating, preferences, created_at, last_joined_at
		FROM players WHERE id = ?`, uint64(id))
	return scanPlayer(row)
}

// List returns a page of players ordered by id.
func (p *Players) List(ctx context.Context, offset, limit int) ([]Player, error) {
	rows, err := p.db.Conn().QueryContext(ctx, `
		SELECT id, name, ip_address, rating, preferences, created_at, last_joined_at
		FROM players ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("catalog: list players: %w", err)
	}
	defer rows.Close()

	var out []Player
	for rows.Next() {
		pl, err := scanPlayerRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pl)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row *sql.Row) (*Player, error) {
	return scanPlayerScanner(row)
}

func scanPlayerRows(rows *sql.Rows) (*Player, error) {
	return scanPlayerScanner(rows)
}

func scanPlayerScanner(s scanner) (*Player, error) {
	var pl Player
	var steamID uint64
	var rating float64
	var prefs string
	var createdAt, lastJoinedAt string
	err := s.Scan(&steamID, &pl.Name, &pl.IPAddress, &rating, &prefs, &createdAt, &lastJoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: scan player: %w", err)
	}
	pl.ID = kz.PlayerID(steamID)
	pl.Rating = kz.Points(rating)
	pl.Preferences = json.RawMessage(prefs)
	pl.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	pl.LastJoinedAt, _ = time.Parse(time.DateTime, lastJoinedAt)
	return &pl, nil
}
