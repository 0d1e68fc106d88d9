package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// Bans stores bans and their unban counterparts.
type Bans struct {
	db *db.DB
}

// NewBans constructs a Bans store.
func NewBans(d *db.DB) *Bans { return &Bans{db: d} }

// baseBanDuration is the starting duration per reason, before escalation.
var baseBanDuration = map[kz.BanReason]time.Duration{
	kz.BanReasonMacro:      14 * 24 * time.Hour,
	kz.BanReasonAutoBhop:   30 * 24 * time.Hour,
	kz.BanReasonAutoStrafe: 60 * 24 * time.Hour,
}

const maxBanDuration = 365 * 24 * time.Hour

// ErrAlreadyBanned is returned when the player already has an active ban.
var ErrAlreadyBanned = fmt.Errorf("catalog: player is already banned")

// ErrAlreadyUnbanned is returned when a ban already has an unban row.
var ErrAlreadyUnbanned = fmt.Errorf("catalog: ban has already been reverted")

// Ban is a row from the bans table.
type Ban struct {
	ID        kz.BanID
	PlayerID  kz.PlayerID
	PlayerIP  string
	Reason    kz.BanReason
	ServerID  *kz.ServerID
	AdminID   *kz.UserID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Create inserts a new ban, rejecting if the player is currently banned,
// and computes the escalated expiry: a player's first ban lasts the base
// duration for the reason; any later ban lasts the base duration plus the
// sum of all previous ban durations for the player, doubled. Either way
// the duration is capped at one year.
func (b *Bans) Create(ctx context.Context, playerID kz.PlayerID, playerIP string, reason kz.BanReason, serverID *kz.ServerID, adminID *kz.UserID) (*Ban, error) {
	var banID int64
	var expiresAt time.Time

	err := b.db.InTransaction(ctx, func(ctx context.Context, q db.Querier) error {
		var active int
		err := q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM bans b
			WHERE b.player_id = ?
			  AND b.expires_at > datetime('now')
			  AND NOT EXISTS (SELECT 1 FROM unbans u WHERE u.ban_id = b.id)`,
			uint64(playerID),
		).Scan(&active)
		if err != nil {
			return fmt.Errorf("check active ban: %w", err)
		}
		if active > 0 {
			return ErrAlreadyBanned
		}

		var priorCount int
		var totalPriorSeconds sql.NullFloat64
		err = q.QueryRowContext(ctx, `
			SELECT COUNT(*), SUM(strftime('%s', expires_at) - strftime('%s', created_at))
			FROM bans WHERE player_id = ?`, uint64(playerID),
		).Scan(&priorCount, &totalPriorSeconds)
		if err != nil {
			return fmt.Errorf("sum prior ban durations: %w", err)
		}

		prior := time.Duration(totalPriorSeconds.Float64) * time.Second
		duration := baseBanDuration[reason] + prior
		if priorCount > 0 {
			duration *= 2
		}
		if duration > maxBanDuration {
			duration = maxBanDuration
		}

		now := time.Now().UTC()
		expiresAt = now.Add(duration)

		res, err := q.ExecContext(ctx, `
			INSERT INTO bans (player_id, player_ip, reason, server_id, admin_id, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uint64(playerID), playerIP, uint8(reason), serverIDPtr(serverID), adminIDPtr(adminID),
			now.Format(time.DateTime), expiresAt.Format(time.DateTime),
		)
		if err != nil {
			return fmt.Errorf("insert ban: %w", err)
		}
		banID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Ban{
		ID:        kz.BanID(banID),
		PlayerID:  playerID,
		PlayerIP:  playerIP,
		Reason:    reason,
		ServerID:  serverID,
		AdminID:   adminID,
		ExpiresAt: expiresAt,
	}, nil
}

// Unban sets the ban's expires_at to now and inserts the corresponding
// unbans row, atomically. Re-unbanning an already-reverted ban is rejected.
func (b *Bans) Unban(ctx context.Context, banID kz.BanID, adminID *kz.UserID, reason string) error {
	return b.db.InTransaction(ctx, func(ctx context.Context, q db.Querier) error {
		var existing int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM unbans WHERE ban_id = ?`, uint64(banID)).Scan(&existing); err != nil {
			return fmt.Errorf("check existing unban: %w", err)
		}
		if existing > 0 {
			return ErrAlreadyUnbanned
		}

		if _, err := q.ExecContext(ctx, `UPDATE bans SET expires_at = datetime('now') WHERE id = ?`, uint64(banID)); err != nil {
			return fmt.Errorf("expire ban: %w", err)
		}
		_, err := q.ExecContext(ctx,
			`INSERT INTO unbans (ban_id, admin_id, reason) VALUES (?, ?, ?)`,
			uint64(banID), adminIDPtr(adminID), reason)
		if err != nil {
			return fmt.Errorf("insert unban: %w", err)
		}
		return nil
	})
}

func serverIDPtr(id *kz.ServerID) any {
	if id == nil {
		return nil
	}
	return uint64(*id)
}

func adminIDPtr(id *kz.UserID) any {
	if id == nil {
		return nil
	}
	return uint64(*id)
}
