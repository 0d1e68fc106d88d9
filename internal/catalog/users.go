package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// Users stores the subset of players who have administrative permissions.
type Users struct {
	db *db.DB
}

// NewUsers constructs a Users store.
func NewUsers(d *db.DB) *Users { return &Users{db: d} }

// EnsureUser idempotently promotes a player to a user row with no
// permissions, if one doesn't already exist. Called at Steam-callback time
// (spec.md §4.3) before a browser session is created.
func (u *Users) EnsureUser(ctx context.Context, id kz.UserID) error {
	_, err := u.db.Conn().ExecContext(ctx,
		`INSERT INTO users (id, permissions) VALUES (?, 0) ON CONFLICT(id) DO NOTHING`, uint64(id))
	if err != nil {
		return fmt.Errorf("catalog: ensure user: %w", err)
	}
	return nil
}

// GetPermissions loads a user's permission bitflags.
func (u *Users) GetPermissions(ctx context.Context, id kz.UserID) (kz.Permissions, error) {
	var perms int
	err := u.db.Conn().QueryRowContext(ctx, `SELECT permissions FROM users WHERE id = ?`, uint64(id)).Scan(&perms)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: load permissions: %w", err)
	}
	return kz.Permissions(perms), nil
}

// SetPermissions overwrites a user's permission bitflags.
func (u *Users) SetPermissions(ctx context.Context, id kz.UserID, perms kz.Permissions) error {
	_, err := u.db.Conn().ExecContext(ctx, `UPDATE users SET permissions = ? WHERE id = ?`, uint8(perms), uint64(id))
	if err != nil {
		return fmt.Errorf("catalog: set permissions: %w", err)
	}
	return nil
}
