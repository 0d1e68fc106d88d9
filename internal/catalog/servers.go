package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// Servers stores the server registry and access keys.
type Servers struct {
	db *db.DB
}

// NewServers constructs a Servers store.
func NewServers(d *db.DB) *Servers { return &Servers{db: d} }

// Server is a row from the servers table. AccessKey is the zero sentinel
// when the row's key column is NULL ("degloballed").
type Server struct {
	ID         kz.ServerID
	Name       string
	Host       string
	Port       uint16
	Game       kz.Game
	OwnerID    kz.UserID
	AccessKey  kz.AccessKey
	LastSeenAt *time.Time
	CreatedAt  time.Time
}

// ErrNameInUse is returned when a server name collides with an existing row.
var ErrNameInUse = fmt.Errorf("catalog: server name already in use")

// ErrHostPortInUse is returned when (host, port) collides with an existing row.
var ErrHostPortInUse = fmt.Errorf("catalog: server host:port already in use")

// Create inserts a new server and mints its initial access key.
func (s *Servers) Create(ctx context.Context, name, host string, port uint16, game kz.Game, ownerID kz.UserID) (*Server, error) {
	key, err := kz.NewAccessKey()
	if err != nil {
		return nil, fmt.Errorf("catalog: mint access key: %w", err)
	}
	keyBytes, err := key.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("catalog: marshal access key: %w", err)
	}

	res, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO servers (name, host, port, game, owner_id, access_key)
		VALUES (?, ?, ?, ?, ?, ?)`,
		name, host, port, uint8(game), uint64(ownerID), keyBytes,
	)
	if err != nil {
		if db.IsUniqueViolation(err, "servers.name") {
			return nil, ErrNameInUse
		}
		if db.IsUniqueViolation(err, "servers.host") || db.IsUniqueViolation(err, "host") {
			return nil, ErrHostPortInUse
		}
		return nil, fmt.Errorf("catalog: create server: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("catalog: server id: %w", err)
	}
	return s.GetByID(ctx, kz.ServerID(id))
}

// RotateKey replaces a server's access key with a freshly minted one,
// invalidating the previous key immediately.
func (s *Servers) RotateKey(ctx context.Context, id kz.ServerID) (kz.AccessKey, error) {
	key, err := kz.NewAccessKey()
	if err != nil {
		return kz.AccessKey{}, fmt.Errorf("catalog: mint access key: %w", err)
	}
	keyBytes, err := key.MarshalBinary()
	if err != nil {
		return kz.AccessKey{}, fmt.Errorf("catalog: marshal access key: %w", err)
	}
	_, err = s.db.Conn().ExecContext(ctx, `UPDATE servers SET access_key = ? WHERE id = ?`, keyBytes, uint64(id))
	if err != nil {
		return kz.AccessKey{}, fmt.Errorf("catalog: rotate key: %w", err)
	}
	return key, nil
}

// RevokeKey sets a server's access key to NULL ("degloballed"); it can no
// longer mint bearer tokens until an owner rotates it back on.
func (s *Servers) RevokeKey(ctx context.Context, id kz.ServerID) error {
	_, err := s.db.Conn().ExecContext(ctx, `UPDATE servers SET access_key = NULL WHERE id = ?`, uint64(id))
	if err != nil {
		return fmt.Errorf("catalog: revoke key: %w", err)
	}
	return nil
}

// GetByAccessKey looks up a server by its presented long-lived key. A
// degloballed server (NULL access_key) never matches.
func (s *Servers) GetByAccessKey(ctx context.Context, key kz.AccessKey) (*Server, error) {
	keyBytes, err := key.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("catalog: marshal access key: %w", err)
	}
	row := s.db.Conn().QueryRowContext(ctx, serverSelect+` WHERE access_key = ?`, keyBytes)
	return scanServer(row)
}

// GetByID loads a server by id.
func (s *Servers) GetByID(ctx context.Context, id kz.ServerID) (*Server, error) {
	row := s.db.Conn().QueryRowContext(ctx, serverSelect+` WHERE id = ?`, uint64(id))
	return scanServer(row)
}

// GetByName loads a server by its unique name.
func (s *Servers) GetByName(ctx context.Context, name string) (*Server, error) {
	row := s.db.Conn().QueryRowContext(ctx, serverSelect+` WHERE name = ?`, name)
	return scanServer(row)
}

// GetByIdent loads a server by numeric id or, failing that, by name —
// the single lookup boundary callers that accept either a `server_id` or a
// `name` query parameter can use without branching themselves.
func (s *Servers) GetByIdent(ctx context.Context, ident string) (*Server, error) {
	if id, err := strconv.ParseUint(ident, 10, 64); err == nil {
		return s.GetByID(ctx, kz.ServerID(id))
	}
	return s.GetByName(ctx, ident)
}

// TouchLastSeen updates a server's last_seen_at to now, used by the
// inactivity sweeper for currently connected servers.
func (s *Servers) TouchLastSeen(ctx context.Context, id kz.ServerID) error {
	_, err := s.db.Conn().ExecContext(ctx, `UPDATE servers SET last_seen_at = datetime('now') WHERE id = ?`, uint64(id))
	if err != nil {
		return fmt.Errorf("catalog: touch last seen: %w", err)
	}
	return nil
}

// ListStaleBefore returns servers with a non-NULL access_key whose
// last_seen_at (or, if never seen, created_at) is older than cutoff.
func (s *Servers) ListStaleBefore(ctx context.Context, cutoff time.Time) ([]Server, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		serverSelect+` WHERE access_key IS NOT NULL AND COALESCE(last_seen_at, created_at) < ?`,
		cutoff.UTC().Format(time.DateTime),
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: list stale servers: %w", err)
	}
	defer rows.Close()

	var out []Server
	for rows.Next() {
		srv, err := scanServerRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *srv)
	}
	return out, rows.Err()
}

const serverSelect = `SELECT id, name, host, port, game, owner_id, access_key, last_seen_at, created_at FROM servers`

func scanServer(row *sql.Row) (*Server, error)      { return scanServerScanner(row) }
func scanServerRows(rows *sql.Rows) (*Server, error) { return scanServerScanner(rows) }

func scanServerScanner(sc scanner) (*Server, error) {
	var srv Server
	var id, ownerID uint64
	var game, port int
	var keyBytes []byte
	var lastSeenAt sql.NullString
	var createdAt string

	err := sc.Scan(&id, &srv.Name, &srv.Host, &port, &game, &ownerID, &keyBytes, &lastSeenAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: scan server: %w", err)
	}

	srv.ID = kz.ServerID(id)
	srv.Port = uint16(port)
	srv.Game = kz.Game(game)
	srv.OwnerID = kz.UserID(ownerID)
	srv.CreatedAt, _ = time.Parse(time.DateTime, createdAt)

	if keyBytes == nil {
		srv.AccessKey = kz.InvalidAccessKey()
	} else {
		var key kz.AccessKey
		if err := key.UnmarshalBinary(keyBytes); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal access key: %w", err)
		}
		srv.AccessKey = key
	}

	if lastSeenAt.Valid {
		t, err := time.Parse(time.DateTime, lastSeenAt.String)
		if err == nil {
			srv.LastSeenAt = &t
		}
	}

	return &srv, nil
}
