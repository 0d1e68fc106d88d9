package catalog

import (
	"context"
	"fmt"

	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// ServerSessions tracks each connected server's lifetime on the protocol
// (spec.md §4.9): the server_id/plugin_version_id pair a record submission
// checks its session against, open from Hello through the connection's
// eventual close.
type ServerSessions struct {
	db *db.DB
}

// NewServerSessions constructs a ServerSessions store.
func NewServerSessions(d *db.DB) *ServerSessions { return &ServerSessions{db: d} }

// Open records a new session starting at the handshake and returns its id.
func (s *ServerSessions) Open(ctx context.Context, serverID kz.ServerID, pluginVersionID kz.PluginVersionID) (uint64, error) {
	res, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO server_sessions (server_id, plugin_version_id) VALUES (?, ?)`,
		uint64(serverID), uint64(pluginVersionID))
	if err != nil {
		return 0, fmt.Errorf("catalog: open server session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: server session id: %w", err)
	}
	return uint64(id), nil
}

// Close marks a session as ended, recording the close reason's string form.
func (s *ServerSessions) Close(ctx context.Context, sessionID uint64, reason string) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`UPDATE server_sessions SET disconnected_at = datetime('now'), disconnect_reason = ? WHERE id = ?`,
		reason, sessionID)
	if err != nil {
		return fmt.Errorf("catalog: close server session: %w", err)
	}
	return nil
}
