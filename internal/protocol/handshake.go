package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"

	"github.com/cs2kz-org/cs2kz-api/internal/accesskeys"
	"github.com/cs2kz-org/cs2kz-api/internal/catalog"
)

// handshake reads the opening Hello frame, verifies the bearer-JWT
// identity against the catalog's current state, opens a server_sessions
// row, and builds the HelloAck reply. It does not send the reply — the
// caller does, once its own write deadline applies.
func handshake(ctx context.Context, conn *websocket.Conn, claims accesskeys.Claims, deps *Deps) (*serverSession, Message, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, Message{}, fmt.Errorf("read hello: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, Message{}, fmt.Errorf("malformed hello envelope: %w", err)
	}
	kind, err := peekKind(msg.Payload)
	if err != nil {
		return nil, Message{}, err
	}
	if kind != kindHello {
		return nil, Message{}, fmt.Errorf("expected hello, got %q", kind)
	}
	var hello HelloPayload
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		return nil, Message{}, fmt.Errorf("malformed hello payload: %w", err)
	}

	pv, err := deps.PluginVersions.GetByID(ctx, claims.PluginVersionID)
	if err != nil {
		return nil, Message{}, fmt.Errorf("load plugin version: %w", err)
	}
	if pv == nil {
		return nil, Message{}, fmt.Errorf("unknown plugin version")
	}
	if pv.IsCutoff {
		return nil, Message{}, fmt.Errorf("plugin version is past the cutoff")
	}
	if hello.PluginVersion != pv.SemVer.String() {
		return nil, Message{}, fmt.Errorf("hello plugin_version %q does not match bearer token's %q", hello.PluginVersion, pv.SemVer.String())
	}

	modeByChecksum, styleByChecksum, err := deps.PluginVersions.ChecksumTables(ctx, pv.ID)
	if err != nil {
		return nil, Message{}, fmt.Errorf("load checksum tables: %w", err)
	}

	dbSessionID, err := deps.ServerSessions.Open(ctx, claims.ServerID, claims.PluginVersionID)
	if err != nil {
		return nil, Message{}, fmt.Errorf("open server session: %w", err)
	}

	session := &serverSession{
		serverID:        claims.ServerID,
		pluginVersionID: claims.PluginVersionID,
		dbSessionID:     dbSessionID,
		modeByChecksum:  modeByChecksum,
		styleByChecksum: styleByChecksum,
		currentMap:      hello.CurrentMap,
	}

	var mapInfo *MapInfo
	if hello.CurrentMap != "" {
		mp, err := deps.Maps.GetByName(ctx, hello.CurrentMap)
		if err != nil {
			return nil, Message{}, fmt.Errorf("load current map: %w", err)
		}
		mapInfo = toMapInfo(mp)
	}

	ack, err := marshalReply(msg.ID, HelloAckPayload{
		Kind:             kindHelloAck,
		HeartbeatSeconds: deps.heartbeatInterval().Seconds(),
		MapInfo:          mapInfo,
	})
	if err != nil {
		return nil, Message{}, err
	}
	return session, ack, nil
}

func toMapInfo(mp *catalog.Map) *MapInfo {
	if mp == nil {
		return nil
	}
	return &MapInfo{
		ID:         uint64(mp.ID),
		Name:       mp.Name,
		Game:       mp.Game.String(),
		WorkshopID: mp.WorkshopID,
		State:      mapStateString(mp.State),
	}
}
