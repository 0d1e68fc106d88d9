// Package protocol implements the Server↔API protocol from spec.md §4.9:
// a framed, single-connection, request/reply exchange between a connected
// game server and the API over a WebSocket upgrade. A server completes a
// Hello/HelloAck handshake, then exchanges operational messages — each
// acknowledged by the API — until it disconnects or the API closes the
// socket.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the wire envelope every frame carries, matching spec.md §6's
// `{ "id": <u64>, "payload": { "kind": "...", <fields> } }` shape. A
// reply's ID echoes the request's ID; API-initiated messages (there is
// exactly one, BroadcastMessage) carry an API-assigned ID instead.
type Message struct {
	ID      uint64          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// kindTag is used to sniff a payload's kind before picking the concrete
// struct to unmarshal the rest of it into.
type kindTag struct {
	Kind string `json:"kind"`
}

// Payload kinds, server → API.
const (
	kindHello        = "hello"
	kindMapChanged   = "map_changed"
	kindPlayerJoin   = "player_join"
	kindPlayerLeave  = "player_leave"
	kindSubmitRecord = "submit_record"
)

// Payload kinds, API → server.
const (
	kindHelloAck         = "hello_ack"
	kindAck              = "ack"
	kindBroadcastMessage = "broadcast_message"
	kindError            = "error"
)

// HelloPayload is the handshake's opening message.
type HelloPayload struct {
	Kind           string   `json:"kind"`
	PluginVersion  string   `json:"plugin_version"`
	ModeChecksums  []uint32 `json:"mode_checksums"`
	StyleChecksums []uint32 `json:"style_checksums"`
	CurrentMap     string   `json:"current_map"`
}

// MapInfo is the catalog metadata for a map, embedded in HelloAck and a
// MapChanged reply.
type MapInfo struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	Game       string `json:"game"`
	WorkshopID string `json:"workshop_id,omitempty"`
	State      string `json:"state"`
}

// HelloAckPayload is the API's handshake reply.
type HelloAckPayload struct {
	Kind             string   `json:"kind"`
	HeartbeatSeconds float64  `json:"heartbeat_interval_seconds"`
	MapInfo          *MapInfo `json:"map_info,omitempty"`
}

// MapChangedPayload reports the server's current map changing.
type MapChangedPayload struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// MapChangedAckPayload is the API's reply: the resolved map, or nil if
// the name is unknown to the catalog.
type MapChangedAckPayload struct {
	Kind    string   `json:"kind"`
	MapInfo *MapInfo `json:"map_info,omitempty"`
}

// PlayerJoinPayload reports a player connecting to the server.
type PlayerJoinPayload struct {
	Kind string `json:"kind"`
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// PlayerJoinAckPayload reports the player's existing preferences and
// current ban status back to the server.
type PlayerJoinAckPayload struct {
	Kind        string          `json:"kind"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
	IsBanned    bool            `json:"is_banned"`
}

// PlayerLeavePayload reports a player disconnecting, carrying whatever
// name/preferences the server's own tracking last observed.
type PlayerLeavePayload struct {
	Kind        string          `json:"kind"`
	ID          uint64          `json:"id"`
	Name        string          `json:"name"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

// SubmitRecordPayload reports a completed, timed run.
type SubmitRecordPayload struct {
	Kind           string   `json:"kind"`
	CourseLocalID  uint32   `json:"course_local_id"`
	ModeChecksum   uint32   `json:"mode_checksum"`
	PlayerID       uint64   `json:"player_id"`
	Time           float64  `json:"time"`
	Teleports      uint32   `json:"teleports"`
	StyleChecksums []uint32 `json:"style_checksums"`
}

// SubmitRecordLeaderboardStats mirrors points.LeaderboardStats over the
// wire.
type SubmitRecordLeaderboardStats struct {
	LeaderboardSize int      `json:"leaderboard_size"`
	Rank            int      `json:"rank"`
	Points          float64  `json:"points"`
	PlayersToRecalc []uint64 `json:"players_to_recalc,omitempty"`
}

// SubmitRecordRanked mirrors points.Ranked over the wire.
type SubmitRecordRanked struct {
	NUBStats     *SubmitRecordLeaderboardStats `json:"nub_stats,omitempty"`
	PROStats     *SubmitRecordLeaderboardStats `json:"pro_stats,omitempty"`
	PlayerRating float64                       `json:"player_rating"`
}

// SubmitRecordAckPayload is the API's reply to a completed submission.
type SubmitRecordAckPayload struct {
	Kind     string              `json:"kind"`
	RecordID uint64              `json:"record_id"`
	Ranked   *SubmitRecordRanked `json:"ranked_data,omitempty"`
}

// AckPayload is the bare acknowledgement for operational messages that
// carry no reply data beyond "received" (PlayerLeave).
type AckPayload struct {
	Kind string `json:"kind"`
}

// BroadcastMessagePayload is the one API-initiated, no-reply message: a
// chat line the server should inject.
type BroadcastMessagePayload struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// ErrorPayload is sent in place of an operational ack when the message is
// well-formed but rejected by domain rules (e.g. a submission against a
// non-global map). It does not close the connection.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func marshalReply(id uint64, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("protocol: marshal payload: %w", err)
	}
	return Message{ID: id, Payload: data}, nil
}

func peekKind(raw json.RawMessage) (string, error) {
	var tag kindTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return "", fmt.Errorf("protocol: malformed payload: %w", err)
	}
	return tag.Kind, nil
}
