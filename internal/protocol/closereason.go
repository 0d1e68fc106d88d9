package protocol

import (
	"github.com/coder/websocket"
)

// CloseReason is the small enumerated close taxonomy from spec.md §4.9.
type CloseReason struct {
	kind    string
	message string
}

// NormalClosure is used when the server itself ends the connection cleanly.
func NormalClosure() CloseReason { return CloseReason{kind: "normal_closure"} }

// ClientTimeout is used for handshake-deadline and heartbeat-timeout closes.
func ClientTimeout() CloseReason { return CloseReason{kind: "client_timeout"} }

// ServerShutdown is sent to every connected server before the process exits.
func ServerShutdown() CloseReason { return CloseReason{kind: "server_shutdown"} }

// ClientError closes the connection for a protocol violation the server
// caused (bad handshake, malformed frame, rejected plugin version).
func ClientError(message string) CloseReason {
	return CloseReason{kind: "client_error", message: message}
}

// InternalError closes the connection after an unexpected failure on the
// API's side (a database error mid-handler, say).
func InternalError() CloseReason { return CloseReason{kind: "internal_error"} }

// String renders the reason for server_sessions.disconnect_reason and logs.
func (r CloseReason) String() string {
	if r.message != "" {
		return r.kind + ": " + r.message
	}
	return r.kind
}

// statusAndReason maps a CloseReason to the WebSocket close status code and
// the text sent in the close frame.
func (r CloseReason) statusAndReason() (websocket.StatusCode, string) {
	switch r.kind {
	case "normal_closure":
		return websocket.StatusNormalClosure, "closing"
	case "client_timeout":
		return websocket.StatusPolicyViolation, "timeout"
	case "server_shutdown":
		return websocket.StatusGoingAway, "server shutting down"
	case "client_error":
		return websocket.StatusPolicyViolation, r.message
	default:
		return websocket.StatusInternalError, "internal error"
	}
}
