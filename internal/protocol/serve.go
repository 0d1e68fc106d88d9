package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/cs2kz-org/cs2kz-api/internal/accesskeys"
	"github.com/cs2kz-org/cs2kz-api/internal/events"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
	"github.com/cs2kz-org/cs2kz-api/internal/monitor"
)

// Serve runs one server's connection end to end: handshake, heartbeat
// supervision, and the operational-message read loop, until the
// connection closes or ctx is cancelled. claims is the already-verified
// bearer token identity from the HTTP upgrade (GET /servers/ws);
// everything beyond that is negotiated over the socket itself.
//
// Grounded on the teacher's handleWingWS: read a registration frame under
// a deadline, ack it, register with the connection registry, then run a
// writer goroutine draining an outbound channel alongside a reader loop
// that dispatches by message kind.
func Serve(ctx context.Context, conn *websocket.Conn, claims accesskeys.Claims, deps *Deps) error {
	hsCtx, hsCancel := context.WithTimeout(ctx, HandshakeDeadline)
	session, ack, err := handshake(hsCtx, conn, claims, deps)
	hsCancel()
	if err != nil {
		closeConn(ctx, conn, ClientError(err.Error()))
		return fmt.Errorf("protocol: handshake: %w", err)
	}
	if err := writeMessage(ctx, conn, ack); err != nil {
		closeConn(ctx, conn, InternalError())
		return fmt.Errorf("protocol: write hello ack: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	outbound := make(chan string, 16)
	done := make(chan struct{})

	regErr := deps.Monitor.Register(session.serverID, &monitor.Connection{
		Info: monitor.ConnectionInfo{
			ServerID:        session.serverID,
			PluginVersionID: session.pluginVersionID,
			CurrentMap:      session.getCurrentMap(),
			ConnectedAt:     time.Now().UTC(),
		},
		Outbound: outbound,
		Cancel:   cancel,
		Done:     done,
	})
	if regErr != nil {
		cancel()
		closeConn(ctx, conn, ClientError(regErr.Error()))
		return fmt.Errorf("protocol: register connection: %w", regErr)
	}

	reason := NormalClosure()
	defer func() {
		close(done)
		deps.Monitor.Unregister(session.serverID, reason.String())
		_ = deps.ServerSessions.Close(context.WithoutCancel(ctx), session.dbSessionID, reason.String())
		closeConn(ctx, conn, reason)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		runWriter(connCtx, conn, session, outbound)
	}()
	defer func() { <-writerDone }()

	reason, err = readLoop(connCtx, conn, session, deps)
	if err != nil && connCtx.Err() == nil {
		return fmt.Errorf("protocol: read loop: %w", err)
	}
	return nil
}

// runWriter drains outbound (API-initiated BroadcastMessage text) to the
// socket until ctx is cancelled or a write fails.
func runWriter(ctx context.Context, conn *websocket.Conn, session *serverSession, outbound <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-outbound:
			if !ok {
				return
			}
			msg, err := marshalReply(session.nextOutboundID(), BroadcastMessagePayload{Kind: kindBroadcastMessage, Text: text})
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = writeMessage(writeCtx, conn, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// readLoop processes operational messages in receive order until the
// connection errors out, the heartbeat lapses, or ctx is cancelled for
// shutdown. It returns the CloseReason that should be sent.
func readLoop(ctx context.Context, conn *websocket.Conn, session *serverSession, deps *Deps) (CloseReason, error) {
	heartbeat := deps.heartbeatInterval()
	timer := time.NewTimer(heartbeat)
	defer timer.Stop()

	type readResult struct {
		data []byte
		err  error
	}
	reads := make(chan readResult, 1)

	startRead := func() {
		go func() {
			_, data, err := conn.Read(ctx)
			reads <- readResult{data: data, err: err}
		}()
	}
	startRead()

	for {
		select {
		case <-ctx.Done():
			return ServerShutdown(), nil

		case <-timer.C:
			return ClientTimeout(), nil

		case res := <-reads:
			if res.err != nil {
				if ctx.Err() != nil {
					return ServerShutdown(), nil
				}
				return NormalClosure(), nil
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(heartbeat)

			reply, closeReason, err := dispatch(ctx, session, deps, res.data)
			if err != nil {
				return InternalError(), err
			}
			if closeReason != nil {
				return *closeReason, nil
			}
			if reply != nil {
				writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
				werr := writeMessage(writeCtx, conn, *reply)
				cancel()
				if werr != nil {
					return NormalClosure(), nil
				}
			}
			startRead()
		}
	}
}

// dispatch decodes one incoming frame and routes it to its handler.
// closeReason is non-nil only for protocol violations serious enough to
// end the connection; domain-level rejections (e.g. NonGlobalMap) are
// reported as an error-kind reply instead.
func dispatch(ctx context.Context, session *serverSession, deps *Deps, data []byte) (reply *Message, closeReason *CloseReason, err error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		reason := ClientError("malformed message envelope")
		return nil, &reason, nil
	}

	kind, err := peekKind(msg.Payload)
	if err != nil {
		reason := ClientError(err.Error())
		return nil, &reason, nil
	}

	var payload any
	switch kind {
	case kindMapChanged:
		payload, err = handleMapChanged(ctx, session, deps, msg.Payload)
	case kindPlayerJoin:
		payload, err = handlePlayerJoin(ctx, session, deps, msg.Payload)
	case kindPlayerLeave:
		payload, err = handlePlayerLeave(ctx, session, deps, msg.Payload)
	case kindSubmitRecord:
		payload, err = handleSubmitRecord(ctx, session, deps, msg.Payload)
	default:
		reason := ClientError("unknown message kind: " + kind)
		return nil, &reason, nil
	}
	if err != nil {
		return nil, nil, err
	}

	out, err := marshalReply(msg.ID, payload)
	if err != nil {
		return nil, nil, err
	}
	return &out, nil, nil
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("protocol: marshal message: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func closeConn(ctx context.Context, conn *websocket.Conn, reason CloseReason) {
	status, text := reason.statusAndReason()
	_ = conn.Close(status, text)
}

// publishPlayerEvent is a small helper shared by the join/leave handlers.
func publishPlayerEvent(deps *Deps, kind events.Kind, serverID kz.ServerID, playerID kz.PlayerID) {
	deps.Events.Publish(events.Event{Kind: kind, ServerID: serverID, PlayerID: playerID, At: time.Now().UTC()})
}
