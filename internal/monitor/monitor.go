// Package monitor implements the Server Monitor from spec.md §4.8: the
// registry of currently-connected game servers, each represented as a
// handle onto an independently running per-server task (the actual
// protocol loop lives in internal/protocol), plus the inactivity
// sweeper that revokes access keys from servers that stop checking in.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cs2kz-org/cs2kz-api/internal/catalog"
	"github.com/cs2kz-org/cs2kz-api/internal/events"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// ConnectionInfo describes one connected server's session for
// get_connection_info callers.
type ConnectionInfo struct {
	ServerID        kz.ServerID
	PluginVersionID kz.PluginVersionID
	CurrentMap      string
	ConnectedAt     time.Time
}

// Connection is the handle a per-server task registers on connect and
// the Monitor uses to reach it afterward. Outbound carries
// API-initiated messages (e.g. BroadcastMessage) to the task; Cancel
// requests the task shut down; Done is closed once it has.
type Connection struct {
	Info     ConnectionInfo
	Outbound chan<- string
	Cancel   context.CancelFunc
	Done     <-chan struct{}
}

// ErrAlreadyConnected is returned by Register when server_id already
// has a live connection.
var ErrAlreadyConnected = fmt.Errorf("monitor: server already connected")

// ErrNotConnected is returned when a server_id has no live connection.
var ErrNotConnected = fmt.Errorf("monitor: server not connected")

// Monitor owns the registry of connected servers.
type Monitor struct {
	servers  *catalog.Servers
	events   *events.Bus
	notifier Notifier

	mu    sync.Mutex
	conns map[kz.ServerID]*Connection
}

// New constructs a Monitor. notifier may be nil, in which case a
// LogNotifier is used.
func New(servers *catalog.Servers, bus *events.Bus, notifier Notifier) *Monitor {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Monitor{
		servers:  servers,
		events:   bus,
		notifier: notifier,
		conns:    make(map[kz.ServerID]*Connection),
	}
}

// Register records a newly-established connection. The caller (the
// per-server task, typically protocol.Serve) must already have
// completed the handshake before calling this, and must call
// Unregister when the task exits.
func (m *Monitor) Register(serverID kz.ServerID, conn *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[serverID]; exists {
		return ErrAlreadyConnected
	}
	m.conns[serverID] = conn
	m.events.Publish(events.Event{Kind: events.ServerConnected, ServerID: serverID, At: conn.Info.ConnectedAt})
	return nil
}

// Unregister removes a server's connection once its task has exited,
// the "task completion" step from spec.md §4.8, and dispatches
// ServerDisconnected. Safe to call even if the task was never
// registered (a handshake failure before Register, say).
func (m *Monitor) Unregister(serverID kz.ServerID, reason string) {
	m.mu.Lock()
	_, existed := m.conns[serverID]
	delete(m.conns, serverID)
	m.mu.Unlock()

	if existed {
		m.events.Publish(events.Event{Kind: events.ServerDisconnected, ServerID: serverID, Reason: reason, At: time.Now().UTC()})
	}
}

// Disconnect requests the task for serverID shut down and waits for
// its acknowledgement (Done closing) or ctx's deadline, whichever
// comes first.
func (m *Monitor) Disconnect(ctx context.Context, serverID kz.ServerID) (bool, error) {
	m.mu.Lock()
	conn, ok := m.conns[serverID]
	m.mu.Unlock()
	if !ok {
		return false, ErrNotConnected
	}

	conn.Cancel()
	select {
	case <-conn.Done:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ConnectionInfo returns the current connection info for serverID.
func (m *Monitor) ConnectionInfo(serverID kz.ServerID) (ConnectionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[serverID]
	if !ok {
		return ConnectionInfo{}, false
	}
	return conn.Info, true
}

// broadcastRate caps how fast Broadcast dispatches individual sends,
// so a large target list can't starve the goroutines servicing other
// per-server tasks.
const broadcastRate = rate.Limit(200)
const broadcastBurst = 50

// Broadcast delivers message to every server in targets (or every
// connected server, if targets is empty) and returns the count of
// accepted deliveries. A server whose outbound buffer is full does not
// count as accepted, matching the per-task non-blocking send contract.
func (m *Monitor) Broadcast(ctx context.Context, targets []kz.ServerID, message string) int {
	limiter := rate.NewLimiter(broadcastRate, broadcastBurst)

	m.mu.Lock()
	var recipients []*Connection
	if len(targets) == 0 {
		recipients = make([]*Connection, 0, len(m.conns))
		for _, conn := range m.conns {
			recipients = append(recipients, conn)
		}
	} else {
		for _, id := range targets {
			if conn, ok := m.conns[id]; ok {
				recipients = append(recipients, conn)
			}
		}
	}
	m.mu.Unlock()

	accepted := 0
	for _, conn := range recipients {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		select {
		case conn.Outbound <- message:
			accepted++
		default:
		}
	}
	return accepted
}

// ConnectedServerIDs returns a snapshot of the currently-connected
// server ids, used by the inactivity sweeper to refresh last_seen_at for
// every server that is connected when it runs.
func (m *Monitor) ConnectedServerIDs() []kz.ServerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]kz.ServerID, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	return ids
}
