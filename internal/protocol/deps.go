package protocol

import (
	"time"

	"github.com/cs2kz-org/cs2kz-api/internal/catalog"
	"github.com/cs2kz-org/cs2kz-api/internal/events"
	"github.com/cs2kz-org/cs2kz-api/internal/monitor"
	"github.com/cs2kz-org/cs2kz-api/internal/points"
)

// HandshakeDeadline bounds how long a connection has to complete
// Hello/HelloAck before the API gives up on it (spec.md §5).
const HandshakeDeadline = 60 * time.Second

// DefaultHeartbeatInterval is handed to a server in HelloAck when no
// narrower configuration value applies.
const DefaultHeartbeatInterval = 10 * time.Second

// writeTimeout bounds any single outbound frame write.
const writeTimeout = 5 * time.Second

// Deps collects everything a connection needs to service operational
// messages. One Deps is shared across every connection; Serve is safe to
// call concurrently for distinct connections.
type Deps struct {
	Servers           *catalog.Servers
	Maps              *catalog.Maps
	Players           *catalog.Players
	PluginVersions    *catalog.PluginVersions
	ServerSessions    *catalog.ServerSessions
	Submissions       *points.Submissions
	Daemon            *points.Daemon
	Monitor           *monitor.Monitor
	Events            *events.Bus
	HeartbeatInterval time.Duration
}

func (d *Deps) heartbeatInterval() time.Duration {
	if d.HeartbeatInterval > 0 {
		return d.HeartbeatInterval
	}
	return DefaultHeartbeatInterval
}
