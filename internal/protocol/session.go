package protocol

import (
	"sync"
	"sync/atomic"

	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// serverSession is the handshake-derived state a connected server's
// messages are interpreted against: which native checksum maps to which
// Mode/Styles for its declared plugin build, and the map it last reported
// being on.
type serverSession struct {
	serverID        kz.ServerID
	pluginVersionID kz.PluginVersionID
	dbSessionID     uint64
	modeByChecksum  map[uint32]kz.Mode
	styleByChecksum map[uint32]kz.Styles

	mu         sync.Mutex
	currentMap string

	// outboundID counts API-initiated messages (BroadcastMessage) for this
	// connection; reply messages instead echo the request's own id.
	outboundID atomic.Uint64
}

// nextOutboundID returns the next monotonic id for an API-initiated
// message on this connection.
func (s *serverSession) nextOutboundID() uint64 {
	return s.outboundID.Add(1)
}

func (s *serverSession) setCurrentMap(name string) {
	s.mu.Lock()
	s.currentMap = name
	s.mu.Unlock()
}

func (s *serverSession) getCurrentMap() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentMap
}

// resolveMode looks up a mode checksum within this session's declared
// plugin version. The second return is false for an unknown checksum.
func (s *serverSession) resolveMode(checksum uint32) (kz.Mode, bool) {
	m, ok := s.modeByChecksum[checksum]
	return m, ok
}

// resolveStyles ORs together the Styles bound to each recognized checksum,
// silently dropping unknown ones per spec.md §4.9.
func (s *serverSession) resolveStyles(checksums []uint32) kz.Styles {
	var out kz.Styles
	for _, c := range checksums {
		if style, ok := s.styleByChecksum[c]; ok {
			out |= style
		}
	}
	return out
}
