// Package events implements a process-wide event bus for the server
// lifecycle and gameplay notifications described in spec.md §4.8/§4.9:
// servers connecting/disconnecting, players joining/leaving a connected
// server's session, and records being submitted. The monitor and
// protocol packages publish; anything needing to react (an SSE stream,
// a moderation hook) subscribes.
package events

import (
	"sync"
	"time"

	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// Kind identifies the shape of an Event's payload.
type Kind int

const (
	ServerConnected Kind = iota
	ServerDisconnected
	PlayerJoin
	PlayerLeave
	RecordSubmitted
)

func (k Kind) String() string {
	switch k {
	case ServerConnected:
		return "server_connected"
	case ServerDisconnected:
		return "server_disconnected"
	case PlayerJoin:
		return "player_join"
	case PlayerLeave:
		return "player_leave"
	case RecordSubmitted:
		return "record_submitted"
	default:
		return "unknown"
	}
}

// Event is one bus notification. Only the fields relevant to Kind are
// populated; the rest are zero.
type Event struct {
	Kind      Kind
	At        time.Time
	ServerID  kz.ServerID
	PlayerID  kz.PlayerID
	FilterID  kz.FilterID
	RecordID  kz.RecordID
	Reason    string // ServerDisconnected's close reason, if any
}

const subscriberBufferCap = 256

// Bus fans out events to any number of subscribers. A slow subscriber
// never blocks publishing: sends are non-blocking and dropped if the
// subscriber's buffer is full.
type Bus struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// New creates a Bus ready for use.
func New() *Bus {
	return &Bus{subscribers: make(map[chan Event]struct{})}
}

// Publish fans an event out to all current subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel that receives future events and an
// unsubscribe function the caller must invoke when done listening.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBufferCap)
	b.subscribers[ch] = struct{}{}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// SubscriberCount reports the number of currently active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
