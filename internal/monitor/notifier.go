package monitor

import (
	"context"
	"log"

	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// Notifier delivers the inactivity sweeper's owner-facing warnings
// (spec.md §4.8). Full email/Discord bot delivery is out of scope (see
// spec.md §1's non-goals); this interface exists so a concrete delivery
// mechanism can be wired in later without touching the sweeper itself.
type Notifier interface {
	NotifyWarning(ctx context.Context, ownerID kz.UserID, serverName string)
	NotifyRevoked(ctx context.Context, ownerID kz.UserID, serverName string)
}

// LogNotifier is the default Notifier: it writes to the standard
// logger instead of sending mail, following the "log and move on" style
// of the pack's own best-effort notification code (the `ehrlich-b-
// wingthing` repo's sendInviteEmail logs on failure rather than
// propagating it — this Notifier applies the same posture to the
// entire send, since no delivery channel is configured by default).
type LogNotifier struct{}

func (LogNotifier) NotifyWarning(_ context.Context, ownerID kz.UserID, serverName string) {
	log.Printf("monitor: server %q (owner %d) is approaching its inactivity threshold", serverName, ownerID)
}

func (LogNotifier) NotifyRevoked(_ context.Context, ownerID kz.UserID, serverName string) {
	log.Printf("monitor: server %q (owner %d) access key revoked for inactivity", serverName, ownerID)
}
