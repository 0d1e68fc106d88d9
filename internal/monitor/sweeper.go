package monitor

import (
	"context"
	"fmt"
	"time"
)

// RunSweeper runs the inactivity sweeper on a fixed interval until ctx
// is cancelled, implementing spec.md §4.8's three-way bucketing of
// last_seen_at against threshold.
func (m *Monitor) RunSweeper(ctx context.Context, checkInterval, threshold time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.sweep(ctx, threshold); err != nil {
				return fmt.Errorf("monitor: inactivity sweep: %w", err)
			}
		}
	}
}

func (m *Monitor) sweep(ctx context.Context, threshold time.Duration) error {
	now := time.Now().UTC()

	for _, id := range m.ConnectedServerIDs() {
		if err := m.servers.TouchLastSeen(ctx, id); err != nil {
			return err
		}
	}

	stale, err := m.servers.ListStaleBefore(ctx, now.Add(-threshold))
	if err != nil {
		return fmt.Errorf("list stale servers: %w", err)
	}
	warnCandidates, err := m.servers.ListStaleBefore(ctx, now.Add(-threshold/2))
	if err != nil {
		return fmt.Errorf("list warn-threshold servers: %w", err)
	}

	staleIDs := make(map[uint64]struct{}, len(stale))
	for _, s := range stale {
		staleIDs[uint64(s.ID)] = struct{}{}
		if err := m.servers.RevokeKey(ctx, s.ID); err != nil {
			return fmt.Errorf("revoke key for server %d: %w", s.ID, err)
		}
		m.notifier.NotifyRevoked(ctx, s.OwnerID, s.Name)
	}

	for _, s := range warnCandidates {
		if _, alreadyStale := staleIDs[uint64(s.ID)]; alreadyStale {
			continue
		}
		m.notifier.NotifyWarning(ctx, s.OwnerID, s.Name)
	}

	return nil
}
