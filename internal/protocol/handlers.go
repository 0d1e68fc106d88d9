package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cs2kz-org/cs2kz-api/internal/events"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
	"github.com/cs2kz-org/cs2kz-api/internal/points"
)

// handleMapChanged updates the session's current map and replies with the
// catalog's view of it, if the name resolves.
func handleMapChanged(ctx context.Context, session *serverSession, deps *Deps, raw json.RawMessage) (any, error) {
	var p MapChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal map_changed: %w", err)
	}

	mp, err := deps.Maps.GetByName(ctx, p.Name)
	if err != nil {
		return nil, fmt.Errorf("protocol: load map %q: %w", p.Name, err)
	}
	session.setCurrentMap(p.Name)

	return MapChangedAckPayload{Kind: kindAck, MapInfo: toMapInfo(mp)}, nil
}

// handlePlayerJoin registers the player (or refreshes their name/IP) and
// reports back their stored preferences and ban status.
func handlePlayerJoin(ctx context.Context, session *serverSession, deps *Deps, raw json.RawMessage) (any, error) {
	var p PlayerJoinPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal player_join: %w", err)
	}

	result, err := deps.Players.Register(ctx, kz.PlayerID(p.ID), p.Name, p.IP)
	if err != nil {
		return nil, fmt.Errorf("protocol: register player: %w", err)
	}

	publishPlayerEvent(deps, events.PlayerJoin, session.serverID, kz.PlayerID(p.ID))

	return PlayerJoinAckPayload{
		Kind:        kindAck,
		Preferences: result.Preferences,
		IsBanned:    result.IsBanned,
	}, nil
}

// handlePlayerLeave persists whatever name/preferences the server's own
// tracking last observed and acknowledges with no further data.
func handlePlayerLeave(ctx context.Context, session *serverSession, deps *Deps, raw json.RawMessage) (any, error) {
	var p PlayerLeavePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal player_leave: %w", err)
	}

	if err := deps.Players.UpdateOnLeave(ctx, kz.PlayerID(p.ID), p.Name, p.Preferences); err != nil {
		return nil, fmt.Errorf("protocol: update player on leave: %w", err)
	}

	publishPlayerEvent(deps, events.PlayerLeave, session.serverID, kz.PlayerID(p.ID))

	return AckPayload{Kind: kindAck}, nil
}

// handleSubmitRecord resolves the run's course/mode/styles against the
// session's current map and checksum tables, then hands it to the online
// submission pipeline. Domain rejections (non-global map, unknown course,
// unknown mode) come back as an error-kind reply rather than closing the
// connection; only malformed frames or storage failures do that.
func handleSubmitRecord(ctx context.Context, session *serverSession, deps *Deps, raw json.RawMessage) (any, error) {
	var p SubmitRecordPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal submit_record: %w", err)
	}

	currentMap := session.getCurrentMap()
	mp, err := deps.Maps.GetByName(ctx, currentMap)
	if err != nil {
		return nil, fmt.Errorf("protocol: load current map: %w", err)
	}
	if mp == nil {
		return ErrorPayload{Kind: kindError, Message: "current map is not known to the catalog"}, nil
	}
	if mp.State != kz.MapStateApproved {
		return ErrorPayload{Kind: kindError, Message: "current map is not a global map"}, nil
	}

	mode, ok := session.resolveMode(p.ModeChecksum)
	if !ok {
		return ErrorPayload{Kind: kindError, Message: "unrecognized mode checksum"}, nil
	}

	course, err := deps.Maps.GetCourseByLocalID(ctx, mp.ID, p.CourseLocalID)
	if err != nil {
		return nil, fmt.Errorf("protocol: load course: %w", err)
	}
	if course == nil {
		return ErrorPayload{Kind: kindError, Message: "unrecognized course_local_id for current map"}, nil
	}

	filter, err := deps.Maps.GetFilter(ctx, course.ID, mode)
	if err != nil {
		return nil, fmt.Errorf("protocol: load filter: %w", err)
	}
	if filter == nil {
		return ErrorPayload{Kind: kindError, Message: "no filter for this course/mode"}, nil
	}

	styles := session.resolveStyles(p.StyleChecksums)

	result, err := deps.Submissions.Submit(ctx, points.Input{
		FilterID:  filter.ID,
		PlayerID:  kz.PlayerID(p.PlayerID),
		SessionID: session.dbSessionID,
		ServerID:  session.serverID,
		Time:      p.Time,
		Teleports: p.Teleports,
		Styles:    styles,
	})
	if err != nil {
		switch err {
		case points.ErrPlayerBanned:
			return ErrorPayload{Kind: kindError, Message: "player is currently banned"}, nil
		case points.ErrSessionMismatch:
			return ErrorPayload{Kind: kindError, Message: "session does not belong to this connection"}, nil
		default:
			return nil, fmt.Errorf("protocol: submit record: %w", err)
		}
	}

	deps.Daemon.Notify()

	deps.Events.Publish(events.Event{
		Kind:     events.RecordSubmitted,
		At:       time.Now().UTC(),
		ServerID: session.serverID,
		PlayerID: kz.PlayerID(p.PlayerID),
		FilterID: filter.ID,
		RecordID: result.ID,
	})

	ack := SubmitRecordAckPayload{Kind: kindAck, RecordID: uint64(result.ID)}
	if result.Ranked != nil {
		ack.Ranked = &SubmitRecordRanked{
			NUBStats:     toWireStats(result.Ranked.NUBStats),
			PROStats:     toWireStats(result.Ranked.PROStats),
			PlayerRating: result.Ranked.PlayerRating,
		}
	}
	return ack, nil
}

func toWireStats(s *points.LeaderboardStats) *SubmitRecordLeaderboardStats {
	if s == nil {
		return nil
	}
	ids := make([]uint64, len(s.PlayersToRecalc))
	for i, id := range s.PlayersToRecalc {
		ids[i] = uint64(id)
	}
	return &SubmitRecordLeaderboardStats{
		LeaderboardSize: s.LeaderboardSize,
		Rank:            s.Rank,
		Points:          s.Points,
		PlayersToRecalc: ids,
	}
}

func mapStateString(s kz.MapState) string {
	switch s {
	case kz.MapStateInTesting:
		return "in_testing"
	case kz.MapStateApproved:
		return "approved"
	case kz.MapStateDegloballed:
		return "degloballed"
	default:
		return "unknown"
	}
}
