package points

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// Submissions implements the online record-submission path.
type Submissions struct {
	db *db.DB
}

// NewSubmissions constructs a Submissions store.
func NewSubmissions(d *db.DB) *Submissions { return &Submissions{db: d} }

// ErrPlayerBanned is returned when the submitting player currently has an
// active ban.
var ErrPlayerBanned = fmt.Errorf("points: player is currently banned")

// ErrSessionMismatch is returned when the submission's session does not
// belong to the connected server.
var ErrSessionMismatch = fmt.Errorf("points: session does not belong to the connected server")

// Input is the submission payload: (filter_id, player_id, session_id, time,
// teleports, styles).
type Input struct {
	FilterID  kz.FilterID
	PlayerID  kz.PlayerID
	SessionID uint64
	ServerID  kz.ServerID
	Time      float64
	Teleports uint32
	Styles    kz.Styles
}

// LeaderboardStats carries one leaderboard's outcome for a submission.
type LeaderboardStats struct {
	LeaderboardSize int
	Rank            int // 0-based
	Points          float64
	PlayersToRecalc []kz.PlayerID
}

// Ranked carries the outcome for a non-styled submission.
type Ranked struct {
	NUBStats     *LeaderboardStats
	PROStats     *LeaderboardStats
	PlayerRating float64
}

// Result is the full response to a submission.
type Result struct {
	ID     kz.RecordID
	Ranked *Ranked // nil for styled runs
}

// Submit runs the full record-submission pipeline: insert, rank update on
// both leaderboards, rating recompute, and dirty-filter marking — all in
// one transaction.
func (s *Submissions) Submit(ctx context.Context, in Input) (*Result, error) {
	var result Result

	err := s.db.InTransaction(ctx, func(ctx context.Context, q db.Querier) error {
		var banned int
		err := q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM bans b
			WHERE b.player_id = ?
			  AND b.expires_at > datetime('now')
			  AND NOT EXISTS (SELECT 1 FROM unbans u WHERE u.ban_id = b.id)`,
			uint64(in.PlayerID),
		).Scan(&banned)
		if err != nil {
			return fmt.Errorf("check ban status: %w", err)
		}
		if banned > 0 {
			return ErrPlayerBanned
		}

		var sessionServerID uint64
		err = q.QueryRowContext(ctx, `
			SELECT server_id FROM server_sessions WHERE id = ? AND disconnected_at IS NULL`,
			in.SessionID,
		).Scan(&sessionServerID)
		if err == sql.ErrNoRows || (err == nil && sessionServerID != uint64(in.ServerID)) {
			return ErrSessionMismatch
		}
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("check session ownership: %w", err)
		}

		var nubTier, proTier int
		err = q.QueryRowContext(ctx, `SELECT nub_tier, pro_tier FROM filters WHERE id = ?`, uint64(in.FilterID)).Scan(&nubTier, &proTier)
		if err != nil {
			return fmt.Errorf("load filter: %w", err)
		}

		res, err := q.ExecContext(ctx, `
			INSERT INTO records (filter_id, player_id, server_id, plugin_version_id, time_seconds, teleports, styles)
			SELECT ?, ?, ?, ss.plugin_version_id, ?, ?, ?
			FROM server_sessions ss WHERE ss.id = ?`,
			uint64(in.FilterID), uint64(in.PlayerID), uint64(in.ServerID), in.Time, in.Teleports, uint32(in.Styles), in.SessionID,
		)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		recordID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("record id: %w", err)
		}
		result.ID = kz.RecordID(recordID)

		if !in.Styles.IsEmpty() {
			return nil // styled runs never participate in ranked leaderboards
		}

		ranked := &Ranked{}

		nubStats, err := updateLeaderboard(ctx, q, leaderboardUpdate{
			table:    "best_records",
			filterID: in.FilterID,
			playerID: in.PlayerID,
			recordID: kz.RecordID(recordID),
			time:     in.Time,
			tier:     kz.Tier(nubTier),
			kind:     KindNUB,
			proOnly:  false,
		})
		if err != nil {
			return fmt.Errorf("update NUB leaderboard: %w", err)
		}
		ranked.NUBStats = nubStats

		if in.Teleports == 0 {
			proStats, err := updateLeaderboard(ctx, q, leaderboardUpdate{
				table:    "best_pro_records",
				filterID: in.FilterID,
				playerID: in.PlayerID,
				recordID: kz.RecordID(recordID),
				time:     in.Time,
				tier:     kz.Tier(proTier),
				kind:     KindPRO,
				proOnly:  true,
			})
			if err != nil {
				return fmt.Errorf("update PRO leaderboard: %w", err)
			}
			ranked.PROStats = proStats
		}

		rating, err := recomputeRating(ctx, q, in.PlayerID)
		if err != nil {
			return fmt.Errorf("recompute rating: %w", err)
		}
		ranked.PlayerRating = rating

		if _, err := q.ExecContext(ctx, `UPDATE players SET rating = ? WHERE id = ?`, rating, uint64(in.PlayerID)); err != nil {
			return fmt.Errorf("persist rating: %w", err)
		}

		if _, err := q.ExecContext(ctx, `
			INSERT INTO filters_to_recalculate (filter_id, priority, marked_at)
			VALUES (?, 1, datetime('now'))
			ON CONFLICT(filter_id) DO UPDATE SET priority = priority + 1, marked_at = datetime('now')`,
			uint64(in.FilterID),
		); err != nil {
			return fmt.Errorf("mark filter dirty: %w", err)
		}

		result.Ranked = ranked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type leaderboardUpdate struct {
	table    string
	filterID kz.FilterID
	playerID kz.PlayerID
	recordID kz.RecordID
	time     float64
	tier     kz.Tier
	kind     Kind
	proOnly  bool
}

// updateLeaderboard implements spec.md §4.6 steps 3/4: skip if not a PB,
// else determine rank by counting entries at-or-better, compute L from the
// closed-form or cached NIG fit, compute P, upsert, and collect the player
// ids whose effective rank shifted down.
func updateLeaderboard(ctx context.Context, q db.Querier, u leaderboardUpdate) (*LeaderboardStats, error) {
	timeJoin := "records r ON r.id = t.record_id"
	timeFilter := ""
	if u.proOnly {
		timeFilter = " AND r.teleports = 0"
	}

	var existingTime sql.NullFloat64
	err := q.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT r.time_seconds FROM %s t JOIN %s
		WHERE t.filter_id = ? AND t.player_id = ?%s`, u.table, timeJoin, timeFilter),
		uint64(u.filterID), uint64(u.playerID),
	).Scan(&existingTime)
	hadPB := true
	if err == sql.ErrNoRows {
		hadPB = false
	} else if err != nil {
		return nil, fmt.Errorf("load existing PB: %w", err)
	}
	if hadPB && existingTime.Float64 <= u.time {
		return nil, nil // not strictly better; skip
	}

	var leaderboardCount int
	if err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE filter_id = ?`, u.table), uint64(u.filterID)).Scan(&leaderboardCount); err != nil {
		return nil, fmt.Errorf("leaderboard size: %w", err)
	}
	size := leaderboardCount
	if !hadPB {
		size++
	}

	var rank int
	if err := q.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM %s t JOIN %s
		WHERE t.filter_id = ? AND t.player_id != ? AND r.time_seconds <= ?%s`, u.table, timeJoin, timeFilter),
		uint64(u.filterID), uint64(u.playerID), u.time,
	).Scan(&rank); err != nil {
		return nil, fmt.Errorf("compute rank: %w", err)
	}

	var wr sql.NullFloat64
	if err := q.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT MIN(r.time_seconds) FROM %s t JOIN %s
		WHERE t.filter_id = ?%s`, u.table, timeJoin, timeFilter),
		uint64(u.filterID),
	).Scan(&wr); err != nil {
		return nil, fmt.Errorf("world record time: %w", err)
	}
	wrTime := u.time
	if wr.Valid {
		wrTime = math.Min(wr.Float64, u.time)
	}

	var l float64
	if size <= smallLeaderboardMax {
		l = LeaderboardPortionSmall(u.tier, u.time, wrTime)
	} else {
		params, cached, err := loadDistributionParams(ctx, q, u.filterID, u.proOnly)
		if err != nil {
			return nil, fmt.Errorf("load distribution params: %w", err)
		}
		if !cached {
			l = LeaderboardPortionSmall(u.tier, u.time, wrTime)
		} else {
			l = LeaderboardPortionLarge(u.time, params)
		}
	}

	points := Score(TierPoints(u.tier, u.kind), RankBump(rank), l)

	if _, err := q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (filter_id, player_id, record_id, points, rank)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(filter_id, player_id) DO UPDATE SET record_id = excluded.record_id, points = excluded.points, rank = excluded.rank`, u.table),
		uint64(u.filterID), uint64(u.playerID), uint64(u.recordID), points, rank,
	); err != nil {
		return nil, fmt.Errorf("upsert leaderboard row: %w", err)
	}

	stats := &LeaderboardStats{LeaderboardSize: size, Rank: rank, Points: points}

	if rank <= 50 {
		limit := 51 - rank
		rows, err := q.QueryContext(ctx, fmt.Sprintf(`
			SELECT t.player_id FROM %s t JOIN %s
			WHERE t.filter_id = ? AND t.player_id != ? AND r.time_seconds > ?%s
			ORDER BY r.time_seconds ASC, r.created_at ASC
			LIMIT ?`, u.table, timeJoin, timeFilter),
			uint64(u.filterID), uint64(u.playerID), u.time, limit,
		)
		if err != nil {
			return nil, fmt.Errorf("players to recalc: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id uint64
			if err := rows.Scan(&id); err != nil {
				return nil, fmt.Errorf("scan player to recalc: %w", err)
			}
			stats.PlayersToRecalc = append(stats.PlayersToRecalc, kz.PlayerID(id))
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func loadDistributionParams(ctx context.Context, q db.Querier, filterID kz.FilterID, proOnly bool) (DistributionParams, bool, error) {
	table := "distribution_parameters"
	if proOnly {
		table = "pro_distribution_parameters"
	}
	var p DistributionParams
	err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT alpha, beta, mu, delta, top_scale FROM %s WHERE filter_id = ?`, table), uint64(filterID)).
		Scan(&p.Alpha, &p.Beta, &p.Mu, &p.Delta, &p.TopScale)
	if err == sql.ErrNoRows {
		return DistributionParams{}, false, nil
	}
	if err != nil {
		return DistributionParams{}, false, err
	}
	return p, true, nil
}

// recomputeRating computes Σ points_i · 0.975^(i-1) over a player's top
// records across both leaderboards ordered by points descending, PRO-tie-
// broken ahead of NUB (spec.md §4.6 step 5).
func recomputeRating(ctx context.Context, q db.Querier, playerID kz.PlayerID) (float64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT points, 1 AS kind FROM best_pro_records WHERE player_id = ?
		UNION ALL
		SELECT points, 0 AS kind FROM best_records WHERE player_id = ?
		ORDER BY points DESC, kind DESC`,
		uint64(playerID), uint64(playerID),
	)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var rating float64
	i := 0
	for rows.Next() {
		var pts float64
		var kind int
		if err := rows.Scan(&pts, &kind); err != nil {
			return 0, err
		}
		rating += pts * math.Pow(0.975, float64(i))
		i++
	}
	return rating, rows.Err()
}
