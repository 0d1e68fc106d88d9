package points

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// idlePollInterval bounds how long the daemon waits for a notification
// before re-checking the work queue on its own.
const idlePollInterval = 30 * time.Second

// upsertChunkSize caps how many leaderboard rows are rewritten per
// statement during the offline recalculation pass.
const upsertChunkSize = 1000

// Daemon runs the offline recalculation loop: it repeatedly claims the
// highest-priority dirty filter, refits its distribution if needed, and
// rewrites both leaderboards' points/rank columns.
type Daemon struct {
	db     *db.DB
	notify chan struct{}
}

// NewDaemon constructs a Daemon bound to d.
func NewDaemon(d *db.DB) *Daemon {
	return &Daemon{db: d, notify: make(chan struct{}, 1)}
}

// Notify wakes the daemon from an idle wait. Submit callers invoke this
// after marking a filter dirty; it never blocks.
func (daemon *Daemon) Notify() {
	select {
	case daemon.notify <- struct{}{}:
	default:
	}
}

var errNoWork = errors.New("points: no dirty filter to recalculate")

// Run executes the daemon loop until ctx is cancelled. It checks for
// cancellation between filters, never mid-write: a cancelled context is
// honored only after the current filter's upserts have committed.
func (daemon *Daemon) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		filterID, err := daemon.claimDirtyFilter(ctx)
		if errors.Is(err, errNoWork) {
			select {
			case <-ctx.Done():
				return nil
			case <-daemon.notify:
			case <-time.After(idlePollInterval):
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("points: claim dirty filter: %w", err)
		}

		if err := daemon.recalculateFilter(context.WithoutCancel(ctx), filterID); err != nil {
			return fmt.Errorf("points: recalculate filter %d: %w", filterID, err)
		}
	}
}

// claimDirtyFilter picks the filter with the highest non-zero priority and
// resets it to zero, all within one transaction. With the single
// connection internal/db.Open configures, this transaction is SQLite's
// stand-in for the table locks spec.md §4.7 step 1 describes.
func (daemon *Daemon) claimDirtyFilter(ctx context.Context) (kz.FilterID, error) {
	var filterID int64
	err := daemon.db.InTransaction(ctx, func(ctx context.Context, q db.Querier) error {
		err := q.QueryRowContext(ctx, `
			SELECT filter_id FROM filters_to_recalculate
			WHERE priority > 0 ORDER BY priority DESC LIMIT 1`).Scan(&filterID)
		if err == sql.ErrNoRows {
			return errNoWork
		}
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `UPDATE filters_to_recalculate SET priority = 0 WHERE filter_id = ?`, filterID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return kz.FilterID(filterID), nil
}

type leaderboardEntry struct {
	playerID kz.PlayerID
	recordID kz.RecordID
	time     float64
}

// recalculateFilter implements spec.md §4.7 steps 2-5 for one filter.
func (daemon *Daemon) recalculateFilter(ctx context.Context, filterID kz.FilterID) error {
	var nubTier, proTier int
	if err := daemon.db.Conn().QueryRowContext(ctx, `SELECT nub_tier, pro_tier FROM filters WHERE id = ?`, uint64(filterID)).Scan(&nubTier, &proTier); err != nil {
		return fmt.Errorf("load filter: %w", err)
	}

	nub, err := loadLeaderboard(ctx, daemon.db.Conn(), "best_records", filterID, false)
	if err != nil {
		return fmt.Errorf("load NUB leaderboard: %w", err)
	}
	pro, err := loadLeaderboard(ctx, daemon.db.Conn(), "best_pro_records", filterID, true)
	if err != nil {
		return fmt.Errorf("load PRO leaderboard: %w", err)
	}

	var nubParams, proParams DistributionParams
	var nubFitted, proFitted bool

	if len(nub) > smallLeaderboardMax || len(pro) > smallLeaderboardMax {
		group, gctx := errgroup.WithContext(ctx)
		if len(nub) > smallLeaderboardMax {
			group.Go(func() error {
				p, err := FitNIG(times(nub))
				if err != nil {
					return fmt.Errorf("fit NUB distribution: %w", err)
				}
				nubParams, nubFitted = p, true
				return gctx.Err()
			})
		}
		if len(pro) > smallLeaderboardMax {
			group.Go(func() error {
				p, err := FitNIG(times(pro))
				if err != nil {
					return fmt.Errorf("fit PRO distribution: %w", err)
				}
				proParams, proFitted = p, true
				return gctx.Err()
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
	}

	nubPoints := scoreLeaderboard(nub, kz.Tier(nubTier), KindNUB, nubFitted, nubParams)
	proPoints := scoreLeaderboard(pro, kz.Tier(proTier), KindPRO, proFitted, proParams)

	return daemon.db.InTransaction(ctx, func(ctx context.Context, q db.Querier) error {
		if nubFitted {
			if err := upsertDistributionParams(ctx, q, "distribution_parameters", filterID, nubParams); err != nil {
				return err
			}
		}
		if proFitted {
			if err := upsertDistributionParams(ctx, q, "pro_distribution_parameters", filterID, proParams); err != nil {
				return err
			}
		}
		if err := chunkedUpsertPoints(ctx, q, "best_records", filterID, nub, nubPoints); err != nil {
			return fmt.Errorf("write NUB leaderboard: %w", err)
		}
		if err := chunkedUpsertPoints(ctx, q, "best_pro_records", filterID, pro, proPoints); err != nil {
			return fmt.Errorf("write PRO leaderboard: %w", err)
		}
		return nil
	})
}

func loadLeaderboard(ctx context.Context, q db.Querier, table string, filterID kz.FilterID, proOnly bool) ([]leaderboardEntry, error) {
	filter := ""
	if proOnly {
		filter = " AND r.teleports = 0"
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT t.player_id, t.record_id, r.time_seconds FROM %s t JOIN records r ON r.id = t.record_id
		WHERE t.filter_id = ?%s
		ORDER BY r.time_seconds ASC, r.created_at ASC`, table, filter),
		uint64(filterID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []leaderboardEntry
	for rows.Next() {
		var id, recordID uint64
		var t float64
		if err := rows.Scan(&id, &recordID, &t); err != nil {
			return nil, err
		}
		entries = append(entries, leaderboardEntry{playerID: kz.PlayerID(id), recordID: kz.RecordID(recordID), time: t})
	}
	return entries, rows.Err()
}

func times(entries []leaderboardEntry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.time
	}
	return out
}

// scoreLeaderboard computes the points for every rank in entries (already
// ordered by time, created_at). For a fitted large leaderboard it
// accumulates an incremental PDF integral between consecutive distinct
// times instead of calling the survival function independently per rank;
// ties copy the previous L.
func scoreLeaderboard(entries []leaderboardEntry, tier kz.Tier, kind Kind, fitted bool, params DistributionParams) []float64 {
	points := make([]float64, len(entries))
	if len(entries) == 0 {
		return points
	}

	if !fitted {
		wr := entries[0].time
		for i, e := range entries {
			l := LeaderboardPortionSmall(tier, e.time, wr)
			points[i] = Score(TierPoints(tier, kind), RankBump(i), l)
		}
		return points
	}

	remaining := SurvivalFunction(entries[0].time, params) / params.TopScale
	l := clamp01(remaining)
	points[0] = Score(TierPoints(tier, kind), RankBump(0), l)

	for i := 1; i < len(entries); i++ {
		if entries[i].time == entries[i-1].time {
			points[i] = Score(TierPoints(tier, kind), RankBump(i), l)
			continue
		}
		delta := IntegratePDF(entries[i-1].time, entries[i].time, params) / params.TopScale
		remaining -= delta
		l = clamp01(remaining)
		points[i] = Score(TierPoints(tier, kind), RankBump(i), l)
	}
	return points
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func upsertDistributionParams(ctx context.Context, q db.Querier, table string, filterID kz.FilterID, p DistributionParams) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (filter_id, alpha, beta, mu, delta, top_scale, fitted_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(filter_id) DO UPDATE SET
			alpha = excluded.alpha, beta = excluded.beta, mu = excluded.mu,
			delta = excluded.delta, top_scale = excluded.top_scale, fitted_at = excluded.fitted_at`, table),
		uint64(filterID), p.Alpha, p.Beta, p.Mu, p.Delta, p.TopScale,
	)
	return err
}

// chunkedUpsertPoints rewrites rank/points for entries in batches of at
// most upsertChunkSize rows per statement (spec.md §4.7 step 5).
func chunkedUpsertPoints(ctx context.Context, q db.Querier, table string, filterID kz.FilterID, entries []leaderboardEntry, points []float64) error {
	for start := 0; start < len(entries); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := upsertPointsChunk(ctx, q, table, filterID, entries[start:end], points[start:end], start); err != nil {
			return err
		}
	}
	return nil
}

// upsertPointsChunk rewrites one chunk's worth of rows as a single
// multi-row INSERT .. ON CONFLICT statement, rather than one exec per row.
func upsertPointsChunk(ctx context.Context, q db.Querier, table string, filterID kz.FilterID, entries []leaderboardEntry, points []float64, rankOffset int) error {
	if len(entries) == 0 {
		return nil
	}

	qb := db.NewQueryBuilder(fmt.Sprintf("INSERT INTO %s (filter_id, player_id, record_id, points, rank) VALUES", table))
	for i, e := range entries {
		sep := ","
		if i == 0 {
			sep = ""
		}
		qb.PushValues(sep+" (?, ?, ?, ?, ?)", uint64(filterID), uint64(e.playerID), uint64(e.recordID), points[i], rankOffset+i)
	}
	qb.Push(`ON CONFLICT(filter_id, player_id) DO UPDATE SET
		record_id = excluded.record_id, points = excluded.points, rank = excluded.rank`)

	query, args := qb.Build()
	_, err := q.ExecContext(ctx, query, args...)
	return err
}
