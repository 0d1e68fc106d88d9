// Package points implements the scoring formula from spec section 4.5, the
// online submission pipeline from 4.6, and the offline recalculation
// daemon from 4.7.
package points

import "github.com/cs2kz-org/cs2kz-api/internal/kz"

// tierPoints is the hard-coded (tier, leaderboard-kind) → base-points
// table. Values climb from low-tier/NUB to high-tier/PRO, topping out
// at 9550 as spec.md §4.5 requires (`tier ∈ [0, 9550]`).
var tierPoints = map[kz.Tier][2]float64{
	kz.Tier1: {500, 650},
	kz.Tier2: {1000, 1300},
	kz.Tier3: {2000, 2600},
	kz.Tier4: {3200, 4100},
	kz.Tier5: {4500, 5700},
	kz.Tier6: {5800, 7200},
	kz.Tier7: {7000, 8400},
	kz.Tier8: {8000, 9550},
}

// Kind distinguishes the NUB and PRO leaderboards.
type Kind int

const (
	KindNUB Kind = iota
	KindPRO
)

// TierPoints returns the base points for a (tier, kind) pair.
func TierPoints(tier kz.Tier, kind Kind) float64 {
	row, ok := tierPoints[tier]
	if !ok {
		return 0
	}
	return row[kind]
}
