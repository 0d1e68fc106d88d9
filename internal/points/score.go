package points

import (
	"math"

	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// smallLeaderboardMax is the entry count under which the closed-form L
// formula is used instead of the fitted NIG distribution.
const smallLeaderboardMax = 50

// LeaderboardPortionSmall computes L for a leaderboard with at most
// smallLeaderboardMax entries, per spec.md §4.5. time and worldRecord are
// both in seconds; time must be >= worldRecord.
func LeaderboardPortionSmall(tier kz.Tier, time, worldRecord float64) float64 {
	x := 2.1 - 0.25*float64(tier)
	y := 1 + math.Exp(-x/2)
	z := 1 + math.Exp(x*(time/worldRecord-1.5))
	return y / z
}

// LeaderboardPortionLarge computes L from a fitted distribution's
// survival function, clamped to [0, 1].
func LeaderboardPortionLarge(time float64, params DistributionParams) float64 {
	l := SurvivalFunction(time, params) / params.TopScale
	if l < 0 {
		return 0
	}
	if l > 1 {
		return 1
	}
	return l
}

// Score computes the final point value P = tier + 0.125*(10000-tier)*R +
// 0.875*(10000-tier)*L.
func Score(tier float64, rankBump float64, leaderboardPortion float64) float64 {
	return tier + 0.125*(10000-tier)*rankBump + 0.875*(10000-tier)*leaderboardPortion
}
