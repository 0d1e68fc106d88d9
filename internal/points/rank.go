package points

// top5Bump is the fixed top-5 rank bonus table (0-based rank: 0..4).
var top5Bump = [5]float64{0.20, 0.12, 0.09, 0.06, 0.02}

// RankBump computes R, the sum of three rank-dependent bumps, clamped to
// [0, 1]. rank is 0-based.
func RankBump(rank int) float64 {
	r := 0.0
	if bump := 100 - rank; bump > 0 {
		r += 0.004 * float64(bump)
	}
	if bump := 20 - rank; bump > 0 {
		r += 0.02 * float64(bump)
	}
	if rank < len(top5Bump) {
		r += top5Bump[rank]
	}
	if r > 1 {
		r = 1
	}
	if r < 0 {
		r = 0
	}
	return r
}
