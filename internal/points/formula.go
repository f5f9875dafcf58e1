// Package points implements the points/rating pipeline: synchronous
// point-assignment at record-submission time (SyncPointAssigner) and the
// background distribution-refitting worker (AsyncRecalcWorker), both
// consulting the same DistributionParams rows at different cadences.
package points

import "math"

// SLT is the small-leaderboard threshold: at or below this leaderboard size,
// points are derived from the closed-form tier/time formula instead of the
// fitted distribution.
const SLT = 50

// tierTableNUB and tierTablePRO hold the eight fixed points-for-tier
// constants of each variant.
// Tiers above len(table) never receive for_tier/for_rank points.
var (
	tierTableNUB = [8]float64{0, 500, 2000, 3500, 5000, 6500, 8000, 9500}
	tierTablePRO = [8]float64{1000, 1450, 2800, 4150, 5500, 6850, 8200, 9550}
)

// ForTier returns the fixed points-for-tier constant for a 1-based tier and
// leaderboard variant. Returns 0 for tiers outside the ranked range.
func ForTier(tier int, pro bool) float64 {
	if tier < 1 || tier > 8 {
		return 0
	}
	table := tierTableNUB
	if pro {
		table = tierTablePRO
	}
	return table[tier-1]
}

// SmallLeaderboardPoints computes the closed-form tier/time-ratio points
// fraction used both when a filter's leaderboard is at or below SLT and as
// the fallback when no DistributionParams exist yet.
//
// Precondition: topTime <= time; the caller must clamp topTime to time when
// the submission is itself the new fastest time, yielding points=1.
func SmallLeaderboardPoints(tier int, topTime, t float64) float64 {
	if t <= topTime {
		return 1
	}
	x := 2.1 - 0.25*float64(tier)
	y := 1 + math.Exp(x*-0.5)
	z := 1 + math.Exp(x*(t/topTime-1.5))
	return y / z
}

// RankBonus is the piecewise rank-dependent bonus used in for_rank. Strictly
// decreasing on R in [0, 99].
func RankBonus(rank int) float64 {
	var bonus float64
	if rank < 100 {
		bonus += float64(100-rank) * 0.004
	}
	if rank < 20 {
		bonus += float64(20-rank) * 0.020
	}
	extra := [5]float64{0.20, 0.12, 0.09, 0.06, 0.02}
	if rank >= 0 && rank < len(extra) {
		bonus += extra[rank]
	}
	return bonus
}

// CompletedPoints composes a raw distribution fraction d (in [0,1]) and a
// 0-based rank into the final points total awarded to the player.
func CompletedPoints(tier int, pro bool, rank int, d float64) float64 {
	forTier := ForTier(tier, pro)
	remaining := 10000 - forTier
	forRank := 0.125 * remaining * RankBonus(rank)
	fromDist := 0.875 * remaining * d
	return forTier + forRank + fromDist
}

// ratingDecay is the per-position falloff applied to a player's best
// records when summing them into one aggregate rating: the nth-best record
// (1-based, ordered by points descending) counts for ratingDecay^(n-1) of
// its completed points.
const ratingDecay = 0.975

// RatingComponent is the points package's view of one best-record row
// feeding into a player's aggregate rating.
type RatingComponent struct {
	Tier   int
	Pro    bool
	Rank   int
	Points float64
	N      int
}

// Rating sums a player's best records in one mode into a single aggregate
// rating: each record's completed points, decayed by its position among the
// player's best records overall so a player's first few strong runs
// dominate their rating over their long tail of weaker ones.
func Rating(components []RatingComponent) float64 {
	var total float64
	for _, c := range components {
		decay := math.Pow(ratingDecay, float64(c.N-1))
		total += CompletedPoints(c.Tier, c.Pro, c.Rank-1, c.Points) * decay
	}
	return total
}
