package points

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForTier_RankedRange(t *testing.T) {
	assert.Equal(t, 500.0, ForTier(1, false))
	assert.Equal(t, 9500.0, ForTier(8, false))
	assert.Equal(t, 1000.0, ForTier(1, true))
	assert.Equal(t, 9550.0, ForTier(8, true))
}

func TestForTier_OutOfRangeIsZero(t *testing.T) {
	assert.Equal(t, 0.0, ForTier(0, false))
	assert.Equal(t, 0.0, ForTier(9, false))
	assert.Equal(t, 0.0, ForTier(-1, true))
}

func TestSmallLeaderboardPoints_FastestTimeIsOne(t *testing.T) {
	assert.Equal(t, 1.0, SmallLeaderboardPoints(5, 10.0, 10.0))
	assert.Equal(t, 1.0, SmallLeaderboardPoints(5, 10.0, 9.0), "a time at or below topTime always yields 1")
}

func TestSmallLeaderboardPoints_DecreasesAsTimeGrowsPastTop(t *testing.T) {
	top := 30.0
	fast := SmallLeaderboardPoints(4, top, 31.0)
	slow := SmallLeaderboardPoints(4, top, 60.0)
	assert.Greater(t, fast, slow, "a time further from the top time earns fewer points")
	assert.True(t, slow >= 0 && slow <= 1)
}

func TestRankBonus_MonotonicDecreasing(t *testing.T) {
	prev := RankBonus(0)
	for r := 1; r < 100; r++ {
		cur := RankBonus(r)
		assert.LessOrEqual(t, cur, prev, "rank bonus must not increase as rank worsens")
		prev = cur
	}
}

func TestRankBonus_PastHundredIsZero(t *testing.T) {
	assert.Equal(t, 0.0, RankBonus(100))
	assert.Equal(t, 0.0, RankBonus(500))
}

func TestCompletedPoints_MonotonicInDistributionFraction(t *testing.T) {
	low := CompletedPoints(3, false, 10, 0.1)
	high := CompletedPoints(3, false, 10, 0.9)
	assert.Less(t, low, high)
}

func TestCompletedPoints_NeverExceedsTenThousand(t *testing.T) {
	// Rank 0 (the maximum possible bonus) with a perfect distribution
	// fraction is the ceiling case for any tier.
	for tier := 1; tier <= 8; tier++ {
		for _, pro := range []bool{false, true} {
			pts := CompletedPoints(tier, pro, 0, 1)
			assert.LessOrEqual(t, pts, 10000.0+1e-9)
		}
	}
}

func TestCompletedPoints_FloorIsForTier(t *testing.T) {
	// The worst possible rank bonus and a zero distribution fraction should
	// leave the player with (at least close to) the tier's base points.
	pts := CompletedPoints(4, false, 100, 0)
	assert.InDelta(t, ForTier(4, false), pts, 1e-9)
}

func TestRating_DecaysByPosition(t *testing.T) {
	first := RatingComponent{Tier: 3, Pro: false, Rank: 1, Points: 0.8, N: 1}
	second := RatingComponent{Tier: 3, Pro: false, Rank: 1, Points: 0.8, N: 2}

	want := CompletedPoints(3, false, 0, 0.8) * (1 + ratingDecay)
	got := Rating([]RatingComponent{first, second})
	assert.InDelta(t, want, got, 1e-9)
}

func TestRating_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Rating(nil))
}
