package models

import "time"

// Mode is a course filter's movement ruleset.
type Mode int

const (
	ModeVanilla Mode = iota + 1
	ModeClassic
)

// FilterState is a course filter's ranked status.
type FilterState int

const (
	FilterUnranked FilterState = -1
	FilterPending  FilterState = 0
	FilterRanked   FilterState = 1
)

// StyleSet is a bit-set of movement styles applied to a run. The source
// Styles enum is not exhaustively specified; only the universally supported
// bit is named here, the rest are opaque and passed through unmodified.
type StyleSet uint32

const (
	StyleNormal   StyleSet = 0
	StyleAutoBhop StyleSet = 1 << 0
)

// CourseFilter is a (course, mode) tuple with two tier values and a ranked
// state. RankedTierCeiling is the maximum tier (inclusive) a filter may carry
// while Ranked; see invariant I4.
const RankedTierCeiling = 8

type CourseFilter struct {
	ID                  int64
	CourseID            int64
	Mode                Mode
	WithTeleportsTier   int
	WithoutTeleportsTier int
	State               FilterState
	Notes               string
}

// RankedTierOK reports whether the filter's lower tier is at most
// RankedTierCeiling, the tier condition invariant I4 places on a Ranked filter.
func (f *CourseFilter) RankedTierOK() bool {
	t := f.WithTeleportsTier
	if f.WithoutTeleportsTier < t {
		t = f.WithoutTeleportsTier
	}
	return t <= RankedTierCeiling
}

// Record is an immutable submission: one player's run of one course filter.
type Record struct {
	ID              int64
	PlayerID        int64
	ServerID        int64
	FilterID        int64
	Styles          StyleSet
	Teleports       int
	Time            float64
	PluginVersionID int64
	SubmittedAt     time.Time
}

// Pro reports whether this record is eligible for the PRO (teleports==0)
// leaderboard.
func (r *Record) Pro() bool {
	return r.Teleports == 0
}

// BestRecord is the per-(filter, player) pointer to the best qualifying
// record for one leaderboard variant, plus its cached points.
type BestRecord struct {
	FilterID               int64
	PlayerID               int64
	RecordID               int64
	Points                 float64
	BasedOnProLeaderboard  bool // only meaningful for the PRO variant
}

// DistributionParams is a fitted Normal-Inverse-Gaussian distribution over a
// leaderboard's completion times, plus the cached survival-function value at
// the current top time.
type DistributionParams struct {
	FilterID int64
	IsPro    bool
	A        float64
	B        float64
	Loc      float64
	Scale    float64
	TopScale float64
}

// RecalcPriority is the in-memory-plus-persisted work queue entry for
// AsyncRecalcWorker: how many unprocessed record arrivals a filter has
// accumulated since it was last recomputed.
type RecalcPriority struct {
	FilterID int64
	Priority uint64
}

// Ban is the minimal shape RecordIngest and the WebSocket player-join
// handler need to answer "is this player currently banned".
type Ban struct {
	ID        int64
	PlayerID  int64
	AdminID   int64
	Reason    string
	ExpiresAt *time.Time
}

// Active reports whether the ban is still in effect.
func (b *Ban) Active(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// PluginVersion gates record submission: a record may only be created
// against a version that exists and is not marked outdated.
type PluginVersion struct {
	ID        int64
	SemVer    string
	IsOutdated bool
}
