package points

import (
	"context"
	"database/sql"
	"errors"
	"math"

	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
	"github.com/cs2kz-api/cs2kz-api/internal/logger"
	"github.com/cs2kz-api/cs2kz-api/internal/scripthost"
)

// StatisticsHost is the subset of ExternalScriptHost's port SyncPointAssigner
// needs. Declared here so tests can substitute a stub instead of spawning a
// real subprocess.
type StatisticsHost interface {
	SF(ctx context.Context, params scripthost.FitResult, x float64) (float64, error)
}

// Assigner is SyncPointAssigner: the in-request point computation performed
// once per new record, inside RecordIngest's transaction.
type Assigner struct {
	db   *kzdb.Database
	host StatisticsHost
}

// NewAssigner constructs a SyncPointAssigner bound to the database and the
// external statistics host.
func NewAssigner(db *kzdb.Database, host StatisticsHost) *Assigner {
	return &Assigner{db: db, host: host}
}

// Assign computes the raw distribution fraction in [0,1] for a newly
// submitted time on a filter/variant, per spec.md §4.4.1. leaderboardSize
// includes the new record itself (the caller queries after insert).
//
// If the statistics host is unavailable, this falls back to the
// small-leaderboard formula and still returns a usable value: RecordIngest
// must accept the record regardless (spec.md §4.5).
func (a *Assigner) Assign(ctx context.Context, tx *sql.Tx, filterID int64, tier int, leaderboardSize int, t float64, pro bool) (float64, error) {
	if leaderboardSize <= SLT {
		return a.smallLeaderboardFallback(ctx, tx, filterID, tier, t, pro)
	}

	params, err := a.db.GetDistributionParams(ctx, tx, filterID, pro)
	if errors.Is(err, kzdb.ErrNotFound) {
		// New filter or not yet fit: fall back to the small-leaderboard
		// formula with topTime=time (spec.md §4.4.1, third bullet).
		return SmallLeaderboardPoints(tier, t, t), nil
	}
	if err != nil {
		return 0, err
	}

	sf, err := a.host.SF(ctx, scripthost.FitResult{A: params.A, B: params.B, Loc: params.Loc, Scale: params.Scale}, t)
	if errors.Is(err, scripthost.ErrCalculatorUnavailable) {
		logger.Points().Warn().Int64("filter_id", filterID).Msg("statistics host unavailable, falling back to small-leaderboard points")
		return a.smallLeaderboardFallback(ctx, tx, filterID, tier, t, pro)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(sf) {
		logger.Points().Warn().Int64("filter_id", filterID).Msg("survival function returned NaN, treating as 0")
		sf = 0
	}
	if params.TopScale == 0 {
		return 0, nil
	}
	return math.Min(sf/params.TopScale, 1), nil
}

func (a *Assigner) smallLeaderboardFallback(ctx context.Context, tx *sql.Tx, filterID int64, tier int, t float64, pro bool) (float64, error) {
	topTime, err := a.db.TopTime(ctx, tx, filterID, pro)
	if errors.Is(err, kzdb.ErrNotFound) {
		topTime = t
	} else if err != nil {
		return 0, err
	}
	if topTime > t {
		topTime = t
	}
	return SmallLeaderboardPoints(tier, topTime, t), nil
}
