package points

import (
	"context"
	"errors"
	"time"

	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
	"github.com/cs2kz-api/cs2kz-api/internal/logger"
	"github.com/cs2kz-api/cs2kz-api/internal/models"
	"github.com/cs2kz-api/cs2kz-api/internal/scripthost"
)

// RecalcHost is the subset of ExternalScriptHost's port AsyncRecalcWorker
// needs: fitting a distribution, evaluating its survival function, and
// integrating its density between two points.
type RecalcHost interface {
	StatisticsHost
	Fit(ctx context.Context, times []float64) (scripthost.FitResult, error)
	Integrate(ctx context.Context, a, b, from, to float64) (value, errEstimate float64, err error)
}

// throttle is the fixed delay between recalculation cycles, preventing
// spin-looping when the queue is busy.
const throttle = 3 * time.Second

// Worker is AsyncRecalcWorker: the background job that refits per-filter
// completion-time distributions and rewrites stored record points.
type Worker struct {
	db   *kzdb.Database
	host RecalcHost
	wake chan struct{}
}

// NewWorker constructs an AsyncRecalcWorker bound to the database and
// statistics host.
func NewWorker(db *kzdb.Database, host RecalcHost) *Worker {
	return &Worker{db: db, host: host, wake: make(chan struct{}, 1)}
}

// Notify wakes the worker promptly instead of waiting for the next tick;
// RecordIngest calls this after enqueuing a recalc hint.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run is the worker's main loop: select over {cancelled, new_work, tick},
// restoring persisted state once on startup and draining the current
// filter before exiting on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.restore(ctx); err != nil {
		logger.Points().Error().Err(err).Msg("failed to restore recalc priority state")
	}

	ticker := time.NewTicker(throttle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-w.wake:
		}

		for {
			processed, err := w.processNext(ctx)
			if err != nil {
				logger.Points().Error().Err(err).Msg("recalc cycle failed")
			}
			if !processed {
				break
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}
	}
}

// restore implements the union of both source restart policies: restore
// the persisted priority map as-is, then bump
// priority for any filter whose persisted record count has diverged from
// the live count, so work is never silently lost across a restart.
func (w *Worker) restore(ctx context.Context) error {
	priorities, err := w.db.PriorityMap(ctx)
	if err != nil {
		return err
	}
	logger.Points().Info().Int("pending_filters", len(priorities)).Msg("restored recalc priority map")

	diverged, err := w.db.RecordCountDivergence(ctx)
	if err != nil {
		return err
	}
	for _, filterID := range diverged {
		if err := w.db.SetFilterPriority(ctx, filterID, 1); err != nil {
			return err
		}
	}
	if len(diverged) > 0 {
		logger.Points().Info().Int("filters", len(diverged)).Msg("queued filters with diverged record counts")
	}
	return nil
}

// processNext pops and fully processes the highest-priority filter. Returns
// false if the queue was empty.
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	filterID, ok, err := w.db.PopHighestPriorityFilter(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return true, w.processFilter(context.WithoutCancel(ctx), filterID)
}

// processFilter implements the five-step per-filter recalculation procedure.
func (w *Worker) processFilter(ctx context.Context, filterID int64) error {
	filter, err := w.db.CourseFilter(ctx, filterID)
	if err != nil {
		return err
	}

	nub, err := w.db.Leaderboard(ctx, filterID)
	if err != nil {
		return err
	}

	var pro []kzdb.LeaderboardEntry
	for _, e := range nub {
		if e.Teleports == 0 {
			pro = append(pro, e)
		}
	}

	nubUpdates, err := w.recalcVariant(ctx, filterID, filter.WithTeleportsTier, nub, false)
	if err != nil {
		return err
	}

	var proUpdates []kzdb.BestRecordUpdate
	if len(pro) > 0 {
		nubPhantom := make(map[int64]float64, len(nubUpdates))
		for _, u := range nubUpdates {
			nubPhantom[u.RecordID] = u.Points
		}

		raw, err := w.recalcVariant(ctx, filterID, filter.WithoutTeleportsTier, pro, true)
		if err != nil {
			return err
		}

		proUpdates = make([]kzdb.BestRecordUpdate, 0, len(raw))
		for _, u := range raw {
			phantom := nubPhantom[u.RecordID]
			basedOnPro := u.Points >= phantom
			points := u.Points
			if phantom > points {
				points = phantom
			}
			proUpdates = append(proUpdates, kzdb.BestRecordUpdate{
				FilterID:              filterID,
				PlayerID:              u.PlayerID,
				RecordID:              u.RecordID,
				Points:                points,
				BasedOnProLeaderboard: basedOnPro,
			})
		}
	}

	tx, err := w.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := w.db.UpsertBestNubRecordsBulk(ctx, tx, nubUpdates); err != nil {
		return err
	}
	if err := w.db.UpsertBestProRecordsBulk(ctx, tx, proUpdates); err != nil {
		return err
	}
	if err := w.db.SyncRecordCount(ctx, tx, filterID); err != nil {
		return err
	}
	return tx.Commit()
}

// recalcVariant fits a distribution to one leaderboard variant and computes
// each entry's best-record points (minus the PRO phantom-points merge,
// handled by the caller).
func (w *Worker) recalcVariant(ctx context.Context, filterID int64, tier int, entries []kzdb.LeaderboardEntry, pro bool) ([]kzdb.BestRecordUpdate, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	times := make([]float64, len(entries))
	for i, e := range entries {
		times[i] = e.Time
	}

	fit, err := w.host.Fit(ctx, times)
	if errors.Is(err, scripthost.ErrCalculatorUnavailable) {
		logger.Points().Warn().Int64("filter_id", filterID).Msg("statistics host unavailable, skipping recalc cycle")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	topScale, err := w.host.SF(ctx, fit, times[0])
	if err != nil {
		return nil, err
	}

	best := bestByPlayer(entries)

	updates := make([]kzdb.BestRecordUpdate, 0, len(best))
	// prevScaled/prevPoints carry the *raw*, un-normalized distribution points
	// from the previous entry in the chain (SF scale, not yet divided by
	// topScale), matching from_dist's dist_points_so_far recurrence: each
	// entry's raw points are the previous entry's raw points minus the pdf
	// integral between them, not a fresh SF evaluation.
	var prevScaled, prevPoints float64
	for rank, e := range entries {
		if best[e.PlayerID].RecordID != e.RecordID {
			continue // not this player's best run on this variant
		}

		var d float64
		if len(entries) <= SLT {
			// At or below the small-leaderboard threshold the whole recurrence is
			// skipped; SmallLeaderboardPoints is already normalized to [0,1]
			// and prevScaled/prevPoints stay untouched.
			d = SmallLeaderboardPoints(tier, times[0], e.Time)
		} else {
			var raw float64
			switch {
			case rank == 0:
				raw = topScale
			default:
				scaled := (e.Time - fit.Loc) / fit.Scale
				if scaled == prevScaled {
					raw = prevPoints
				} else {
					value, _, err := w.host.Integrate(ctx, fit.A, fit.B, prevScaled, scaled)
					if errors.Is(err, scripthost.ErrCalculatorUnavailable) {
						logger.Points().Warn().Int64("filter_id", filterID).Msg("statistics host unavailable mid-recalc, stopping cycle")
						return updates, nil
					}
					if err != nil {
						return nil, err
					}
					raw = prevPoints - value
				}
			}
			prevScaled, prevPoints = (e.Time-fit.Loc)/fit.Scale, raw

			d = raw
			if topScale != 0 {
				d = raw / topScale
			}
		}
		if d > 1 {
			d = 1
		}
		if d < 0 {
			d = 0
		}

		updates = append(updates, kzdb.BestRecordUpdate{
			FilterID: filterID,
			PlayerID: e.PlayerID,
			RecordID: e.RecordID,
			Points:   d,
		})
	}

	tx, err := w.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	params := &models.DistributionParams{
		FilterID: filterID,
		IsPro:    pro,
		A:        fit.A,
		B:        fit.B,
		Loc:      fit.Loc,
		Scale:    fit.Scale,
		TopScale: topScale,
	}
	if err := w.db.UpsertDistributionParams(ctx, tx, params); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return updates, nil
}

func bestByPlayer(entries []kzdb.LeaderboardEntry) map[int64]kzdb.LeaderboardEntry {
	best := make(map[int64]kzdb.LeaderboardEntry)
	for _, e := range entries {
		if cur, ok := best[e.PlayerID]; !ok || e.Time < cur.Time {
			best[e.PlayerID] = e
		}
	}
	return best
}
