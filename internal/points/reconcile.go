package points

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
	"github.com/cs2kz-api/cs2kz-api/internal/logger"
)

// ScheduleReconciliation registers a nightly sweep that re-diffs
// RecordCounts against live counts, as a belt-and-suspenders safety net
// beyond the worker's own startup check.
func ScheduleReconciliation(c *cron.Cron, db *kzdb.Database, w *Worker) (cron.EntryID, error) {
	return c.AddFunc("0 4 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		diverged, err := db.RecordCountDivergence(ctx)
		if err != nil {
			logger.Points().Error().Err(err).Msg("reconciliation sweep failed")
			return
		}
		for _, filterID := range diverged {
			if err := db.SetFilterPriority(ctx, filterID, 1); err != nil {
				logger.Points().Error().Err(err).Int64("filter_id", filterID).Msg("failed to queue diverged filter")
				continue
			}
		}
		if len(diverged) > 0 {
			logger.Points().Info().Int("filters", len(diverged)).Msg("reconciliation sweep queued diverged filters")
			w.Notify()
		}
	})
}
