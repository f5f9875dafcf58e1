package db

import (
	"context"
	"database/sql"
)

// LeaderboardEntry is one row of a filter's NUB leaderboard, ordered by
// (time ASC, submitted_at ASC), as consumed by AsyncRecalcWorker.
type LeaderboardEntry struct {
	RecordID  int64
	PlayerID  int64
	Time      float64
	Teleports int
}

// Leaderboard loads every record on a filter ordered for recalculation.
func (d *Database) Leaderboard(ctx context.Context, filterID int64) ([]LeaderboardEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, player_id, time, teleports FROM records WHERE filter_id = $1 ORDER BY time ASC, submitted_at ASC`,
		filterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.RecordID, &e.PlayerID, &e.Time, &e.Teleports); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PopHighestPriorityFilter selects and clears the highest-priority pending
// filter; ties are broken by lowest filter_id (giving fair
// progress as spec.md §4.4.2 requires). Returns (0, false, nil) if the
// queue is empty.
func (d *Database) PopHighestPriorityFilter(ctx context.Context) (filterID int64, ok bool, err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT filter_id FROM filters_to_recalculate WHERE priority > 0 ORDER BY priority DESC, filter_id ASC LIMIT 1 FOR UPDATE SKIP LOCKED`)
	if err := row.Scan(&filterID); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE filters_to_recalculate SET priority = 0 WHERE filter_id = $1`, filterID); err != nil {
		return 0, false, err
	}

	return filterID, true, tx.Commit()
}

// PriorityMap restores the full persisted priority queue on worker startup.
func (d *Database) PriorityMap(ctx context.Context) (map[int64]uint64, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT filter_id, priority FROM filters_to_recalculate WHERE priority > 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]uint64)
	for rows.Next() {
		var id int64
		var p uint64
		if err := rows.Scan(&id, &p); err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, rows.Err()
}

// RecordCountDivergence diffs the persisted per-filter record counts
// against the live counts, returning the filters whose counts disagree
// (spec.md §9's count-divergence reconciliation on worker startup). Only
// filters that still have at least one record are compared; a filter whose
// records have all been deleted is not returned.
func (d *Database) RecordCountDivergence(ctx context.Context) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT live.filter_id FROM (
			SELECT filter_id, COUNT(*) AS live_count FROM records GROUP BY filter_id
		) live
		LEFT JOIN record_counts rc ON rc.filter_id = live.filter_id
		WHERE rc.count IS NULL OR rc.count <> live.live_count`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SyncRecordCount writes the current live record count for a filter, so the
// next startup's divergence check has an accurate baseline.
func (d *Database) SyncRecordCount(ctx context.Context, tx *sql.Tx, filterID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO record_counts (filter_id, count)
		SELECT $1, COUNT(*) FROM records WHERE filter_id = $1
		ON CONFLICT (filter_id) DO UPDATE SET count = EXCLUDED.count`, filterID)
	return err
}

// SetFilterPriority adds priority to a filter's pending priority, inserting
// the row if the filter has none yet (used to persist an
// in-memory bump discovered outside IncrementFilterPriority's upsert path,
// e.g. the startup reconciliation sweep).
func (d *Database) SetFilterPriority(ctx context.Context, filterID int64, priority uint64) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO filters_to_recalculate (filter_id, priority) VALUES ($1, $2)
		ON CONFLICT (filter_id) DO UPDATE SET priority = filters_to_recalculate.priority + EXCLUDED.priority`,
		filterID, priority)
	return err
}

// BestRecordUpdate is one row of a bulk points rewrite produced by a
// recalculation pass.
type BestRecordUpdate struct {
	FilterID              int64
	PlayerID              int64
	RecordID              int64
	Points                float64
	BasedOnProLeaderboard bool
}

// bulkChunkSize bounds how many rows go into a single upsert statement, per
// spec.md §4.4.2 step 5 ("bounded chunk size ... to keep individual queries
// short").
const bulkChunkSize = 1000

// UpsertBestNubRecordsBulk rewrites the NUB best-record table for a filter
// in fixed-size chunks within the given transaction.
func (d *Database) UpsertBestNubRecordsBulk(ctx context.Context, tx *sql.Tx, rows []BestRecordUpdate) error {
	for start := 0; start < len(rows); start += bulkChunkSize {
		end := start + bulkChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		for _, r := range rows[start:end] {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO best_nub_records (filter_id, player_id, record_id, points)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (filter_id, player_id) DO UPDATE SET record_id = EXCLUDED.record_id, points = EXCLUDED.points`,
				r.FilterID, r.PlayerID, r.RecordID, r.Points); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpsertBestProRecordsBulk rewrites the PRO best-record table for a filter
// in fixed-size chunks within the given transaction.
func (d *Database) UpsertBestProRecordsBulk(ctx context.Context, tx *sql.Tx, rows []BestRecordUpdate) error {
	for start := 0; start < len(rows); start += bulkChunkSize {
		end := start + bulkChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		for _, r := range rows[start:end] {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO best_pro_records (filter_id, player_id, record_id, points, based_on_pro_leaderboard)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (filter_id, player_id) DO UPDATE SET record_id = EXCLUDED.record_id, points = EXCLUDED.points, based_on_pro_leaderboard = EXCLUDED.based_on_pro_leaderboard`,
				r.FilterID, r.PlayerID, r.RecordID, r.Points, r.BasedOnProLeaderboard); err != nil {
				return err
			}
		}
	}
	return nil
}
