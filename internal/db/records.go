package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// BeginTx starts the single transaction RecordIngest performs all of its
// writes within (spec.md §4.3: "All writes for one submission occur in a
// single database transaction").
func (d *Database) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return d.db.BeginTx(ctx, nil)
}

// InsertRecord inserts a new immutable record row and returns its id.
func (d *Database) InsertRecord(ctx context.Context, tx *sql.Tx, r *models.Record) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO records (player_id, server_id, filter_id, styles, teleports, time, plugin_version_id, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, submitted_at`,
		r.PlayerID, r.ServerID, r.FilterID, uint32(r.Styles), r.Teleports, r.Time, r.PluginVersionID, r.SubmittedAt,
	).Scan(&id, &r.SubmittedAt)
	return id, err
}

// BestRecord loads the cached best-record pointer for (filter, player) on
// one leaderboard variant. Returns ErrNotFound if none exists yet.
func (d *Database) BestRecord(ctx context.Context, tx *sql.Tx, filterID, playerID int64, pro bool) (*models.BestRecord, error) {
	table := "best_nub_records"
	if pro {
		table = "best_pro_records"
	}
	query := "SELECT filter_id, player_id, record_id, points FROM " + table + " WHERE filter_id = $1 AND player_id = $2"
	if pro {
		query = "SELECT filter_id, player_id, record_id, points, based_on_pro_leaderboard FROM " + table + " WHERE filter_id = $1 AND player_id = $2"
	}

	row := tx.QueryRowContext(ctx, query, filterID, playerID)
	var b models.BestRecord
	var err error
	if pro {
		err = row.Scan(&b.FilterID, &b.PlayerID, &b.RecordID, &b.Points, &b.BasedOnProLeaderboard)
	} else {
		err = row.Scan(&b.FilterID, &b.PlayerID, &b.RecordID, &b.Points)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// RecordTime returns the time of a given record, used to compare a
// candidate best-record replacement against the one it might supersede.
func (d *Database) RecordTime(ctx context.Context, tx *sql.Tx, recordID int64) (float64, error) {
	var t float64
	err := tx.QueryRowContext(ctx, `SELECT time FROM records WHERE id = $1`, recordID).Scan(&t)
	return t, err
}

// UpsertBestNubRecord replaces the NUB best-record pointer for (filter, player).
func (d *Database) UpsertBestNubRecord(ctx context.Context, tx *sql.Tx, b *models.BestRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO best_nub_records (filter_id, player_id, record_id, points)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (filter_id, player_id) DO UPDATE SET record_id = EXCLUDED.record_id, points = EXCLUDED.points`,
		b.FilterID, b.PlayerID, b.RecordID, b.Points)
	return err
}

// UpsertBestProRecord replaces the PRO best-record pointer for (filter, player).
func (d *Database) UpsertBestProRecord(ctx context.Context, tx *sql.Tx, b *models.BestRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO best_pro_records (filter_id, player_id, record_id, points, based_on_pro_leaderboard)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (filter_id, player_id) DO UPDATE SET record_id = EXCLUDED.record_id, points = EXCLUDED.points, based_on_pro_leaderboard = EXCLUDED.based_on_pro_leaderboard`,
		b.FilterID, b.PlayerID, b.RecordID, b.Points, b.BasedOnProLeaderboard)
	return err
}

// LeaderboardRank returns the record's 1-based position among records on
// this filter ordered by (time ASC, submitted_at ASC), and the current
// leaderboard size (spec.md §4.3 rank derivation).
func (d *Database) LeaderboardRank(ctx context.Context, tx *sql.Tx, filterID int64, t float64, submittedAt time.Time, pro bool) (rank int, size int, err error) {
	proClause := ""
	if pro {
		proClause = " AND teleports = 0"
	}

	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE filter_id = $1`+proClause, filterID).Scan(&size)
	if err != nil {
		return 0, 0, err
	}

	var ahead int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE filter_id = $1`+proClause+
			` AND (time < $2 OR (time = $2 AND submitted_at < $3))`, filterID, t, submittedAt).Scan(&ahead)
	if err != nil {
		return 0, 0, err
	}
	return ahead + 1, size, nil
}

// TopTime returns the current fastest time on the filter's leaderboard, or
// sql.ErrNoRows-derived ErrNotFound if the leaderboard is empty.
func (d *Database) TopTime(ctx context.Context, tx *sql.Tx, filterID int64, pro bool) (float64, error) {
	proClause := ""
	if pro {
		proClause = " AND teleports = 0"
	}
	var t float64
	err := tx.QueryRowContext(ctx,
		`SELECT time FROM records WHERE filter_id = $1`+proClause+` ORDER BY time ASC, submitted_at ASC LIMIT 1`,
		filterID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return t, err
}

// GetDistributionParams loads the cached fit for a (filter, variant) pair.
func (d *Database) GetDistributionParams(ctx context.Context, tx *sql.Tx, filterID int64, pro bool) (*models.DistributionParams, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT filter_id, is_pro, a, b, loc, scale, top_scale FROM point_distribution_data WHERE filter_id = $1 AND is_pro = $2`,
		filterID, pro)
	var p models.DistributionParams
	if err := row.Scan(&p.FilterID, &p.IsPro, &p.A, &p.B, &p.Loc, &p.Scale, &p.TopScale); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpsertDistributionParams persists a freshly-fit distribution.
func (d *Database) UpsertDistributionParams(ctx context.Context, tx *sql.Tx, p *models.DistributionParams) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO point_distribution_data (filter_id, is_pro, a, b, loc, scale, top_scale)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (filter_id, is_pro) DO UPDATE SET a=EXCLUDED.a, b=EXCLUDED.b, loc=EXCLUDED.loc, scale=EXCLUDED.scale, top_scale=EXCLUDED.top_scale`,
		p.FilterID, p.IsPro, p.A, p.B, p.Loc, p.Scale, p.TopScale)
	return err
}

// IncrementFilterPriority bumps a filter's recalc priority by one, creating
// the row if this is its first pending record.
func (d *Database) IncrementFilterPriority(ctx context.Context, tx *sql.Tx, filterID int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO filters_to_recalculate (filter_id, priority) VALUES ($1, 1)
		 ON CONFLICT (filter_id) DO UPDATE SET priority = filters_to_recalculate.priority + 1`,
		filterID)
	return err
}

// CourseFilter loads a filter row by id.
func (d *Database) CourseFilter(ctx context.Context, id int64) (*models.CourseFilter, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, course_id, mode, with_teleports_tier, without_teleports_tier, state, notes FROM course_filters WHERE id = $1`, id)
	var f models.CourseFilter
	if err := row.Scan(&f.ID, &f.CourseID, &f.Mode, &f.WithTeleportsTier, &f.WithoutTeleportsTier, &f.State, &f.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// PluginVersion loads a plugin version row by id.
func (d *Database) PluginVersion(ctx context.Context, id int64) (*models.PluginVersion, error) {
	row := d.db.QueryRowContext(ctx, `SELECT id, semver, is_outdated FROM plugin_versions WHERE id = $1`, id)
	var v models.PluginVersion
	if err := row.Scan(&v.ID, &v.SemVer, &v.IsOutdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// RecordSummary is one row of a records[] listing returned to a game server
// from want-world-records or want-player-records.
type RecordSummary struct {
	PlayerID    int64
	Time        float64
	Teleports   int
	Points      float64
	SubmittedAt time.Time
}

// worldRecordsLimit bounds how many rows a want-world-records reply
// carries; a game server's leaderboard display shows a top board, not the
// entire table.
const worldRecordsLimit = 100

// WorldRecords returns the top of a filter's NUB leaderboard.
func (d *Database) WorldRecords(ctx context.Context, filterID int64) ([]RecordSummary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.player_id, r.time, r.teleports, b.points, r.submitted_at
		FROM records r
		JOIN best_nub_records b ON b.filter_id = r.filter_id AND b.player_id = r.player_id AND b.record_id = r.id
		WHERE r.filter_id = $1
		ORDER BY r.time ASC, r.submitted_at ASC
		LIMIT $2`, filterID, worldRecordsLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordSummary
	for rows.Next() {
		var s RecordSummary
		if err := rows.Scan(&s.PlayerID, &s.Time, &s.Teleports, &s.Points, &s.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PlayerRecords returns a single player's best NUB and (if any) best PRO
// record on a filter, answering want-player-records.
func (d *Database) PlayerRecords(ctx context.Context, filterID, playerID int64) ([]RecordSummary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.player_id, r.time, r.teleports, b.points, r.submitted_at
		FROM records r
		JOIN best_nub_records b ON b.filter_id = r.filter_id AND b.player_id = r.player_id AND b.record_id = r.id
		WHERE r.filter_id = $1 AND r.player_id = $2
		UNION ALL
		SELECT r.player_id, r.time, r.teleports, b.points, r.submitted_at
		FROM records r
		JOIN best_pro_records b ON b.filter_id = r.filter_id AND b.player_id = r.player_id AND b.record_id = r.id
		WHERE r.filter_id = $1 AND r.player_id = $2`, filterID, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordSummary
	for rows.Next() {
		var s RecordSummary
		if err := rows.Scan(&s.PlayerID, &s.Time, &s.Teleports, &s.Points, &s.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PluginVersionBySemVer resolves the cs2kz-metamod version a server reports
// in its hello handshake to the plugin_version_id that gates record
// submission.
func (d *Database) PluginVersionBySemVer(ctx context.Context, semver string) (*models.PluginVersion, error) {
	row := d.db.QueryRowContext(ctx, `SELECT id, semver, is_outdated FROM plugin_versions WHERE semver = $1`, semver)
	var v models.PluginVersion
	if err := row.Scan(&v.ID, &v.SemVer, &v.IsOutdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// RatingComponent is one of a player's best records (NUB or PRO) feeding
// into their aggregate rating: its tier, its stored distribution fraction,
// its 1-based rank on that filter's own leaderboard, and its 1-based
// position (n) among all of the player's best records, NUB and PRO
// combined, ordered by points descending.
type RatingComponent struct {
	Tier   int
	Pro    bool
	Rank   int
	Points float64
	N      int
}

// PlayerRatingComponents loads every best-record row that contributes to a
// player's aggregate rating in one mode: the NUB and PRO best records across
// every filter of that mode, each tagged with its own per-filter rank and
// its points-descending position among the player's entire best-record set.
func (d *Database) PlayerRatingComponents(ctx context.Context, tx *sql.Tx, playerID int64, mode models.Mode) ([]RatingComponent, error) {
	rows, err := tx.QueryContext(ctx, `
		WITH ranked_points AS (
			SELECT record_id, points,
			       ROW_NUMBER() OVER (ORDER BY points DESC) AS n
			FROM (
				SELECT record_id, points FROM best_nub_records WHERE player_id = $1
				UNION ALL
				SELECT record_id, points FROM best_pro_records WHERE player_id = $1
			) combined
		),
		nub_records AS (
			SELECT record_id, tier, rank FROM (
				SELECT r.id AS record_id, r.player_id, cf.mode, cf.with_teleports_tier AS tier,
				       RANK() OVER (PARTITION BY r.filter_id ORDER BY r.time ASC, r.submitted_at ASC) AS rank
				FROM records r
				JOIN best_nub_records b ON b.record_id = r.id
				JOIN course_filters cf ON cf.id = r.filter_id
			) ranked
			WHERE player_id = $1 AND mode = $2
		),
		pro_records AS (
			SELECT record_id, tier, rank FROM (
				SELECT r.id AS record_id, r.player_id, cf.mode, cf.without_teleports_tier AS tier,
				       RANK() OVER (PARTITION BY r.filter_id ORDER BY r.time ASC, r.submitted_at ASC) AS rank
				FROM records r
				JOIN best_pro_records b ON b.record_id = r.id
				JOIN course_filters cf ON cf.id = r.filter_id
			) ranked
			WHERE player_id = $1 AND mode = $2
		)
		SELECT nub_records.tier, false, nub_records.rank, ranked_points.points, ranked_points.n
		FROM nub_records JOIN ranked_points ON ranked_points.record_id = nub_records.record_id
		UNION ALL
		SELECT pro_records.tier, true, pro_records.rank, ranked_points.points, ranked_points.n
		FROM pro_records JOIN ranked_points ON ranked_points.record_id = pro_records.record_id`,
		playerID, mode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RatingComponent
	for rows.Next() {
		var c RatingComponent
		if err := rows.Scan(&c.Tier, &c.Pro, &c.Rank, &c.Points, &c.N); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// IsPlayerBanned reports whether a player currently has an active ban,
// answering the WebSocket player-join handler's is_banned field.
func (d *Database) IsPlayerBanned(ctx context.Context, playerID int64) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bans b WHERE b.player_id = $1 AND (b.expires_at IS NULL OR b.expires_at > now())
		 AND NOT EXISTS (SELECT 1 FROM unbans u WHERE u.ban_id = b.id)`, playerID).Scan(&count)
	return count > 0, err
}
