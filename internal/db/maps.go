package db

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// MapByIdentifier resolves want-map-info's `map: id|name` field: a value
// that parses as an integer is tried as an id, otherwise it is looked up by
// name.
func (d *Database) MapByIdentifier(ctx context.Context, ref string) (*models.MapDetails, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return d.mapBy(ctx, "id", id)
	}
	return d.mapBy(ctx, "name", ref)
}

// MapByName resolves a map by its exact name, used at handshake time when a
// server reports the map it is currently hosting.
func (d *Database) MapByName(ctx context.Context, name string) (*models.MapDetails, error) {
	return d.mapBy(ctx, "name", name)
}

func (d *Database) mapBy(ctx context.Context, column string, value any) (*models.MapDetails, error) {
	row := d.db.QueryRowContext(ctx, `SELECT id, name, checksum FROM maps WHERE `+column+` = $1`, value)
	var m models.MapDetails
	if err := row.Scan(&m.ID, &m.Name, &m.Checksum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// PrimaryFilterForMap resolves want-world-records and want-player-records'
// `map_id` field to the course filter whose leaderboard they mean: this
// service's leaderboards are scoped per (course, mode), so the lookup picks
// the map's first course's vanilla-mode filter as its representative
// leaderboard.
func (d *Database) PrimaryFilterForMap(ctx context.Context, mapID int64) (int64, error) {
	var filterID int64
	err := d.db.QueryRowContext(ctx, `
		SELECT cf.id
		FROM course_filters cf
		JOIN courses c ON c.id = cf.course_id
		WHERE c.map_id = $1 AND cf.mode = $2
		ORDER BY c.course_index ASC
		LIMIT 1`, mapID, models.ModeVanilla).Scan(&filterID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return filterID, err
}
