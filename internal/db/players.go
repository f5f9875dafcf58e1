package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// UpsertPlayer records a player's current Steam display name, inserting a
// fresh row with no granted permissions on first sight.
func (d *Database) UpsertPlayer(ctx context.Context, id int64, name string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO players (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		id, name)
	return err
}

// PlayerPermissions returns the permission bit-set to stamp onto a new
// session at login.
func (d *Database) PlayerPermissions(ctx context.Context, id int64) (models.Permission, error) {
	var perms uint64
	err := d.db.QueryRowContext(ctx, `SELECT permissions FROM players WHERE id = $1`, id).Scan(&perms)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PermissionNone, ErrNotFound
	}
	return models.Permission(perms), err
}
