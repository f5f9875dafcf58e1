package db

import (
	"context"

	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// ApprovedServers lists every server with a non-null approved_at, the
// population the A2S poller sweeps. Unapproved servers have no business
// being queried for live game state.
func (d *Database) ApprovedServers(ctx context.Context) ([]models.ServerAddress, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, host, port
		FROM servers
		WHERE approved_at IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ServerAddress
	for rows.Next() {
		var s models.ServerAddress
		if err := rows.Scan(&s.ID, &s.Host, &s.Port); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
