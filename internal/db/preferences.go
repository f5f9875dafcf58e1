package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// UpsertPlayerPreferences stores a player's preferences blob, replacing
// whatever was stored before. Called on player-leave, the only event that
// writes preferences back.
func (d *Database) UpsertPlayerPreferences(ctx context.Context, playerID int64, prefs models.Preferences) error {
	blob, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO player_preferences (player_id, preferences) VALUES ($1, $2)
		 ON CONFLICT (player_id) DO UPDATE SET preferences = EXCLUDED.preferences`,
		playerID, blob)
	return err
}

// PlayerPreferences loads a player's stored preferences, or ErrNotFound if
// none have ever been persisted (a player who has never left a server with
// this plugin version).
func (d *Database) PlayerPreferences(ctx context.Context, playerID int64) (models.Preferences, error) {
	var blob []byte
	err := d.db.QueryRowContext(ctx, `SELECT preferences FROM player_preferences WHERE player_id = $1`, playerID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var prefs models.Preferences
	if err := json.Unmarshal(blob, &prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}
