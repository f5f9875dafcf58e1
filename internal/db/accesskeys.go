package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// InsertAccessKey creates a new access key row, storing only the bcrypt
// hash of the secret; the caller retains the plaintext to hand back once.
func (d *Database) InsertAccessKey(ctx context.Context, serverID int64, secretHash string, expiresAt *time.Time) (int64, error) {
	var id int64
	err := d.db.QueryRowContext(ctx,
		`INSERT INTO access_keys (server_id, secret_hash, expires_at) VALUES ($1, $2, $3) RETURNING id`,
		serverID, secretHash, expiresAt).Scan(&id)
	return id, err
}

// AccessKeysForServer returns every non-revoked key hash associated with a
// server, newest first, so the caller can bcrypt-compare the presented
// secret against each until one matches.
func (d *Database) AccessKeysForServer(ctx context.Context, serverID int64) ([]models.AccessKey, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, server_id, secret_hash, expires_at FROM access_keys WHERE server_id = $1 ORDER BY id DESC`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.AccessKey
	for rows.Next() {
		var k models.AccessKey
		if err := rows.Scan(&k.ID, &k.ServerID, &k.Secret, &k.ExpiresAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// AllAccessKeys returns every access key; the WebSocket upgrade handler
// scans these to find the owning server for a presented bearer secret.
func (d *Database) AllAccessKeys(ctx context.Context) ([]models.AccessKey, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, server_id, secret_hash, expires_at FROM access_keys`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.AccessKey
	for rows.Next() {
		var k models.AccessKey
		if err := rows.Scan(&k.ID, &k.ServerID, &k.Secret, &k.ExpiresAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteAccessKey revokes a key outright (admin rotation/deletion).
func (d *Database) DeleteAccessKey(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM access_keys WHERE id = $1`, id)
	return err
}

// ServerOwner returns the owning player id for a server, used by the
// IsServerOwner Authorizer.
func (d *Database) ServerOwner(ctx context.Context, serverID int64) (int64, error) {
	var ownerID int64
	err := d.db.QueryRowContext(ctx, `SELECT owner_id FROM servers WHERE id = $1`, serverID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return ownerID, err
}
