package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("not found")

// InsertSession creates a new login session row.
func (d *Database) InsertSession(ctx context.Context, s *models.UserSession) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO login_sessions (id, user_id, granted_permissions, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, uint64(s.GrantedPermissions), s.CreatedAt, s.ExpiresAt)
	return err
}

// GetSession loads a session by id. Returns ErrNotFound if no row exists;
// the caller is responsible for checking expiry (I5: reads under a
// transaction must observe the same truth, so expiry is a property of the
// row, not of this query).
func (d *Database) GetSession(ctx context.Context, id string) (*models.UserSession, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, user_id, granted_permissions, created_at, expires_at FROM login_sessions WHERE id = $1`, id)

	var s models.UserSession
	var perms uint64
	if err := row.Scan(&s.ID, &s.UserID, &perms, &s.CreatedAt, &s.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.GrantedPermissions = models.Permission(perms)
	return &s, nil
}

// ExtendSession updates a session's expiry in place.
func (d *Database) ExtendSession(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE login_sessions SET expires_at = $1 WHERE id = $2`, expiresAt, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession revokes a single session.
func (d *Database) DeleteSession(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE id = $1`, id)
	return err
}

// DeleteUserSessions revokes every session belonging to a user.
func (d *Database) DeleteUserSessions(ctx context.Context, userID int64) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM login_sessions WHERE user_id = $1`, userID)
	return err
}
