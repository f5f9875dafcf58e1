// This file implements AccessKeyStore: generation, hashing and lookup of the
// long-lived bearer secrets game servers present to upgrade to a WebSocket
// connection.
//
// Secret format:
//   - 64 hexadecimal characters (32 bytes of randomness)
//   - Generated using crypto/rand
//
// Secret storage:
//   - Plaintext handed to the server owner ONCE, at creation or rotation
//   - Bcrypt hash stored in the database; the hash is never exposed again
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
)

const (
	// secretLength is the length of generated access key secrets in bytes.
	secretLength = 32

	// bcryptCost is the cost factor for hashing access key secrets.
	bcryptCost = 12
)

// GenerateSecret generates a cryptographically random 64-character
// hexadecimal access key secret.
func GenerateSecret() (string, error) {
	b := make([]byte, secretLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate access key secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashSecret hashes a plaintext secret for storage.
func HashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash access key secret: %w", err)
	}
	return string(b), nil
}

// ErrInvalidSecret is returned when a presented secret matches no live
// access key.
var ErrInvalidSecret = errors.New("auth: invalid or expired access key")

// AccessKeyStore resolves a bearer secret presented at WebSocket upgrade
// time to the server_id it authenticates.
type AccessKeyStore struct {
	db *kzdb.Database
}

// NewAccessKeyStore constructs an AccessKeyStore bound to the database.
func NewAccessKeyStore(db *kzdb.Database) *AccessKeyStore {
	return &AccessKeyStore{db: db}
}

// Authenticate looks up which server a presented secret belongs to. Because
// only the bcrypt hash is stored, every live key must be compared in turn;
// a revoked, rotated, or expired key is treated identically to an unknown
// one, both collapsing to ErrInvalidSecret.
func (s *AccessKeyStore) Authenticate(ctx context.Context, secret string) (serverID int64, err error) {
	keys, err := s.db.AllAccessKeys(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	for _, k := range keys {
		if k.Expired(now) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(k.Secret), []byte(secret)) == nil {
			return k.ServerID, nil
		}
	}
	return 0, ErrInvalidSecret
}

// Issue generates a new secret for a server, storing only its hash, and
// returns the plaintext for one-time display to the server's owner.
func (s *AccessKeyStore) Issue(ctx context.Context, serverID int64, expiresAt *time.Time) (plaintext string, keyID int64, err error) {
	plaintext, err = GenerateSecret()
	if err != nil {
		return "", 0, err
	}
	hash, err := HashSecret(plaintext)
	if err != nil {
		return "", 0, err
	}
	keyID, err = s.db.InsertAccessKey(ctx, serverID, hash, expiresAt)
	if err != nil {
		return "", 0, err
	}
	return plaintext, keyID, nil
}
