// Package users declares the repository contract for identity records.
package users

import (
	"context"
	"time"

	"github.com/keyfold/keyfold/internal/server/models"
)

// AuthKeys bundles the fields swapped atomically on a password change:
// fresh SRP material plus the re-encrypted private-key envelope.
type AuthKeys struct {
	Salt                []byte
	Verifier            []byte
	EncryptedPrivateKey string
	PrivateKeyIV        string
	PrivateKeyTag       string
	ProtectedKey        string
	ProtectedKeyIV      string
	ProtectedKeyTag     string
	EncryptionVersion   models.EncryptionVersion
}

// Repository defines operations over user records. Lookups used during
// authentication are read-only; mutations happen on signup, password
// change, MFA flows and device tracking.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail returns common.ErrResourceNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)

	UpdateAuthKeys(ctx context.Context, id string, keys *AuthKeys) error

	// AddDevice appends an (ip, user-agent) pair to the seen-device list.
	AddDevice(ctx context.Context, id string, device models.Device) error

	// SetMFACode stores the hashed one-time email code and its deadline;
	// ConsumeMFACode clears it after a verification attempt.
	SetMFACode(ctx context.Context, id string, hash, salt []byte, expiresAt time.Time) error
	GetMFACode(ctx context.Context, id string) (hash, salt []byte, expiresAt time.Time, err error)
	ConsumeMFACode(ctx context.Context, id string) error
}
