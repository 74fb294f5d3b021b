// Package tokenversions declares the repository contract for the per-device
// revocation counter rows backing the token version ledger.
package tokenversions

import (
	"context"

	"github.com/keyfold/keyfold/internal/server/models"
)

// Repository defines operations over token-version rows. Counter bumps are
// single-statement atomic increments, never read-modify-write, so a
// concurrent logout and refresh cannot race into an inconsistent state.
type Repository interface {
	// FindOrCreate returns the row for the exact (user, ip, userAgent)
	// triple, creating it with zero counters on first login from a device.
	FindOrCreate(ctx context.Context, userID, ip, userAgent string) (*models.TokenVersion, error)

	// GetByID returns common.ErrResourceNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.TokenVersion, error)

	// Touch updates last_used; losing a touch under a race is acceptable.
	Touch(ctx context.Context, id string) error

	// Revoke atomically increments both counters by one, invalidating every
	// token minted against the old values.
	Revoke(ctx context.Context, id string) error

	// RevokeAllForUser bumps the counters on every row belonging to the
	// user (password change, suspected account compromise).
	RevokeAllForUser(ctx context.Context, userID string) error
}
