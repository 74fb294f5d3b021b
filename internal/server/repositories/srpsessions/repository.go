// Package srpsessions declares the shared store for ephemeral SRP login
// state. The store lives in the database rather than process memory so the
// two login steps may land on different server instances.
package srpsessions

import (
	"context"
	"time"

	"github.com/keyfold/keyfold/internal/server/models"
)

// Repository defines the two atomic operations the login flow needs.
// Replace is last-write-wins per identifier; TakeAndDelete consumes the
// session so a retried or duplicated second step can never succeed twice
// against the same server ephemeral key.
type Repository interface {
	Replace(ctx context.Context, session *models.SRPSession) error

	// TakeAndDelete returns common.ErrResourceNotFound when no session is
	// pending for the identifier.
	TakeAndDelete(ctx context.Context, identifier string) (*models.SRPSession, error)

	// PurgeExpired drops sessions older than maxAge, catching attempts
	// that never reached the second step.
	PurgeExpired(ctx context.Context, maxAge time.Duration) error
}
