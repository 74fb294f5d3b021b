// Package serviceaccounts declares the repository contract for
// organization service accounts (the opaque "sa." credentials).
package serviceaccounts

import (
	"context"

	"github.com/keyfold/keyfold/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, account *models.ServiceAccount) (*models.ServiceAccount, error)

	// GetByID returns common.ErrResourceNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.ServiceAccount, error)

	// Delete is used both by owners and by the resolver's lazy expiry.
	Delete(ctx context.Context, id string) error

	Touch(ctx context.Context, id string) error

	// BumpTokenVersion atomically increments the account's revocation
	// counter, invalidating every service access token minted against it.
	BumpTokenVersion(ctx context.Context, id string) error
}
