// Package servicetokens declares the repository contract for workspace
// service tokens (the opaque "st." credentials).
package servicetokens

import (
	"context"

	"github.com/keyfold/keyfold/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.ServiceToken) (*models.ServiceToken, error)

	// GetByID returns common.ErrResourceNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.ServiceToken, error)

	// Delete is used both by owners and by the resolver's lazy expiry.
	Delete(ctx context.Context, id string) error

	Touch(ctx context.Context, id string) error
}
