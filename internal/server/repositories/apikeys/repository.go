// Package apikeys declares the repository contract for personal API keys.
package apikeys

import (
	"context"

	"github.com/keyfold/keyfold/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error)

	// GetByID returns common.ErrResourceNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.APIKey, error)

	// Delete is used both by owners and by the resolver's lazy expiry.
	Delete(ctx context.Context, id string) error

	Touch(ctx context.Context, id string) error
}
