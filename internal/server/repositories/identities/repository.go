// Package identities declares the repository contract for machine/workload
// identities and their access-token rows.
package identities

import (
	"context"

	"github.com/keyfold/keyfold/internal/server/models"
)

type Repository interface {
	CreateIdentity(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	GetIdentityByID(ctx context.Context, id string) (*models.Identity, error)

	CreateAccessToken(ctx context.Context, token *models.IdentityAccessToken) (*models.IdentityAccessToken, error)

	// GetAccessTokenByID returns common.ErrResourceNotFound when absent.
	GetAccessTokenByID(ctx context.Context, id string) (*models.IdentityAccessToken, error)

	// IncrementUsage bumps usage_count and last_used in one statement and
	// returns the new count.
	IncrementUsage(ctx context.Context, id string) (int, error)

	// Renew restarts the sliding TTL window (last_renewed_at = now()).
	Renew(ctx context.Context, id string) error

	// BumpTokenVersion revokes every JWT minted against the row.
	BumpTokenVersion(ctx context.Context, id string) error

	DeleteAccessToken(ctx context.Context, id string) error
}
