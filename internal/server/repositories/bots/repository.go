// Package bots declares the repository contract for the two wrapped-key
// collections: automation bots and secret blind-index salts. They share a
// package because the envelope key service and the re-encryption migration
// treat them identically.
package bots

import (
	"context"

	"github.com/keyfold/keyfold/internal/cryptox/rootkey"
	"github.com/keyfold/keyfold/internal/server/models"
)

// WrappedKeyUpdate carries a re-encrypted key envelope. The ciphertext
// replacement and the encoding-tag flip are applied in one statement so a
// concurrent reader sees the row entirely before or entirely after.
type WrappedKeyUpdate struct {
	ID          string
	Ciphertext  []byte
	IV          []byte
	Tag         []byte
	KeyEncoding rootkey.Encoding
}

type Repository interface {
	CreateBot(ctx context.Context, bot *models.Bot) (*models.Bot, error)

	// GetBotByOrgID returns common.ErrResourceNotFound when absent.
	GetBotByOrgID(ctx context.Context, orgID string) (*models.Bot, error)

	// ListBotsByEncoding feeds the migration: only rows still tagged with
	// the given scheme are returned.
	ListBotsByEncoding(ctx context.Context, enc rootkey.Encoding) ([]*models.Bot, error)

	UpdateBotKey(ctx context.Context, update *WrappedKeyUpdate) error

	CreateBlindIndexSalt(ctx context.Context, salt *models.BlindIndexSalt) (*models.BlindIndexSalt, error)
	ListBlindIndexSaltsByEncoding(ctx context.Context, enc rootkey.Encoding) ([]*models.BlindIndexSalt, error)
	UpdateBlindIndexSalt(ctx context.Context, update *WrappedKeyUpdate) error
}
