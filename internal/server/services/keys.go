package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/cryptox"
	"github.com/keyfold/keyfold/internal/cryptox/rootkey"
	"github.com/keyfold/keyfold/internal/server/models"
	"github.com/keyfold/keyfold/internal/server/repositories/bots"
	"github.com/keyfold/keyfold/internal/server/repositories/repomanager"
)

// KeyService vends per-organization symmetric keys out of their envelopes.
// Plaintext keys are unwrapped on every call and never cached; callers are
// expected to wipe them when done.
type KeyService struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
	roots *rootkey.Provider
}

func NewKeyService(db *sql.DB, repos repomanager.RepositoryManager, roots *rootkey.Provider) *KeyService {
	return &KeyService{db: db, repos: repos, roots: roots}
}

// GetSymmetricKey unwraps the organization bot's symmetric key. The row's
// encoding tag picks the root key, so rows wrapped under either scheme stay
// readable while a migration is in flight.
func (s *KeyService) GetSymmetricKey(ctx context.Context, orgID string) ([]byte, error) {
	bot, err := s.repos.Bots(s.db).GetBotByOrgID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading org bot: %w", err)
	}

	root, err := s.roots.ForEncoding(bot.KeyEncoding)
	if err != nil {
		return nil, err
	}

	key, err := cryptox.Decrypt(root, bot.EncryptedKey, bot.KeyIV, bot.KeyTag)
	if err != nil {
		return nil, fmt.Errorf("unwrapping org key: %w", common.ErrInternal)
	}
	return key, nil
}

// ProvisionBot creates the organization's bot with a fresh symmetric key
// wrapped under the preferred root key.
func (s *KeyService) ProvisionBot(ctx context.Context, orgID, name string) (*models.Bot, error) {
	symmetric := common.GenerateRandByteArray(32)
	defer common.WipeByteArray(symmetric)

	enc := s.roots.PreferredEncoding()
	root, err := s.roots.ForEncoding(enc)
	if err != nil {
		return nil, err
	}

	ciphertext, iv, tag, err := cryptox.Encrypt(root, symmetric)
	if err != nil {
		return nil, fmt.Errorf("wrapping bot key: %w", common.ErrInternal)
	}

	bot := &models.Bot{
		ID:           uuid.NewString(),
		OrgID:        orgID,
		Name:         name,
		EncryptedKey: ciphertext,
		KeyIV:        iv,
		KeyTag:       tag,
		KeyEncoding:  enc,
	}
	return s.repos.Bots(s.db).CreateBot(ctx, bot)
}

// ProvisionBlindIndexSalt creates the organization's blind-index salt,
// wrapped under the preferred root key.
func (s *KeyService) ProvisionBlindIndexSalt(ctx context.Context, orgID string) (*models.BlindIndexSalt, error) {
	salt := common.GenerateRandByteArray(32)
	defer common.WipeByteArray(salt)

	enc := s.roots.PreferredEncoding()
	root, err := s.roots.ForEncoding(enc)
	if err != nil {
		return nil, err
	}

	ciphertext, iv, tag, err := cryptox.Encrypt(root, salt)
	if err != nil {
		return nil, fmt.Errorf("wrapping blind-index salt: %w", common.ErrInternal)
	}

	row := &models.BlindIndexSalt{
		ID:            uuid.NewString(),
		OrgID:         orgID,
		EncryptedSalt: ciphertext,
		SaltIV:        iv,
		SaltTag:       tag,
		KeyEncoding:   enc,
	}
	return s.repos.Bots(s.db).CreateBlindIndexSalt(ctx, row)
}

// rewrap moves one envelope from the legacy root key to the current one.
func rewrap(legacy, current, ciphertext, iv, tag []byte) (*bots.WrappedKeyUpdate, error) {
	plaintext, err := cryptox.Decrypt(legacy, ciphertext, iv, tag)
	if err != nil {
		return nil, fmt.Errorf("unwrapping legacy envelope: %w", common.ErrInternal)
	}
	defer common.WipeByteArray(plaintext)

	newCiphertext, newIV, newTag, err := cryptox.Encrypt(current, plaintext)
	if err != nil {
		return nil, fmt.Errorf("rewrapping envelope: %w", common.ErrInternal)
	}
	return &bots.WrappedKeyUpdate{
		Ciphertext:  newCiphertext,
		IV:          newIV,
		Tag:         newTag,
		KeyEncoding: rootkey.EncodingCurrent,
	}, nil
}
