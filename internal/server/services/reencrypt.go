package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/cryptox/rootkey"
	"github.com/keyfold/keyfold/internal/dbx"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/server/repositories/repomanager"
)

// ReencryptionMigration rewraps every envelope still under the legacy root
// key to the current one. It runs at startup, is idempotent, and leaves
// rows readable at every point: the encoding tag and the ciphertext flip
// together, so readers decrypt with whichever root key the tag names.
type ReencryptionMigration struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	roots  *rootkey.Provider
	logger logging.Logger
}

func NewReencryptionMigration(db *sql.DB, repos repomanager.RepositoryManager, roots *rootkey.Provider, logger logging.Logger) *ReencryptionMigration {
	return &ReencryptionMigration{db: db, repos: repos, roots: roots, logger: logger}
}

// Run returns the number of envelopes rewrapped. With no legacy key
// configured it verifies nothing still needs one: legacy-tagged rows
// without a legacy key are unrecoverable, which is a configuration error
// worth failing startup over.
func (m *ReencryptionMigration) Run(ctx context.Context) (int, error) {
	legacy, hasLegacy := m.roots.Legacy()
	current, hasCurrent := m.roots.Current()

	if !hasLegacy {
		n, err := m.countLegacyRows(ctx)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return 0, fmt.Errorf("%d envelopes still under the legacy root key but no legacy key configured: %w", n, common.ErrInternal)
		}
		return 0, nil
	}
	if !hasCurrent {
		// Legacy-only deployments keep running as-is; nothing to move to.
		return 0, nil
	}

	var migrated int
	err := dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := m.repos.Bots(tx)

		botRows, err := repo.ListBotsByEncoding(ctx, rootkey.EncodingLegacy)
		if err != nil {
			return fmt.Errorf("listing legacy bots: %w", err)
		}
		for _, bot := range botRows {
			update, err := rewrap(legacy, current, bot.EncryptedKey, bot.KeyIV, bot.KeyTag)
			if err != nil {
				return fmt.Errorf("bot %s: %w", bot.ID, err)
			}
			update.ID = bot.ID
			if err := repo.UpdateBotKey(ctx, update); err != nil {
				return fmt.Errorf("bot %s: %w", bot.ID, err)
			}
			migrated++
		}

		saltRows, err := repo.ListBlindIndexSaltsByEncoding(ctx, rootkey.EncodingLegacy)
		if err != nil {
			return fmt.Errorf("listing legacy blind-index salts: %w", err)
		}
		for _, salt := range saltRows {
			update, err := rewrap(legacy, current, salt.EncryptedSalt, salt.SaltIV, salt.SaltTag)
			if err != nil {
				return fmt.Errorf("blind-index salt %s: %w", salt.ID, err)
			}
			update.ID = salt.ID
			if err := repo.UpdateBlindIndexSalt(ctx, update); err != nil {
				return fmt.Errorf("blind-index salt %s: %w", salt.ID, err)
			}
			migrated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if migrated > 0 {
		m.logger.Info(ctx, "root key migration complete", "envelopes", migrated)
	}
	return migrated, nil
}

func (m *ReencryptionMigration) countLegacyRows(ctx context.Context) (int, error) {
	repo := m.repos.Bots(m.db)
	botRows, err := repo.ListBotsByEncoding(ctx, rootkey.EncodingLegacy)
	if err != nil {
		return 0, err
	}
	saltRows, err := repo.ListBlindIndexSaltsByEncoding(ctx, rootkey.EncodingLegacy)
	if err != nil {
		return 0, err
	}
	return len(botRows) + len(saltRows), nil
}
