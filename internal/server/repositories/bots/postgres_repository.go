package bots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/cryptox/rootkey"
	"github.com/keyfold/keyfold/internal/dbx"
	"github.com/keyfold/keyfold/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateBot(ctx context.Context, bot *models.Bot) (*models.Bot, error) {

	query :=
		`INSERT INTO bots (org_id, name, encrypted_key, key_iv, key_tag, key_encoding)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		bot.OrgID, bot.Name, bot.EncryptedKey, bot.KeyIV, bot.KeyTag, bot.KeyEncoding).Scan(&bot.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return bot, nil
}

func (r *PostgresRepository) GetBotByOrgID(ctx context.Context, orgID string) (*models.Bot, error) {

	query :=
		`SELECT id, org_id, name, encrypted_key, key_iv, key_tag, key_encoding, created_at
		 FROM bots WHERE org_id = $1
		 `

	bot := &models.Bot{}
	err := r.db.QueryRowContext(ctx, query, orgID).Scan(
		&bot.ID, &bot.OrgID, &bot.Name,
		&bot.EncryptedKey, &bot.KeyIV, &bot.KeyTag, &bot.KeyEncoding, &bot.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrResourceNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return bot, nil
}

func (r *PostgresRepository) ListBotsByEncoding(ctx context.Context, enc rootkey.Encoding) ([]*models.Bot, error) {

	query :=
		`SELECT id, org_id, name, encrypted_key, key_iv, key_tag, key_encoding, created_at
		 FROM bots WHERE key_encoding = $1
		 `

	rows, err := r.db.QueryContext(ctx, query, enc)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var bots []*models.Bot
	for rows.Next() {
		bot := &models.Bot{}
		if err := rows.Scan(&bot.ID, &bot.OrgID, &bot.Name,
			&bot.EncryptedKey, &bot.KeyIV, &bot.KeyTag, &bot.KeyEncoding, &bot.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

func (r *PostgresRepository) UpdateBotKey(ctx context.Context, update *WrappedKeyUpdate) error {

	query :=
		`UPDATE bots
		 SET encrypted_key = $2, key_iv = $3, key_tag = $4, key_encoding = $5
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query,
		update.ID, update.Ciphertext, update.IV, update.Tag, update.KeyEncoding); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreateBlindIndexSalt(ctx context.Context, salt *models.BlindIndexSalt) (*models.BlindIndexSalt, error) {

	query :=
		`INSERT INTO secret_blindindex_salts (org_id, encrypted_salt, salt_iv, salt_tag, key_encoding)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		salt.OrgID, salt.EncryptedSalt, salt.SaltIV, salt.SaltTag, salt.KeyEncoding).Scan(&salt.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return salt, nil
}

func (r *PostgresRepository) ListBlindIndexSaltsByEncoding(ctx context.Context, enc rootkey.Encoding) ([]*models.BlindIndexSalt, error) {

	query :=
		`SELECT id, org_id, encrypted_salt, salt_iv, salt_tag, key_encoding, created_at
		 FROM secret_blindindex_salts WHERE key_encoding = $1
		 `

	rows, err := r.db.QueryContext(ctx, query, enc)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var salts []*models.BlindIndexSalt
	for rows.Next() {
		salt := &models.BlindIndexSalt{}
		if err := rows.Scan(&salt.ID, &salt.OrgID,
			&salt.EncryptedSalt, &salt.SaltIV, &salt.SaltTag, &salt.KeyEncoding, &salt.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		salts = append(salts, salt)
	}
	return salts, rows.Err()
}

func (r *PostgresRepository) UpdateBlindIndexSalt(ctx context.Context, update *WrappedKeyUpdate) error {

	query :=
		`UPDATE secret_blindindex_salts
		 SET encrypted_salt = $2, salt_iv = $3, salt_tag = $4, key_encoding = $5
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query,
		update.ID, update.Ciphertext, update.IV, update.Tag, update.KeyEncoding); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
