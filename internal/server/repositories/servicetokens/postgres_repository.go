package servicetokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/dbx"
	"github.com/keyfold/keyfold/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.ServiceToken) (*models.ServiceToken, error) {

	query :=
		`INSERT INTO service_tokens (workspace_id, created_by, name, secret_hash, secret_salt, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		token.WorkspaceID, token.CreatedBy, token.Name,
		token.SecretHash, token.SecretSalt, token.ExpiresAt).Scan(&token.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ServiceToken, error) {

	query :=
		`SELECT id, workspace_id, created_by, name, secret_hash, secret_salt, expires_at, last_used, created_at
		 FROM service_tokens WHERE id = $1
		 `

	token := &models.ServiceToken{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID, &token.WorkspaceID, &token.CreatedBy, &token.Name,
		&token.SecretHash, &token.SecretSalt, &token.ExpiresAt, &token.LastUsed, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrResourceNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM service_tokens WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE service_tokens SET last_used = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
