package serviceaccounts

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

func (r *PostgresRepository) Create(ctx context.Context, account *models.ServiceAccount) (*models.ServiceAccount, error) {

	query :=
		`INSERT INTO service_accounts (org_id, name, secret_hash, secret_salt, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		account.OrgID, account.Name, account.SecretHash, account.SecretSalt, account.ExpiresAt).Scan(&account.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ServiceAccount, error) {

	query :=
		`SELECT id, org_id, name, secret_hash, secret_salt, expires_at, token_version, last_used, created_at
		 FROM service_accounts WHERE id = $1
		 `

	account := &models.ServiceAccount{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID, &account.OrgID, &account.Name,
		&account.SecretHash, &account.SecretSalt, &account.ExpiresAt,
		&account.TokenVersion, &account.LastUsed, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrResourceNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM service_accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE service_accounts SET last_used = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) BumpTokenVersion(ctx context.Context, id string) error {

	query := `UPDATE service_accounts SET token_version = token_version + 1 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrResourceNotFound
	}
	return nil
}
