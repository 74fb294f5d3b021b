package srpsessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Replace(ctx context.Context, session *models.SRPSession) error {

	query :=
		`INSERT INTO srp_sessions (identifier, client_public_key, server_private_key)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (identifier)
		 DO UPDATE SET client_public_key = EXCLUDED.client_public_key,
		               server_private_key = EXCLUDED.server_private_key,
		               created_at = now()
		 `

	_, err := r.db.ExecContext(ctx, query,
		session.Identifier, session.ClientPublicKey, session.ServerPrivateKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) TakeAndDelete(ctx context.Context, identifier string) (*models.SRPSession, error) {

	// DELETE ... RETURNING is the atomic read-then-delete: two concurrent
	// consumers cannot both observe the row.
	query :=
		`DELETE FROM srp_sessions
		 WHERE identifier = $1
		 RETURNING identifier, client_public_key, server_private_key, created_at
		 `

	session := &models.SRPSession{}
	err := r.db.QueryRowContext(ctx, query, identifier).Scan(
		&session.Identifier, &session.ClientPublicKey, &session.ServerPrivateKey, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrResourceNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return session, nil
}

func (r *PostgresRepository) PurgeExpired(ctx context.Context, maxAge time.Duration) error {

	query := `DELETE FROM srp_sessions WHERE created_at < $1`

	if _, err := r.db.ExecContext(ctx, query, time.Now().Add(-maxAge)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
