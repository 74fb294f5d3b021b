package tokenversions

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

const columns = `id, user_id, ip, user_agent, access_version, refresh_version, last_used, created_at`

func scanRow(row *sql.Row) (*models.TokenVersion, error) {
	tv := &models.TokenVersion{}
	err := row.Scan(&tv.ID, &tv.UserID, &tv.IP, &tv.UserAgent,
		&tv.AccessVersion, &tv.RefreshVersion, &tv.LastUsed, &tv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrResourceNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tv, nil
}

func (r *PostgresRepository) FindOrCreate(ctx context.Context, userID, ip, userAgent string) (*models.TokenVersion, error) {

	// The conflict arm only touches last_used, so existing counters survive;
	// RETURNING gives back the row either way in one round trip.
	query :=
		`INSERT INTO token_versions (user_id, ip, user_agent)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, ip, user_agent)
		 DO UPDATE SET last_used = now()
		 RETURNING ` + columns

	return scanRow(r.db.QueryRowContext(ctx, query, userID, ip, userAgent))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.TokenVersion, error) {
	query := `SELECT ` + columns + ` FROM token_versions WHERE id = $1`
	return scanRow(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) Touch(ctx context.Context, id string) error {
	query := `UPDATE token_versions SET last_used = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {

	query :=
		`UPDATE token_versions
		 SET access_version = access_version + 1,
		     refresh_version = refresh_version + 1
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrResourceNotFound
	}
	return nil
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string) error {

	query :=
		`UPDATE token_versions
		 SET access_version = access_version + 1,
		     refresh_version = refresh_version + 1
		 WHERE user_id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
