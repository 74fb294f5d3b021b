package identities

import (
	"context"
	"database/sql"
	"encoding/json"
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

func (r *PostgresRepository) CreateIdentity(ctx context.Context, identity *models.Identity) (*models.Identity, error) {

	query :=
		`INSERT INTO identities (org_id, name)
		 VALUES ($1, $2)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query, identity.OrgID, identity.Name).Scan(&identity.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return identity, nil
}

func (r *PostgresRepository) GetIdentityByID(ctx context.Context, id string) (*models.Identity, error) {

	query := `SELECT id, org_id, name, created_at FROM identities WHERE id = $1`

	identity := &models.Identity{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&identity.ID, &identity.OrgID, &identity.Name, &identity.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrResourceNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return identity, nil
}

func (r *PostgresRepository) CreateAccessToken(ctx context.Context, token *models.IdentityAccessToken) (*models.IdentityAccessToken, error) {

	allowlist, err := json.Marshal(token.IPAllowlist)
	if err != nil {
		return nil, fmt.Errorf("encoding allowlist: %w", err)
	}

	query :=
		`INSERT INTO identity_access_tokens
		     (identity_id, ttl_seconds, max_ttl_seconds, usage_limit, ip_allowlist)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		token.IdentityID, int64(token.TTL.Seconds()), int64(token.MaxTTL.Seconds()),
		token.UsageLimit, allowlist).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) GetAccessTokenByID(ctx context.Context, id string) (*models.IdentityAccessToken, error) {

	query :=
		`SELECT id, identity_id, ttl_seconds, max_ttl_seconds, usage_limit, usage_count,
		        ip_allowlist, token_version, last_renewed_at, last_used, created_at
		 FROM identity_access_tokens WHERE id = $1
		 `

	token := &models.IdentityAccessToken{}
	var ttlSeconds, maxTTLSeconds int64
	var allowlist []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID, &token.IdentityID, &ttlSeconds, &maxTTLSeconds,
		&token.UsageLimit, &token.UsageCount, &allowlist,
		&token.TokenVersion, &token.LastRenewedAt, &token.LastUsed, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrResourceNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	token.TTL = time.Duration(ttlSeconds) * time.Second
	token.MaxTTL = time.Duration(maxTTLSeconds) * time.Second
	if err := json.Unmarshal(allowlist, &token.IPAllowlist); err != nil {
		return nil, fmt.Errorf("decoding allowlist: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) IncrementUsage(ctx context.Context, id string) (int, error) {

	query :=
		`UPDATE identity_access_tokens
		 SET usage_count = usage_count + 1, last_used = now()
		 WHERE id = $1
		 RETURNING usage_count
		 `

	var count int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrResourceNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) Renew(ctx context.Context, id string) error {

	query := `UPDATE identity_access_tokens SET last_renewed_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrResourceNotFound
	}
	return nil
}

func (r *PostgresRepository) BumpTokenVersion(ctx context.Context, id string) error {

	query := `UPDATE identity_access_tokens SET token_version = token_version + 1 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrResourceNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteAccessToken(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM identity_access_tokens WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
