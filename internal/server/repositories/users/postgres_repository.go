package users

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

const userColumns = `id, email, salt, verifier, public_key,
	encrypted_private_key, private_key_iv, private_key_tag,
	protected_key, protected_key_iv, protected_key_tag,
	encryption_version, mfa_enabled, mfa_method, devices, created_at`

func (r *PostgresRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var devices []byte
	err := row.Scan(&user.ID, &user.Email, &user.Salt, &user.Verifier, &user.PublicKey,
		&user.EncryptedPrivateKey, &user.PrivateKeyIV, &user.PrivateKeyTag,
		&user.ProtectedKey, &user.ProtectedKeyIV, &user.ProtectedKeyTag,
		&user.EncryptionVersion, &user.MFAEnabled, &user.MFAMethod, &devices, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrResourceNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(devices, &user.Devices); err != nil {
		return nil, fmt.Errorf("decoding devices: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (email, salt, verifier, public_key,
		    encrypted_private_key, private_key_iv, private_key_tag,
		    protected_key, protected_key_iv, protected_key_tag,
		    encryption_version, mfa_enabled, mfa_method)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.Salt, user.Verifier, user.PublicKey,
		user.EncryptedPrivateKey, user.PrivateKeyIV, user.PrivateKeyTag,
		user.ProtectedKey, user.ProtectedKeyIV, user.ProtectedKeyTag,
		user.EncryptionVersion, user.MFAEnabled, user.MFAMethod).Scan(&user.ID)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateAuthKeys(ctx context.Context, id string, keys *AuthKeys) error {

	query :=
		`UPDATE users
		 SET salt = $2, verifier = $3,
		     encrypted_private_key = $4, private_key_iv = $5, private_key_tag = $6,
		     protected_key = $7, protected_key_iv = $8, protected_key_tag = $9,
		     encryption_version = $10
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id,
		keys.Salt, keys.Verifier,
		keys.EncryptedPrivateKey, keys.PrivateKeyIV, keys.PrivateKeyTag,
		keys.ProtectedKey, keys.ProtectedKeyIV, keys.ProtectedKeyTag,
		keys.EncryptionVersion)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrResourceNotFound
	}
	return nil
}

func (r *PostgresRepository) AddDevice(ctx context.Context, id string, device models.Device) error {

	encoded, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("encoding device: %w", err)
	}

	// Single-statement append keeps concurrent logins from clobbering each
	// other's device entries.
	query := `UPDATE users SET devices = devices || $2::jsonb WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, encoded); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetMFACode(ctx context.Context, id string, hash, salt []byte, expiresAt time.Time) error {

	query :=
		`UPDATE users
		 SET mfa_code_hash = $2, mfa_code_salt = $3, mfa_code_expires_at = $4
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, id, hash, salt, expiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetMFACode(ctx context.Context, id string) ([]byte, []byte, time.Time, error) {

	query := `SELECT mfa_code_hash, mfa_code_salt, mfa_code_expires_at FROM users WHERE id = $1`

	var hash, salt []byte
	var expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(&hash, &salt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, time.Time{}, common.ErrResourceNotFound
		}
		return nil, nil, time.Time{}, fmt.Errorf("db error: %w", err)
	}
	if hash == nil || !expiresAt.Valid {
		return nil, nil, time.Time{}, common.ErrResourceNotFound
	}
	return hash, salt, expiresAt.Time, nil
}

func (r *PostgresRepository) ConsumeMFACode(ctx context.Context, id string) error {

	query :=
		`UPDATE users
		 SET mfa_code_hash = NULL, mfa_code_salt = NULL, mfa_code_expires_at = NULL
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
