package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/cryptox"
	"github.com/keyfold/keyfold/internal/server/auth"
	"github.com/keyfold/keyfold/internal/server/config"
	"github.com/keyfold/keyfold/internal/server/models"
	"github.com/keyfold/keyfold/internal/server/repositories/repomanager"
)

const (
	credentialSecretBytes = 32
	credentialSaltBytes   = 16
)

// CredentialService provisions and manages the non-password credential
// classes the resolver accepts: personal API keys, workspace service
// tokens, organization service accounts and machine identities with their
// access tokens. Secrets are returned exactly once at creation; only the
// Argon2id hash is stored.
type CredentialService struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
	cfg   *config.Config
}

func NewCredentialService(db *sql.DB, repos repomanager.RepositoryManager, cfg *config.Config) *CredentialService {
	return &CredentialService{db: db, repos: repos, cfg: cfg}
}

// hashNewSecret mints a random secret and its stored hash/salt pair.
func hashNewSecret() (secret string, hash, salt []byte, err error) {
	secret, err = common.MakeRandHexString(credentialSecretBytes)
	if err != nil {
		return "", nil, nil, fmt.Errorf("generating credential secret: %w", err)
	}
	salt = common.GenerateRandByteArray(credentialSaltBytes)
	hash = cryptox.HashSecret([]byte(secret), salt)
	return secret, hash, salt, nil
}

// CreateAPIKey stores a new personal API key and returns the row together
// with the presentable "<id>.<secret>" credential. The secret is not
// recoverable afterwards.
func (s *CredentialService) CreateAPIKey(ctx context.Context, userID, name string, expiresAt *time.Time) (*models.APIKey, string, error) {
	secret, hash, salt, err := hashNewSecret()
	if err != nil {
		return nil, "", err
	}

	key, err := s.repos.APIKeys(s.db).Create(ctx, &models.APIKey{
		UserID:     userID,
		Name:       name,
		SecretHash: hash,
		SecretSalt: salt,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		return nil, "", fmt.Errorf("creating api key: %w", err)
	}
	return key, key.ID + "." + secret, nil
}

// CreateServiceToken stores a workspace service token and returns the
// "st.<id>.<secret>" credential.
func (s *CredentialService) CreateServiceToken(ctx context.Context, workspaceID, createdBy, name string, expiresAt *time.Time) (*models.ServiceToken, string, error) {
	secret, hash, salt, err := hashNewSecret()
	if err != nil {
		return nil, "", err
	}

	token, err := s.repos.ServiceTokens(s.db).Create(ctx, &models.ServiceToken{
		WorkspaceID: workspaceID,
		CreatedBy:   createdBy,
		Name:        name,
		SecretHash:  hash,
		SecretSalt:  salt,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, "", fmt.Errorf("creating service token: %w", err)
	}
	return token, serviceTokenPrefix + token.ID + "." + secret, nil
}

// CreateServiceAccount stores an organization service account and returns
// the "sa.<id>.<secret>" credential.
func (s *CredentialService) CreateServiceAccount(ctx context.Context, orgID, name string, expiresAt *time.Time) (*models.ServiceAccount, string, error) {
	secret, hash, salt, err := hashNewSecret()
	if err != nil {
		return nil, "", err
	}

	account, err := s.repos.ServiceAccounts(s.db).Create(ctx, &models.ServiceAccount{
		OrgID:      orgID,
		Name:       name,
		SecretHash: hash,
		SecretSalt: salt,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		return nil, "", fmt.Errorf("creating service account: %w", err)
	}
	return account, serviceAccountPrefix + account.ID + "." + secret, nil
}

// RevokeServiceAccountTokens bumps the account's revocation counter so
// every service access JWT minted against it stops validating. The opaque
// credential itself stays usable.
func (s *CredentialService) RevokeServiceAccountTokens(ctx context.Context, accountID string) error {
	if err := s.repos.ServiceAccounts(s.db).BumpTokenVersion(ctx, accountID); err != nil {
		return fmt.Errorf("revoking service account tokens: %w", err)
	}
	return nil
}

// CreateIdentity registers a machine/workload principal for an org.
func (s *CredentialService) CreateIdentity(ctx context.Context, orgID, name string) (*models.Identity, error) {
	identity, err := s.repos.Identities(s.db).CreateIdentity(ctx, &models.Identity{
		OrgID: orgID,
		Name:  name,
	})
	if err != nil {
		return nil, fmt.Errorf("creating identity: %w", err)
	}
	return identity, nil
}

// IssueIdentityAccessToken stores the token row and mints the matching
// JWT. The JWT itself carries no expiry claim; TTL, max TTL, usage limit
// and IP allowlist are enforced against the row on every use.
func (s *CredentialService) IssueIdentityAccessToken(ctx context.Context, identityID string, ttl, maxTTL time.Duration, usageLimit int, ipAllowlist []string) (*models.IdentityAccessToken, string, error) {
	repo := s.repos.Identities(s.db)

	if _, err := repo.GetIdentityByID(ctx, identityID); err != nil {
		return nil, "", fmt.Errorf("issuing identity access token: %w", err)
	}

	row, err := repo.CreateAccessToken(ctx, &models.IdentityAccessToken{
		IdentityID:  identityID,
		TTL:         ttl,
		MaxTTL:      maxTTL,
		UsageLimit:  usageLimit,
		IPAllowlist: ipAllowlist,
	})
	if err != nil {
		return nil, "", fmt.Errorf("storing identity access token: %w", err)
	}

	jwt, err := auth.Sign(auth.Claims{
		TokenType:             auth.TokenIdentityAccess,
		IdentityAccessTokenID: row.ID,
		IdentityID:            identityID,
		TokenVersion:          row.TokenVersion,
	}, []byte(s.cfg.JWTServiceSecret), 0)
	if err != nil {
		return nil, "", fmt.Errorf("signing identity access token: %w", err)
	}
	return row, jwt, nil
}

// RenewIdentityAccessToken restarts the sliding TTL window. Renewal never
// extends past the hard max-TTL ceiling and is refused once the ceiling
// has passed.
func (s *CredentialService) RenewIdentityAccessToken(ctx context.Context, tokenID string) (*models.IdentityAccessToken, error) {
	repo := s.repos.Identities(s.db)

	row, err := repo.GetAccessTokenByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("renewing identity access token: %w", err)
	}
	if hard := row.HardExpiresAt(); !hard.IsZero() && time.Now().After(hard) {
		return nil, fmt.Errorf("identity access token past max ttl: %w", common.ErrUnauthorized)
	}

	if err := repo.Renew(ctx, tokenID); err != nil {
		return nil, fmt.Errorf("renewing identity access token: %w", err)
	}
	return repo.GetAccessTokenByID(ctx, tokenID)
}

// RevokeIdentityAccessToken invalidates every JWT minted against the row
// by bumping its counter; the row survives so a re-issued JWT embedding
// the new counter works immediately.
func (s *CredentialService) RevokeIdentityAccessToken(ctx context.Context, tokenID string) error {
	if err := s.repos.Identities(s.db).BumpTokenVersion(ctx, tokenID); err != nil {
		return fmt.Errorf("revoking identity access token: %w", err)
	}
	return nil
}

// DeleteIdentityAccessToken removes the row outright.
func (s *CredentialService) DeleteIdentityAccessToken(ctx context.Context, tokenID string) error {
	if err := s.repos.Identities(s.db).DeleteAccessToken(ctx, tokenID); err != nil {
		return fmt.Errorf("deleting identity access token: %w", err)
	}
	return nil
}
