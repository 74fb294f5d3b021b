package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/cryptox"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/server/auth"
	"github.com/keyfold/keyfold/internal/server/config"
	"github.com/keyfold/keyfold/internal/server/models"
	"github.com/keyfold/keyfold/internal/server/repositories/repomanager"
)

// AuthMode says which credential class authenticated a request.
type AuthMode string

const (
	AuthModeAPIKey         AuthMode = "apiKey"
	AuthModeJWT            AuthMode = "jwt"
	AuthModeAPIKeyV2       AuthMode = "apiKeyV2"
	AuthModeServiceToken   AuthMode = "serviceToken"
	AuthModeServiceAccount AuthMode = "serviceAccount"
	AuthModeServiceAccess  AuthMode = "serviceAccessToken"
	AuthModeIdentityAccess AuthMode = "identityAccessToken"
	AuthModeProvider       AuthMode = "providerToken"
)

// Structural prefixes of the opaque (non-JWT) bearer credentials.
const (
	serviceTokenPrefix   = "st."
	serviceAccountPrefix = "sa."
)

// Principal is the resolved caller identity handed to the rest of the
// application. Exactly one of the id fields beyond Mode is meaningful,
// matching the mode.
type Principal struct {
	Mode AuthMode

	User   *models.User
	UserID string

	// TokenVersionID is set for password-session JWTs so logout can
	// revoke the ledger row that backs them.
	TokenVersionID string

	ServiceTokenID string
	WorkspaceID    string

	ServiceAccountID string
	IdentityID       string
	OrgID            string
}

// RequestAuth carries the raw header values the resolver dispatches on.
type RequestAuth struct {
	APIKey        string // X-API-KEY header
	Authorization string // Authorization header
	IP            string
	UserAgent     string
}

// Resolver is the single request-time authentication entry point. Given
// raw header values it returns the resolved principal or fails closed; all
// per-class validators re-check the decoded token-type claim so a token of
// one class can never satisfy a validator of another.
type Resolver struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
	cfg    *config.Config
}

func NewResolver(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger, cfg *config.Config) *Resolver {
	return &Resolver{db: db, repos: repos, logger: logger, cfg: cfg}
}

// Resolve dispatches on header shape: the API-key header wins if present,
// then the bearer value's structural prefix, then the JWT's authTokenType
// claim. Missing or malformed headers are BadRequest; every failed check
// after that is Unauthorized with a message that differs only in the log.
func (r *Resolver) Resolve(ctx context.Context, req *RequestAuth) (*Principal, error) {
	if req.APIKey != "" {
		return r.validateAPIKey(ctx, req.APIKey)
	}

	bearer, ok := strings.CutPrefix(req.Authorization, "Bearer ")
	if !ok || bearer == "" {
		return nil, fmt.Errorf("missing or malformed authorization header: %w", common.ErrBadRequest)
	}

	switch {
	case strings.HasPrefix(bearer, serviceTokenPrefix):
		return r.validateServiceToken(ctx, bearer)
	case strings.HasPrefix(bearer, serviceAccountPrefix):
		return r.validateServiceAccount(ctx, bearer)
	}

	tokenType, err := auth.PeekType(bearer)
	if err != nil {
		return nil, err
	}

	switch tokenType {
	case auth.TokenAccess:
		return r.validateAccessToken(ctx, bearer)
	case auth.TokenAPIKey:
		return r.validateAPIKeyV2(ctx, bearer)
	case auth.TokenServiceAccess:
		return r.validateServiceAccessToken(ctx, bearer)
	case auth.TokenIdentityAccess:
		return r.validateIdentityAccessToken(ctx, bearer, req.IP, auth.TokenIdentityAccess)
	case auth.TokenMachineAccess:
		return r.validateIdentityAccessToken(ctx, bearer, req.IP, auth.TokenMachineAccess)
	case auth.TokenProvider:
		return r.validateProviderToken(ctx, bearer)
	default:
		// Refresh, MFA and signup tokens are never request credentials.
		return nil, fmt.Errorf("token type %q is not a request credential: %w", tokenType, common.ErrUnauthorized)
	}
}

// splitOpaque splits "prefix.id.secret" composites.
func splitOpaque(value string) (id, secret string, err error) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("malformed opaque credential: %w", common.ErrBadRequest)
	}
	return parts[1], parts[2], nil
}

func expired(expiresAt *time.Time) bool {
	return expiresAt != nil && time.Now().After(*expiresAt)
}

// validateAPIKey checks the opaque "<id>.<secret>" X-API-KEY credential.
func (r *Resolver) validateAPIKey(ctx context.Context, value string) (*Principal, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("malformed api key: %w", common.ErrBadRequest)
	}
	id, secret := parts[0], parts[1]

	repo := r.repos.APIKeys(r.db)
	key, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			return nil, fmt.Errorf("api key not found: %w", common.ErrUnauthorized)
		}
		return nil, err
	}

	if expired(key.ExpiresAt) {
		// Lazy expiry: an expired credential is removed the moment it is
		// seen, so it cannot be presented again.
		if err := repo.Delete(ctx, key.ID); err != nil {
			r.logger.Error(ctx, "deleting expired api key failed", "id", key.ID, "error", err.Error())
		}
		return nil, fmt.Errorf("api key expired: %w", common.ErrUnauthorized)
	}

	if !cryptox.VerifySecret([]byte(secret), key.SecretSalt, key.SecretHash) {
		return nil, fmt.Errorf("api key secret mismatch: %w", common.ErrUnauthorized)
	}

	if err := repo.Touch(ctx, key.ID); err != nil {
		r.logger.Warn(ctx, "touching api key failed", "id", key.ID, "error", err.Error())
	}

	user, err := r.repos.Users(r.db).GetByID(ctx, key.UserID)
	if err != nil {
		return nil, fmt.Errorf("api key user lookup: %w", common.ErrUnauthorized)
	}

	return &Principal{Mode: AuthModeAPIKey, User: user, UserID: user.ID}, nil
}

// validateAccessToken checks a password-session JWT against the ledger.
func (r *Resolver) validateAccessToken(ctx context.Context, bearer string) (*Principal, error) {
	claims, err := auth.Parse(bearer, []byte(r.cfg.JWTAuthSecret), auth.TokenAccess)
	if err != nil {
		return nil, err
	}

	tvRepo := r.repos.TokenVersions(r.db)
	tv, err := tvRepo.GetByID(ctx, claims.TokenVersionID)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			return nil, fmt.Errorf("token version row absent: %w", common.ErrUnauthorized)
		}
		return nil, err
	}
	if claims.AccessVersion != tv.AccessVersion {
		return nil, fmt.Errorf("access token revoked: %w", common.ErrUnauthorized)
	}
	if err := tvRepo.Touch(ctx, tv.ID); err != nil {
		r.logger.Warn(ctx, "touching token version failed", "id", tv.ID, "error", err.Error())
	}

	user, err := r.repos.Users(r.db).GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("access token user lookup: %w", common.ErrUnauthorized)
	}
	if user.PublicKey == "" {
		return nil, fmt.Errorf("account onboarding incomplete: %w", common.ErrUnauthorized)
	}

	return &Principal{Mode: AuthModeJWT, User: user, UserID: user.ID, TokenVersionID: tv.ID}, nil
}

// validateAPIKeyV2 checks the JWT-encoded API key variant; the row still
// gates validity so deletion and expiry take effect immediately.
func (r *Resolver) validateAPIKeyV2(ctx context.Context, bearer string) (*Principal, error) {
	claims, err := auth.Parse(bearer, []byte(r.cfg.JWTAuthSecret), auth.TokenAPIKey)
	if err != nil {
		return nil, err
	}

	repo := r.repos.APIKeys(r.db)
	key, err := repo.GetByID(ctx, claims.APIKeyID)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			return nil, fmt.Errorf("api key row absent: %w", common.ErrUnauthorized)
		}
		return nil, err
	}
	if expired(key.ExpiresAt) {
		if err := repo.Delete(ctx, key.ID); err != nil {
			r.logger.Error(ctx, "deleting expired api key failed", "id", key.ID, "error", err.Error())
		}
		return nil, fmt.Errorf("api key expired: %w", common.ErrUnauthorized)
	}
	if err := repo.Touch(ctx, key.ID); err != nil {
		r.logger.Warn(ctx, "touching api key failed", "id", key.ID, "error", err.Error())
	}

	user, err := r.repos.Users(r.db).GetByID(ctx, key.UserID)
	if err != nil {
		return nil, fmt.Errorf("api key user lookup: %w", common.ErrUnauthorized)
	}

	return &Principal{Mode: AuthModeAPIKeyV2, User: user, UserID: user.ID}, nil
}

// validateServiceToken checks the opaque "st.<id>.<secret>" credential.
func (r *Resolver) validateServiceToken(ctx context.Context, bearer string) (*Principal, error) {
	id, secret, err := splitOpaque(bearer)
	if err != nil {
		return nil, err
	}

	repo := r.repos.ServiceTokens(r.db)
	token, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			return nil, fmt.Errorf("service token not found: %w", common.ErrUnauthorized)
		}
		return nil, err
	}

	if expired(token.ExpiresAt) {
		if err := repo.Delete(ctx, token.ID); err != nil {
			r.logger.Error(ctx, "deleting expired service token failed", "id", token.ID, "error", err.Error())
		}
		return nil, fmt.Errorf("service token expired: %w", common.ErrUnauthorized)
	}

	if !cryptox.VerifySecret([]byte(secret), token.SecretSalt, token.SecretHash) {
		return nil, fmt.Errorf("service token secret mismatch: %w", common.ErrUnauthorized)
	}

	if err := repo.Touch(ctx, token.ID); err != nil {
		r.logger.Warn(ctx, "touching service token failed", "id", token.ID, "error", err.Error())
	}

	return &Principal{Mode: AuthModeServiceToken, ServiceTokenID: token.ID, WorkspaceID: token.WorkspaceID}, nil
}

// validateServiceAccount checks the opaque "sa.<id>.<secret>" credential.
func (r *Resolver) validateServiceAccount(ctx context.Context, bearer string) (*Principal, error) {
	id, secret, err := splitOpaque(bearer)
	if err != nil {
		return nil, err
	}

	repo := r.repos.ServiceAccounts(r.db)
	account, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			return nil, fmt.Errorf("service account not found: %w", common.ErrUnauthorized)
		}
		return nil, err
	}

	if expired(account.ExpiresAt) {
		if err := repo.Delete(ctx, account.ID); err != nil {
			r.logger.Error(ctx, "deleting expired service account failed", "id", account.ID, "error", err.Error())
		}
		return nil, fmt.Errorf("service account expired: %w", common.ErrUnauthorized)
	}

	if !cryptox.VerifySecret([]byte(secret), account.SecretSalt, account.SecretHash) {
		return nil, fmt.Errorf("service account secret mismatch: %w", common.ErrUnauthorized)
	}

	if err := repo.Touch(ctx, account.ID); err != nil {
		r.logger.Warn(ctx, "touching service account failed", "id", account.ID, "error", err.Error())
	}

	return &Principal{Mode: AuthModeServiceAccount, ServiceAccountID: account.ID, OrgID: account.OrgID}, nil
}

// validateServiceAccessToken checks the JWT a service account exchanges its
// opaque credential for; the embedded counter gates bulk revocation.
func (r *Resolver) validateServiceAccessToken(ctx context.Context, bearer string) (*Principal, error) {
	claims, err := auth.Parse(bearer, []byte(r.cfg.JWTServiceSecret), auth.TokenServiceAccess)
	if err != nil {
		return nil, err
	}

	repo := r.repos.ServiceAccounts(r.db)
	account, err := repo.GetByID(ctx, claims.ServiceAccountID)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			return nil, fmt.Errorf("service account row absent: %w", common.ErrUnauthorized)
		}
		return nil, err
	}
	if expired(account.ExpiresAt) {
		return nil, fmt.Errorf("service account expired: %w", common.ErrUnauthorized)
	}
	if claims.TokenVersion != account.TokenVersion {
		return nil, fmt.Errorf("service access token revoked: %w", common.ErrUnauthorized)
	}
	if err := repo.Touch(ctx, account.ID); err != nil {
		r.logger.Warn(ctx, "touching service account failed", "id", account.ID, "error", err.Error())
	}

	return &Principal{Mode: AuthModeServiceAccess, ServiceAccountID: account.ID, OrgID: account.OrgID}, nil
}

// validateIdentityAccessToken checks a machine/workload token: signature
// and type, revocation counter, IP allowlist, the sliding TTL, the hard
// max-TTL and the usage ceiling, then records the use. want is either the
// identity or the legacy machine claim value; both classes share storage.
func (r *Resolver) validateIdentityAccessToken(ctx context.Context, bearer, ip string, want auth.TokenType) (*Principal, error) {
	claims, err := auth.Parse(bearer, []byte(r.cfg.JWTServiceSecret), want)
	if err != nil {
		return nil, err
	}

	repo := r.repos.Identities(r.db)
	token, err := repo.GetAccessTokenByID(ctx, claims.IdentityAccessTokenID)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			return nil, fmt.Errorf("identity access token row absent: %w", common.ErrUnauthorized)
		}
		return nil, err
	}

	if claims.TokenVersion != token.TokenVersion {
		return nil, fmt.Errorf("identity access token revoked: %w", common.ErrUnauthorized)
	}
	if !token.AllowsIP(ip) {
		return nil, fmt.Errorf("source ip %s not on allowlist: %w", ip, common.ErrUnauthorized)
	}

	now := time.Now()
	if exp := token.ExpiresAt(); !exp.IsZero() && now.After(exp) {
		return nil, fmt.Errorf("identity access token ttl exceeded: %w", common.ErrUnauthorized)
	}
	if hard := token.HardExpiresAt(); !hard.IsZero() && now.After(hard) {
		return nil, fmt.Errorf("identity access token max ttl exceeded: %w", common.ErrUnauthorized)
	}
	if token.UsageLimit > 0 && token.UsageCount >= token.UsageLimit {
		return nil, fmt.Errorf("identity access token usage limit reached: %w", common.ErrUnauthorized)
	}

	if _, err := repo.IncrementUsage(ctx, token.ID); err != nil {
		r.logger.Warn(ctx, "incrementing identity token usage failed", "id", token.ID, "error", err.Error())
	}

	identity, err := repo.GetIdentityByID(ctx, token.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", common.ErrUnauthorized)
	}

	return &Principal{Mode: AuthModeIdentityAccess, IdentityID: identity.ID, OrgID: identity.OrgID}, nil
}

// validateProviderToken accepts the short-lived hand-off token an external
// SSO/SAML strategy mints after validating an identity.
func (r *Resolver) validateProviderToken(ctx context.Context, bearer string) (*Principal, error) {
	claims, err := auth.Parse(bearer, []byte(r.cfg.JWTProviderSecret), auth.TokenProvider)
	if err != nil {
		return nil, err
	}

	user, err := r.repos.Users(r.db).GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("provider token user lookup: %w", common.ErrUnauthorized)
	}

	return &Principal{Mode: AuthModeProvider, User: user, UserID: user.ID}, nil
}
