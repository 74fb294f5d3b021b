package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/cryptox"
	"github.com/keyfold/keyfold/internal/cryptox/srp"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/server/auth"
	"github.com/keyfold/keyfold/internal/server/config"
	"github.com/keyfold/keyfold/internal/server/mail"
	"github.com/keyfold/keyfold/internal/server/models"
	"github.com/keyfold/keyfold/internal/server/repositories/repomanager"
	usersrepo "github.com/keyfold/keyfold/internal/server/repositories/users"
)

// errAuthFailed is the single failure the login steps expose. An absent
// account, an absent session and a bad proof all surface identically so the
// endpoint cannot be used as a user-existence or proof-format oracle; the
// real cause goes to the log only.
var errAuthFailed = fmt.Errorf("failed to authenticate, try again: %w", common.ErrUnauthorized)

const mfaCodeDigits = 6

// LoginResult is what a completed authentication returns: either an MFA
// challenge, or tokens plus the key material the client needs to derive its
// local decryption key.
type LoginResult struct {
	MFAEnabled bool
	MFAToken   string

	AccessToken  string
	RefreshToken string

	EncryptionVersion   models.EncryptionVersion
	PublicKey           string
	EncryptedPrivateKey string
	PrivateKeyIV        string
	PrivateKeyTag       string
	ProtectedKey        string
	ProtectedKeyIV      string
	ProtectedKeyTag     string
}

// Registration carries the client-derived material persisted at signup.
type Registration struct {
	Salt                []byte
	Verifier            []byte
	PublicKey           string
	EncryptedPrivateKey string
	PrivateKeyIV        string
	PrivateKeyTag       string
	ProtectedKey        string
	ProtectedKeyIV      string
	ProtectedKeyTag     string
	EncryptionVersion   models.EncryptionVersion
}

// LoginService runs the two-step SRP exchange and the flows hanging off it:
// MFA verification, signup completion and password change.
type LoginService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	tokens *TokenService
	mailer mail.Mailer
	logger logging.Logger
	cfg    *config.Config
}

func NewLoginService(db *sql.DB, repos repomanager.RepositoryManager, tokens *TokenService,
	mailer mail.Mailer, logger logging.Logger, cfg *config.Config) *LoginService {
	return &LoginService{db: db, repos: repos, tokens: tokens, mailer: mailer, logger: logger, cfg: cfg}
}

// resolveIdentifier finds the user behind a login request: by email, or by
// decoding a short-lived provider hand-off token carrying an
// already-validated user id. The returned identifier keys the ephemeral
// session; provider flows use the user id so they cannot collide with a
// concurrent plain-password login for the same mailbox.
func (s *LoginService) resolveIdentifier(ctx context.Context, email, providerToken string) (*models.User, string, error) {
	repo := s.repos.Users(s.db)

	if providerToken != "" {
		claims, err := auth.Parse(providerToken, []byte(s.cfg.JWTProviderSecret), auth.TokenProvider)
		if err != nil {
			return nil, "", err
		}
		user, err := repo.GetByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, common.ErrResourceNotFound) {
				return nil, "", common.ErrAccountNotFound
			}
			return nil, "", err
		}
		return user, user.ID, nil
	}

	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			return nil, "", common.ErrAccountNotFound
		}
		return nil, "", err
	}
	return user, user.Email, nil
}

// Login1 is the first SRP step. It builds a server session from the stored
// salt and verifier, atomically replaces any pending session for the
// identifier with the new {A, b} pair, and returns (salt, B). A concurrent
// Login1 for the same identifier silently wins over the earlier one
// (last write wins; see the rate limit on the HTTP route).
func (s *LoginService) Login1(ctx context.Context, email, providerToken string, clientPublicKey []byte) (salt, serverPublicKey []byte, err error) {
	user, identifier, err := s.resolveIdentifier(ctx, email, providerToken)
	if err != nil {
		return nil, nil, err
	}

	server, err := srp.NewServer(user.Email, user.Salt, user.Verifier)
	if err != nil {
		return nil, nil, fmt.Errorf("starting srp session: %w", err)
	}

	session := &models.SRPSession{
		Identifier:       identifier,
		ClientPublicKey:  clientPublicKey,
		ServerPrivateKey: server.PrivateKey(),
	}
	if err := s.repos.SRPSessions(s.db).Replace(ctx, session); err != nil {
		return nil, nil, err
	}

	return user.Salt, server.PublicKey(), nil
}

// Login2 is the second SRP step: it consumes the pending session, verifies
// the client proof, and either returns an MFA challenge or finishes the
// login. Absent user, absent session and proof mismatch are externally
// indistinguishable.
func (s *LoginService) Login2(ctx context.Context, email, providerToken string, clientProof []byte, ip, userAgent string) (*LoginResult, error) {
	user, identifier, err := s.resolveIdentifier(ctx, email, providerToken)
	if err != nil {
		s.logger.Warn(ctx, "login2: identifier resolution failed", "error", err.Error())
		return nil, errAuthFailed
	}

	session, err := s.repos.SRPSessions(s.db).TakeAndDelete(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			s.logger.Warn(ctx, "login2: no pending session", "identifier", identifier)
			return nil, errAuthFailed
		}
		return nil, err
	}
	if s.cfg.SRPSessionTTL > 0 && time.Since(session.CreatedAt) > s.cfg.SRPSessionTTL {
		s.logger.Warn(ctx, "login2: session expired", "identifier", identifier)
		return nil, errAuthFailed
	}

	server := srp.RestoreServer(user.Email, user.Salt, user.Verifier, session.ServerPrivateKey)
	if err := server.SetClientPublicKey(session.ClientPublicKey); err != nil {
		s.logger.Warn(ctx, "login2: invalid client public key", "identifier", identifier)
		return nil, errAuthFailed
	}
	if _, err := server.VerifyClientProof(clientProof); err != nil {
		s.logger.Warn(ctx, "login2: proof mismatch", "identifier", identifier)
		return nil, errAuthFailed
	}

	if user.MFAEnabled {
		return s.issueMFAChallenge(ctx, user)
	}

	return s.finishLogin(ctx, user, ip, userAgent)
}

// issueMFAChallenge mints the short-lived MFA token and emails a one-time
// numeric code; token issuance is deferred to VerifyMFA.
func (s *LoginService) issueMFAChallenge(ctx context.Context, user *models.User) (*LoginResult, error) {
	token, err := auth.Sign(auth.Claims{
		TokenType: auth.TokenMFA,
		UserID:    user.ID,
	}, []byte(s.cfg.JWTMFASecret), s.cfg.MFATokenTTL)
	if err != nil {
		return nil, err
	}

	code, err := common.MakeRandNumericCode(mfaCodeDigits)
	if err != nil {
		return nil, err
	}
	codeSalt := common.GenerateRandByteArray(16)
	codeHash := cryptox.HashSecret([]byte(code), codeSalt)

	expiresAt := time.Now().Add(s.cfg.MFATokenTTL)
	if err := s.repos.Users(s.db).SetMFACode(ctx, user.ID, codeHash, codeSalt, expiresAt); err != nil {
		return nil, err
	}

	if err := s.mailer.SendMFACode(ctx, user.Email, code); err != nil {
		s.logger.Error(ctx, "sending mfa code failed", "email", user.Email, "error", err.Error())
	}

	return &LoginResult{MFAEnabled: true, MFAToken: token}, nil
}

// VerifyMFA validates the challenge token plus the emailed code and then
// performs the same issuance as a non-MFA Login2. The stored code is
// consumed on every attempt, so a wrong guess burns the challenge.
func (s *LoginService) VerifyMFA(ctx context.Context, email, mfaToken, code, ip, userAgent string) (*LoginResult, error) {
	repo := s.repos.Users(s.db)

	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Warn(ctx, "mfa: unknown email", "email", email)
		return nil, errAuthFailed
	}

	claims, err := auth.Parse(mfaToken, []byte(s.cfg.JWTMFASecret), auth.TokenMFA)
	if err != nil || claims.UserID != user.ID {
		s.logger.Warn(ctx, "mfa: invalid challenge token", "email", email)
		return nil, errAuthFailed
	}

	hash, salt, expiresAt, err := repo.GetMFACode(ctx, user.ID)
	if err != nil {
		s.logger.Warn(ctx, "mfa: no pending code", "email", email)
		return nil, errAuthFailed
	}
	if err := repo.ConsumeMFACode(ctx, user.ID); err != nil {
		return nil, err
	}
	if time.Now().After(expiresAt) || !cryptox.VerifySecret([]byte(code), salt, hash) {
		s.logger.Warn(ctx, "mfa: code rejected", "email", email)
		return nil, errAuthFailed
	}

	return s.finishLogin(ctx, user, ip, userAgent)
}

// finishLogin runs the device-fingerprint check and issues the token pair
// plus the user's key material.
func (s *LoginService) finishLogin(ctx context.Context, user *models.User, ip, userAgent string) (*LoginResult, error) {
	if !user.HasDevice(ip, userAgent) {
		device := models.Device{IP: ip, UserAgent: userAgent}
		if err := s.repos.Users(s.db).AddDevice(ctx, user.ID, device); err != nil {
			return nil, err
		}
		if err := s.mailer.SendNewDeviceAlert(ctx, user.Email, ip, userAgent); err != nil {
			s.logger.Error(ctx, "sending device alert failed", "email", user.Email, "error", err.Error())
		}
	}

	pair, err := s.tokens.Issue(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:         pair.AccessToken,
		RefreshToken:        pair.RefreshToken,
		EncryptionVersion:   user.EncryptionVersion,
		PublicKey:           user.PublicKey,
		EncryptedPrivateKey: user.EncryptedPrivateKey,
		PrivateKeyIV:        user.PrivateKeyIV,
		PrivateKeyTag:       user.PrivateKeyTag,
		ProtectedKey:        user.ProtectedKey,
		ProtectedKeyIV:      user.ProtectedKeyIV,
		ProtectedKeyTag:     user.ProtectedKeyTag,
	}, nil
}

// CompleteSignup turns a verified signup token into a full user record and
// logs the new user in. The signup token is minted by the (external)
// email-verification flow and carries the verified address.
func (s *LoginService) CompleteSignup(ctx context.Context, signupToken string, reg *Registration, ip, userAgent string) (*LoginResult, error) {
	claims, err := auth.Parse(signupToken, []byte(s.cfg.JWTSignupSecret), auth.TokenSignup)
	if err != nil {
		return nil, err
	}
	email := claims.Subject
	if email == "" {
		return nil, fmt.Errorf("signup token without subject: %w", common.ErrBadRequest)
	}
	if len(reg.Salt) == 0 || len(reg.Verifier) == 0 || reg.PublicKey == "" {
		return nil, fmt.Errorf("incomplete registration material: %w", common.ErrBadRequest)
	}

	user := &models.User{
		Email:               email,
		Salt:                reg.Salt,
		Verifier:            reg.Verifier,
		PublicKey:           reg.PublicKey,
		EncryptedPrivateKey: reg.EncryptedPrivateKey,
		PrivateKeyIV:        reg.PrivateKeyIV,
		PrivateKeyTag:       reg.PrivateKeyTag,
		ProtectedKey:        reg.ProtectedKey,
		ProtectedKeyIV:      reg.ProtectedKeyIV,
		ProtectedKeyTag:     reg.ProtectedKeyTag,
		EncryptionVersion:   reg.EncryptionVersion,
	}
	user, err = s.repos.Users(s.db).Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return s.finishLogin(ctx, user, ip, userAgent)
}

// ChangePassword re-verifies an SRP proof for the pending session (started
// by a regular Login1), swaps the SRP material and private-key envelope in
// one update, and revokes every outstanding session token of the user.
func (s *LoginService) ChangePassword(ctx context.Context, userID string, clientProof []byte, keys *usersrepo.AuthKeys) error {
	repo := s.repos.Users(s.db)

	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return errAuthFailed
	}

	session, err := s.repos.SRPSessions(s.db).TakeAndDelete(ctx, user.Email)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			return errAuthFailed
		}
		return err
	}

	server := srp.RestoreServer(user.Email, user.Salt, user.Verifier, session.ServerPrivateKey)
	if err := server.SetClientPublicKey(session.ClientPublicKey); err != nil {
		return errAuthFailed
	}
	if _, err := server.VerifyClientProof(clientProof); err != nil {
		s.logger.Warn(ctx, "password change: proof mismatch", "userId", userID)
		return errAuthFailed
	}

	if err := repo.UpdateAuthKeys(ctx, userID, keys); err != nil {
		return err
	}

	// Every device's tokens die with the old password.
	return s.tokens.RevokeAllForUser(ctx, userID)
}
