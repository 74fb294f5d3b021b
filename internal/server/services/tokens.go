// Package services contains the server-side authentication core: the SRP
// exchange engine, the token version ledger, the credential resolver, the
// envelope key service and the root-key re-encryption migration.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/server/auth"
	"github.com/keyfold/keyfold/internal/server/config"
	"github.com/keyfold/keyfold/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh
// token minted against one token-version row.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService is the token version ledger. Tokens embed the counter value
// current at mint time; a token stays valid only while its embedded value
// equals the row's counter, so revocation is a counter bump rather than a
// blocklist entry.
type TokenService struct {
	db    *sql.DB
	repos repomanager.RepositoryManager

	authSecret    []byte
	refreshSecret []byte
	cfg           *config.Config
}

// NewTokenService constructs a TokenService from repositories and config.
func NewTokenService(db *sql.DB, repos repomanager.RepositoryManager, cfg *config.Config) *TokenService {
	return &TokenService{
		db:            db,
		repos:         repos,
		authSecret:    []byte(cfg.JWTAuthSecret),
		refreshSecret: []byte(cfg.JWTRefreshSecret),
		cfg:           cfg,
	}
}

// Issue finds or creates the token-version row for the exact
// (user, ip, userAgent) triple and mints both tokens against its current
// counters. Issuance never mutates the counters; only revocation does.
func (s *TokenService) Issue(ctx context.Context, userID, ip, userAgent string) (*TokenPair, error) {
	tv, err := s.repos.TokenVersions(s.db).FindOrCreate(ctx, userID, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("finding token version: %w", err)
	}

	access, err := auth.Sign(auth.Claims{
		TokenType:      auth.TokenAccess,
		UserID:         userID,
		TokenVersionID: tv.ID,
		AccessVersion:  tv.AccessVersion,
	}, s.authSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := auth.Sign(auth.Claims{
		TokenType:      auth.TokenRefresh,
		UserID:         userID,
		TokenVersionID: tv.ID,
		RefreshVersion: tv.RefreshVersion,
	}, s.refreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh validates a refresh token against the ledger and mints a fresh
// access token using the row's current access counter, not the one that was
// current when the refresh token itself was minted.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := auth.Parse(refreshToken, s.refreshSecret, auth.TokenRefresh)
	if err != nil {
		return "", err
	}

	tv, err := s.repos.TokenVersions(s.db).GetByID(ctx, claims.TokenVersionID)
	if err != nil {
		if errors.Is(err, common.ErrResourceNotFound) {
			return "", fmt.Errorf("token version row absent: %w", common.ErrUnauthorized)
		}
		return "", err
	}
	if claims.RefreshVersion != tv.RefreshVersion {
		return "", fmt.Errorf("refresh token revoked: %w", common.ErrUnauthorized)
	}

	return auth.Sign(auth.Claims{
		TokenType:      auth.TokenAccess,
		UserID:         claims.UserID,
		TokenVersionID: tv.ID,
		AccessVersion:  tv.AccessVersion,
	}, s.authSecret, s.cfg.AccessTokenTTL)
}

// Revoke bumps both counters on one token-version row, invalidating every
// access and refresh token previously minted against it. Rows for the
// user's other devices are untouched.
func (s *TokenService) Revoke(ctx context.Context, tokenVersionID string) error {
	return s.repos.TokenVersions(s.db).Revoke(ctx, tokenVersionID)
}

// RevokeAllForUser bumps the counters on every device row of one user.
// Used on password change and suspected account compromise.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.repos.TokenVersions(s.db).RevokeAllForUser(ctx, userID)
}
