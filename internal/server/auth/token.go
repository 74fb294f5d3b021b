// Package auth defines the signed-token classes used across the platform
// and the sign/parse primitives for them.
//
// Every JWT carries an explicit authTokenType claim. Parsing always names
// the expected class and rejects any mismatch, even when the signature
// verifies; this is the defense against presenting, say, a refresh or MFA
// token where an access token is expected. Each class is signed with its
// own secret, so a cross-class forgery additionally fails verification.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keyfold/keyfold/internal/common"
)

// TokenType discriminates the payload variants.
type TokenType string

const (
	TokenAccess         TokenType = "accessToken"
	TokenRefresh        TokenType = "refreshToken"
	TokenMFA            TokenType = "mfaToken"
	TokenSignup         TokenType = "signupToken"
	TokenProvider       TokenType = "providerToken"
	TokenAPIKey         TokenType = "apiKey"
	TokenServiceAccess  TokenType = "serviceAccessToken"
	TokenIdentityAccess TokenType = "identityAccessToken"
	// TokenMachineAccess is the pre-rename claim value still carried by
	// machine tokens minted before identities absorbed them. Semantics are
	// identical to TokenIdentityAccess.
	TokenMachineAccess TokenType = "machineAccessToken"
)

// Claims is the union of all token payloads. TokenType selects which of
// the optional fields are meaningful; validators go through Parse with the
// class they expect and read only that class's fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"authTokenType"`

	// Session tokens (access/refresh/mfa/signup/provider).
	UserID         string `json:"userId,omitempty"`
	TokenVersionID string `json:"tokenVersionId,omitempty"`
	AccessVersion  int    `json:"accessVersion"`
	RefreshVersion int    `json:"refreshVersion"`

	// JWT-encoded API keys (v2).
	APIKeyID string `json:"apiKeyId,omitempty"`

	// Service-account access tokens.
	ServiceAccountID string `json:"serviceAccountId,omitempty"`
	TokenVersion     int    `json:"tokenVersion"`

	// Machine/identity access tokens.
	IdentityID            string `json:"identityId,omitempty"`
	IdentityAccessTokenID string `json:"identityAccessTokenId,omitempty"`
}

// Sign mints an HS256 token for the given claims with the given lifetime.
// A zero lifetime produces a token without an expiry claim (used for
// identity access tokens, whose expiry lives in the database row).
func Sign(claims Claims, secret []byte, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if lifetime > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(lifetime))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing %s: %w", claims.TokenType, err)
	}
	return signed, nil
}

// Parse verifies the signature and lifetime of a token and requires its
// authTokenType claim to equal want. Expired tokens yield ErrTokenExpired,
// any other verification failure ErrInvalidToken, and a verified token of
// the wrong class ErrUnauthorized; all three satisfy errors.Is against
// common.ErrUnauthorized at the HTTP boundary via the resolver.
func Parse(tokenString string, secret []byte, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("token type %q where %q expected: %w", claims.TokenType, want, common.ErrUnauthorized)
	}
	return claims, nil
}

// PeekType decodes a token's authTokenType claim without verifying the
// signature. The resolver uses it only to dispatch to the right validator,
// which then re-parses with that validator's secret and expected type.
func PeekType(tokenString string) (TokenType, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrBadRequest, err)
	}
	if claims.TokenType == "" {
		return "", fmt.Errorf("missing authTokenType claim: %w", common.ErrUnauthorized)
	}
	return claims.TokenType, nil
}
