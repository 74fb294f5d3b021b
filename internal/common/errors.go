// Package common defines shared constants and sentinel errors used across
// the Keyfold server layers. Callers should use errors.Is to match these
// values; the HTTP boundary maps them onto status codes.
package common

import "errors"

var (
	// Request-shape errors (malformed or missing header/body). Mapped to 400.
	ErrBadRequest = errors.New("bad request")

	// Any authentication failure: invalid signature, wrong token-type claim,
	// version/revocation mismatch, expiry, TTL or usage-limit exhaustion.
	// Mapped to 401. Messages wrapped around this sentinel exist for operator
	// logs; the status seen by the caller is the same for all of them.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAccountNotFound is raised when a login identifier resolves to no
	// user record. In auth contexts it maps to 401 like ErrUnauthorized.
	ErrAccountNotFound = errors.New("account not found")

	// ErrResourceNotFound covers absent or already-deleted credential rows.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrInternal signals a server-side misconfiguration or unexpected
	// failure (e.g. no usable root encryption key). Mapped to 500.
	ErrInternal = errors.New("internal error")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
