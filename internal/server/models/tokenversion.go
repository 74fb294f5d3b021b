package models

import "time"

// TokenVersion is the per-device revocation counter record: one row per
// distinct (user, ip, user-agent) triple. A bearer token is valid iff the
// version embedded in it equals the row's current counter for its class.
// Revocation bumps the counters and never deletes the row, invalidating
// every token minted against the old value in O(1).
type TokenVersion struct {
	ID             string
	UserID         string
	IP             string
	UserAgent      string
	AccessVersion  int
	RefreshVersion int
	LastUsed       time.Time
	CreatedAt      time.Time
}
