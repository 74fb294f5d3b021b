package models

import "time"

// APIKey is a long-lived personal credential presented in the X-API-KEY
// header as "<id>.<secret>". Only the Argon2id hash of the secret is
// stored. A nil ExpiresAt means the key never expires.
type APIKey struct {
	ID         string
	UserID     string
	Name       string
	SecretHash []byte
	SecretSalt []byte
	ExpiresAt  *time.Time
	LastUsed   time.Time
	CreatedAt  time.Time
}

// ServiceToken is a workspace-scoped opaque credential presented as
// "st.<id>.<secret>" in the Authorization header.
type ServiceToken struct {
	ID          string
	WorkspaceID string
	CreatedBy   string
	Name        string
	SecretHash  []byte
	SecretSalt  []byte
	ExpiresAt   *time.Time
	LastUsed    time.Time
	CreatedAt   time.Time
}

// ServiceAccount is an organization-scoped opaque credential presented as
// "sa.<id>.<secret>". Unlike service tokens it carries a revocation counter
// so its derived JWTs can be bulk-invalidated.
type ServiceAccount struct {
	ID           string
	OrgID        string
	Name         string
	SecretHash   []byte
	SecretSalt   []byte
	ExpiresAt    *time.Time
	TokenVersion int
	LastUsed     time.Time
	CreatedAt    time.Time
}

// Identity is a machine/workload principal owned by an organization.
type Identity struct {
	ID        string
	OrgID     string
	Name      string
	CreatedAt time.Time
}

// IdentityAccessToken is the stored side of a machine/identity access
// token JWT. TTL is measured from the later of CreatedAt and
// LastRenewedAt; MaxTTL is a hard ceiling from CreatedAt. A zero
// UsageLimit means unlimited.
type IdentityAccessToken struct {
	ID            string
	IdentityID    string
	TTL           time.Duration
	MaxTTL        time.Duration
	UsageLimit    int
	UsageCount    int
	IPAllowlist   []string
	TokenVersion  int
	LastRenewedAt *time.Time
	LastUsed      time.Time
	CreatedAt     time.Time
}

// ExpiresAt returns when the token's sliding TTL window closes, or the
// zero time when no TTL is configured.
func (t *IdentityAccessToken) ExpiresAt() time.Time {
	if t.TTL == 0 {
		return time.Time{}
	}
	from := t.CreatedAt
	if t.LastRenewedAt != nil && t.LastRenewedAt.After(from) {
		from = *t.LastRenewedAt
	}
	return from.Add(t.TTL)
}

// HardExpiresAt returns when the max-TTL ceiling closes, or the zero time
// when no ceiling is configured.
func (t *IdentityAccessToken) HardExpiresAt() time.Time {
	if t.MaxTTL == 0 {
		return time.Time{}
	}
	return t.CreatedAt.Add(t.MaxTTL)
}

// AllowsIP reports whether the caller's address passes the allowlist.
// An empty allowlist admits every address.
func (t *IdentityAccessToken) AllowsIP(ip string) bool {
	if len(t.IPAllowlist) == 0 {
		return true
	}
	for _, allowed := range t.IPAllowlist {
		if allowed == ip {
			return true
		}
	}
	return false
}
