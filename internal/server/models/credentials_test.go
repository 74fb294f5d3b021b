package models

import (
	"testing"
	"time"
)

func TestIdentityAccessToken_ExpiresAt(t *testing.T) {
	t.Parallel()

	created := time.Now().Add(-2 * time.Hour)

	tok := &IdentityAccessToken{CreatedAt: created}
	if !tok.ExpiresAt().IsZero() {
		t.Fatalf("zero TTL must not expire")
	}

	tok.TTL = time.Hour
	if got, want := tok.ExpiresAt(), created.Add(time.Hour); !got.Equal(want) {
		t.Fatalf("ExpiresAt: got %v want %v", got, want)
	}

	// A renewal restarts the window from the renewal time.
	renewed := time.Now().Add(-10 * time.Minute)
	tok.LastRenewedAt = &renewed
	if got, want := tok.ExpiresAt(), renewed.Add(time.Hour); !got.Equal(want) {
		t.Fatalf("ExpiresAt after renewal: got %v want %v", got, want)
	}
}

func TestIdentityAccessToken_HardExpiresAt(t *testing.T) {
	t.Parallel()

	created := time.Now().Add(-2 * time.Hour)
	renewed := time.Now()

	tok := &IdentityAccessToken{CreatedAt: created, LastRenewedAt: &renewed}
	if !tok.HardExpiresAt().IsZero() {
		t.Fatalf("zero MaxTTL must not impose a ceiling")
	}

	// The ceiling counts from creation; renewals do not move it.
	tok.MaxTTL = 3 * time.Hour
	if got, want := tok.HardExpiresAt(), created.Add(3*time.Hour); !got.Equal(want) {
		t.Fatalf("HardExpiresAt: got %v want %v", got, want)
	}
}

func TestIdentityAccessToken_AllowsIP(t *testing.T) {
	t.Parallel()

	open := &IdentityAccessToken{}
	if !open.AllowsIP("any.address") {
		t.Fatalf("empty allowlist must admit everyone")
	}

	restricted := &IdentityAccessToken{IPAllowlist: []string{"10.0.0.1", "10.0.0.2"}}
	if !restricted.AllowsIP("10.0.0.2") {
		t.Fatalf("listed ip rejected")
	}
	if restricted.AllowsIP("10.0.0.3") {
		t.Fatalf("unlisted ip admitted")
	}
}

func TestUser_HasDevice(t *testing.T) {
	t.Parallel()

	u := &User{Devices: []Device{{IP: "10.0.0.1", UserAgent: "cli/1.0"}}}

	if !u.HasDevice("10.0.0.1", "cli/1.0") {
		t.Fatalf("known device not recognized")
	}
	if u.HasDevice("10.0.0.1", "browser/2.0") {
		t.Fatalf("user agent ignored in device match")
	}
	if u.HasDevice("10.0.0.2", "cli/1.0") {
		t.Fatalf("ip ignored in device match")
	}
}
