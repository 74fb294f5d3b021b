// Package rootkey resolves which root encryption key wraps a stored
// symmetric key. Two schemes coexist: the legacy 128-bit hex key (whose
// 32 ASCII hex characters are used directly as the AES-256 key, kept for
// compatibility with data written under it) and the current 256-bit
// base64-encoded key. The Encoding tag stored next to each ciphertext
// selects the scheme; the two values form a closed variant.
package rootkey

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/keyfold/keyfold/internal/common"
)

// Encoding discriminates which root key a ciphertext was wrapped under.
type Encoding string

const (
	// EncodingLegacy tags data wrapped under the hex-128 key.
	EncodingLegacy Encoding = "utf8"
	// EncodingCurrent tags data wrapped under the base64-256 key.
	EncodingCurrent Encoding = "base64"
)

// Provider holds the configured root keys. Either may be absent; ForEncoding
// fails when the requested scheme has no key, which is a deployment
// misconfiguration rather than a transient condition.
type Provider struct {
	legacy  []byte
	current []byte
}

// NewProvider validates and decodes the configured key strings. Empty
// strings mean "not configured". The legacy key must be exactly 32 hex
// characters; the current key must base64-decode to 32 bytes.
func NewProvider(legacyHex, currentBase64 string) (*Provider, error) {
	p := &Provider{}

	if legacyHex != "" {
		if len(legacyHex) != 32 {
			return nil, fmt.Errorf("legacy encryption key must be 32 hex chars, got %d", len(legacyHex))
		}
		if _, err := hex.DecodeString(legacyHex); err != nil {
			return nil, fmt.Errorf("legacy encryption key is not valid hex: %w", err)
		}
		// The hex text itself is the key material, matching data written
		// under the original scheme.
		p.legacy = []byte(legacyHex)
	}

	if currentBase64 != "" {
		key, err := base64.StdEncoding.DecodeString(currentBase64)
		if err != nil {
			return nil, fmt.Errorf("root encryption key is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("root encryption key must decode to 32 bytes, got %d", len(key))
		}
		p.current = key
	}

	if p.legacy == nil && p.current == nil {
		return nil, fmt.Errorf("no root encryption key configured: %w", common.ErrInternal)
	}

	return p, nil
}

// Legacy returns the legacy root key if configured.
func (p *Provider) Legacy() ([]byte, bool) { return p.legacy, p.legacy != nil }

// Current returns the current root key if configured.
func (p *Provider) Current() ([]byte, bool) { return p.current, p.current != nil }

// HasBoth reports whether the deployment is in the dual-key transition
// window required by the re-encryption migration.
func (p *Provider) HasBoth() bool { return p.legacy != nil && p.current != nil }

// PreferredEncoding returns the encoding new data should be written under:
// the current scheme whenever its key is configured.
func (p *Provider) PreferredEncoding() Encoding {
	if p.current != nil {
		return EncodingCurrent
	}
	return EncodingLegacy
}

// ForEncoding returns the root key matching a stored encoding tag.
func (p *Provider) ForEncoding(enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingLegacy:
		if p.legacy == nil {
			return nil, fmt.Errorf("data tagged %q but legacy key not configured: %w", enc, common.ErrInternal)
		}
		return p.legacy, nil
	case EncodingCurrent:
		if p.current == nil {
			return nil, fmt.Errorf("data tagged %q but root key not configured: %w", enc, common.ErrInternal)
		}
		return p.current, nil
	default:
		return nil, fmt.Errorf("unknown key encoding %q: %w", enc, common.ErrInternal)
	}
}
