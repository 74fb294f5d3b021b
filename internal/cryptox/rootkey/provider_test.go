package rootkey

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/keyfold/keyfold/internal/common"
)

const legacyKey = "0123456789abcdef0123456789abcdef"

func currentKey(t *testing.T) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString(common.GenerateRandByteArray(32))
}

func TestNewProvider_BothKeys(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(legacyKey, currentKey(t))
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	if !p.HasBoth() {
		t.Fatalf("HasBoth false with both keys configured")
	}
	if p.PreferredEncoding() != EncodingCurrent {
		t.Fatalf("preferred encoding: got %q", p.PreferredEncoding())
	}

	legacy, ok := p.Legacy()
	if !ok || !bytes.Equal(legacy, []byte(legacyKey)) {
		t.Fatalf("legacy key must be the raw hex text, got %q", legacy)
	}
	current, ok := p.Current()
	if !ok || len(current) != 32 {
		t.Fatalf("current key: ok=%v len=%d", ok, len(current))
	}
}

func TestNewProvider_LegacyOnly(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(legacyKey, "")
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	if p.PreferredEncoding() != EncodingLegacy {
		t.Fatalf("preferred encoding: got %q", p.PreferredEncoding())
	}
	if _, err := p.ForEncoding(EncodingCurrent); err == nil {
		t.Fatalf("expected error for unconfigured current key")
	}
}

func TestNewProvider_Invalid(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		legacy  string
		current string
	}{
		"neither configured":   {"", ""},
		"legacy too short":     {"abcd", ""},
		"legacy not hex":       {"zz23456789abcdef0123456789abcdef", ""},
		"current not base64":   {"", "!!not-base64!!"},
		"current wrong length": {"", base64.StdEncoding.EncodeToString([]byte("short"))},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewProvider(tc.legacy, tc.current); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestForEncoding(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(legacyKey, currentKey(t))
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}

	legacy, err := p.ForEncoding(EncodingLegacy)
	if err != nil {
		t.Fatalf("ForEncoding(legacy) error: %v", err)
	}
	current, err := p.ForEncoding(EncodingCurrent)
	if err != nil {
		t.Fatalf("ForEncoding(current) error: %v", err)
	}
	if bytes.Equal(legacy, current) {
		t.Fatalf("encodings resolved to the same key")
	}
	if _, err := p.ForEncoding(Encoding("bogus")); err == nil {
		t.Fatalf("expected error for unknown encoding")
	}
}
