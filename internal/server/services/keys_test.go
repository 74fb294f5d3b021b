package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/cryptox"
	"github.com/keyfold/keyfold/internal/cryptox/rootkey"
	"github.com/keyfold/keyfold/internal/server/models"
)

const testLegacyKey = "0123456789abcdef0123456789abcdef"

func testRootProvider(t *testing.T) *rootkey.Provider {
	t.Helper()
	current := base64.StdEncoding.EncodeToString(common.GenerateRandByteArray(32))
	p, err := rootkey.NewProvider(testLegacyKey, current)
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	return p
}

// wrapUnder creates an envelope for plaintext under the given root key.
func wrapUnder(t *testing.T, root, plaintext []byte) (ciphertext, iv, tag []byte) {
	t.Helper()
	ciphertext, iv, tag, err := cryptox.Encrypt(root, plaintext)
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	return ciphertext, iv, tag
}

func TestProvisionBotAndGetSymmetricKey(t *testing.T) {
	rm := newFakeRepoManager()
	roots := testRootProvider(t)
	svc := NewKeyService(nil, rm, roots)
	ctx := context.Background()

	bot, err := svc.ProvisionBot(ctx, "org1", "org1-bot")
	if err != nil {
		t.Fatalf("ProvisionBot error: %v", err)
	}
	if bot.KeyEncoding != rootkey.EncodingCurrent {
		t.Fatalf("new bot wrapped under %q", bot.KeyEncoding)
	}

	key, err := svc.GetSymmetricKey(ctx, "org1")
	if err != nil {
		t.Fatalf("GetSymmetricKey error: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("key length: got %d want 32", len(key))
	}

	again, err := svc.GetSymmetricKey(ctx, "org1")
	if err != nil {
		t.Fatalf("GetSymmetricKey error: %v", err)
	}
	if !bytes.Equal(key, again) {
		t.Fatalf("unwrapped key not stable")
	}
}

func TestGetSymmetricKey_LegacyEnvelope(t *testing.T) {
	rm := newFakeRepoManager()
	roots := testRootProvider(t)
	svc := NewKeyService(nil, rm, roots)
	ctx := context.Background()

	plain := common.GenerateRandByteArray(32)
	legacy, _ := roots.Legacy()
	ciphertext, iv, tag := wrapUnder(t, legacy, plain)

	rm.bots.bots["org1"] = &models.Bot{
		ID: "b1", OrgID: "org1",
		EncryptedKey: ciphertext, KeyIV: iv, KeyTag: tag,
		KeyEncoding: rootkey.EncodingLegacy,
	}

	key, err := svc.GetSymmetricKey(ctx, "org1")
	if err != nil {
		t.Fatalf("GetSymmetricKey error: %v", err)
	}
	if !bytes.Equal(key, plain) {
		t.Fatalf("legacy envelope decrypted wrong")
	}
}

func TestGetSymmetricKey_NoBot(t *testing.T) {
	rm := newFakeRepoManager()
	svc := NewKeyService(nil, rm, testRootProvider(t))

	_, err := svc.GetSymmetricKey(context.Background(), "org-without-bot")
	if !errors.Is(err, common.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestProvisionBlindIndexSalt(t *testing.T) {
	rm := newFakeRepoManager()
	roots := testRootProvider(t)
	svc := NewKeyService(nil, rm, roots)

	row, err := svc.ProvisionBlindIndexSalt(context.Background(), "org1")
	if err != nil {
		t.Fatalf("ProvisionBlindIndexSalt error: %v", err)
	}
	if row.KeyEncoding != rootkey.EncodingCurrent {
		t.Fatalf("salt wrapped under %q", row.KeyEncoding)
	}

	current, _ := roots.Current()
	plain, err := cryptox.Decrypt(current, row.EncryptedSalt, row.SaltIV, row.SaltTag)
	if err != nil {
		t.Fatalf("Decrypt error: %v", err)
	}
	if len(plain) != 32 {
		t.Fatalf("salt length: got %d want 32", len(plain))
	}
}
