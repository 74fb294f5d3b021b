package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/cryptox"
	"github.com/keyfold/keyfold/internal/cryptox/rootkey"
	"github.com/keyfold/keyfold/internal/server/models"
)

// The migration only uses the database handle for transaction demarcation;
// row access goes through the fakes.
func newTxDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func seedLegacyRows(t *testing.T, rm *fakeRepoManager, roots *rootkey.Provider) (botKey, saltKey []byte) {
	t.Helper()
	legacy, _ := roots.Legacy()

	botKey = common.GenerateRandByteArray(32)
	c, iv, tag := wrapUnder(t, legacy, botKey)
	rm.bots.bots["org1"] = &models.Bot{
		ID: "b1", OrgID: "org1",
		EncryptedKey: c, KeyIV: iv, KeyTag: tag,
		KeyEncoding: rootkey.EncodingLegacy,
	}

	saltKey = common.GenerateRandByteArray(32)
	c, iv, tag = wrapUnder(t, legacy, saltKey)
	rm.bots.salts["org1"] = &models.BlindIndexSalt{
		ID: "s1", OrgID: "org1",
		EncryptedSalt: c, SaltIV: iv, SaltTag: tag,
		KeyEncoding: rootkey.EncodingLegacy,
	}
	return botKey, saltKey
}

func TestReencryption_RewrapsLegacyRows(t *testing.T) {
	rm := newFakeRepoManager()
	roots := testRootProvider(t)
	db, mock := newTxDB(t)
	defer db.Close()

	botKey, saltKey := seedLegacyRows(t, rm, roots)

	// A row already under the current key must not be touched.
	current, _ := roots.Current()
	c, iv, tag := wrapUnder(t, current, common.GenerateRandByteArray(32))
	rm.bots.bots["org2"] = &models.Bot{
		ID: "b2", OrgID: "org2",
		EncryptedKey: c, KeyIV: iv, KeyTag: tag,
		KeyEncoding: rootkey.EncodingCurrent,
	}

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := NewReencryptionMigration(db, rm, roots, nopLogger{})
	n, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if n != 2 {
		t.Fatalf("migrated: got %d want 2", n)
	}

	bot := rm.bots.bots["org1"]
	if bot.KeyEncoding != rootkey.EncodingCurrent {
		t.Fatalf("bot still tagged %q", bot.KeyEncoding)
	}
	got, err := cryptox.Decrypt(current, bot.EncryptedKey, bot.KeyIV, bot.KeyTag)
	if err != nil {
		t.Fatalf("Decrypt rewrapped bot key: %v", err)
	}
	if !bytes.Equal(got, botKey) {
		t.Fatalf("bot key changed during rewrap")
	}

	saltRow := rm.bots.salts["org1"]
	got, err = cryptox.Decrypt(current, saltRow.EncryptedSalt, saltRow.SaltIV, saltRow.SaltTag)
	if err != nil {
		t.Fatalf("Decrypt rewrapped salt: %v", err)
	}
	if !bytes.Equal(got, saltKey) {
		t.Fatalf("salt changed during rewrap")
	}

	if len(rm.bots.botUpdates) != 1 {
		t.Fatalf("expected exactly one bot update, got %d", len(rm.bots.botUpdates))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReencryption_Idempotent(t *testing.T) {
	rm := newFakeRepoManager()
	roots := testRootProvider(t)
	db, mock := newTxDB(t)
	defer db.Close()

	seedLegacyRows(t, rm, roots)

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	m := NewReencryptionMigration(db, rm, roots, nopLogger{})
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	n, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n != 0 {
		t.Fatalf("second run migrated %d rows", n)
	}
}

func TestReencryption_NoLegacyKeyCleanState(t *testing.T) {
	rm := newFakeRepoManager()
	current := base64.StdEncoding.EncodeToString(common.GenerateRandByteArray(32))
	roots, err := rootkey.NewProvider("", current)
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}

	m := NewReencryptionMigration(nil, rm, roots, nopLogger{})
	n, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if n != 0 {
		t.Fatalf("migrated %d rows with nothing to do", n)
	}
}

// Legacy-tagged rows without a legacy key are unrecoverable; startup must
// fail loudly rather than serve broken orgs.
func TestReencryption_NoLegacyKeyWithLegacyRows(t *testing.T) {
	rm := newFakeRepoManager()
	currentStr := base64.StdEncoding.EncodeToString(common.GenerateRandByteArray(32))
	roots, err := rootkey.NewProvider("", currentStr)
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}

	rm.bots.bots["org1"] = &models.Bot{
		ID: "b1", OrgID: "org1", KeyEncoding: rootkey.EncodingLegacy,
	}

	m := NewReencryptionMigration(nil, rm, roots, nopLogger{})
	if _, err := m.Run(context.Background()); !errors.Is(err, common.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}

func TestReencryption_LegacyOnlyDeployment(t *testing.T) {
	rm := newFakeRepoManager()
	roots, err := rootkey.NewProvider(testLegacyKey, "")
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	seedLegacyRows(t, rm, roots)

	m := NewReencryptionMigration(nil, rm, roots, nopLogger{})
	n, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if n != 0 {
		t.Fatalf("migrated %d rows with no current key", n)
	}
	if rm.bots.bots["org1"].KeyEncoding != rootkey.EncodingLegacy {
		t.Fatalf("row rewrapped without a target key")
	}
}
