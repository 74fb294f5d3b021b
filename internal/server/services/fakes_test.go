package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/keyfold/keyfold/internal/common"
	"github.com/keyfold/keyfold/internal/cryptox/rootkey"
	"github.com/keyfold/keyfold/internal/dbx"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/server/models"
	"github.com/keyfold/keyfold/internal/server/repositories/apikeys"
	"github.com/keyfold/keyfold/internal/server/repositories/bots"
	"github.com/keyfold/keyfold/internal/server/repositories/identities"
	"github.com/keyfold/keyfold/internal/server/repositories/serviceaccounts"
	"github.com/keyfold/keyfold/internal/server/repositories/servicetokens"
	"github.com/keyfold/keyfold/internal/server/repositories/srpsessions"
	"github.com/keyfold/keyfold/internal/server/repositories/tokenversions"
	usersrepo "github.com/keyfold/keyfold/internal/server/repositories/users"
)

// In-memory fakes backing the service tests. They implement the repository
// contracts over plain maps, ignoring the DBTX handle.

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (l nopLogger) With(...any) logging.Logger          { return l }

type fakeMailer struct {
	mfaCodes     []string
	deviceAlerts int
}

func (m *fakeMailer) SendMFACode(_ context.Context, _ string, code string) error {
	m.mfaCodes = append(m.mfaCodes, code)
	return nil
}

func (m *fakeMailer) SendNewDeviceAlert(_ context.Context, _, _, _ string) error {
	m.deviceAlerts++
	return nil
}

type mfaState struct {
	hash      []byte
	salt      []byte
	expiresAt time.Time
}

type fakeUsersRepo struct {
	users map[string]*models.User // keyed by id
	mfa   map[string]*mfaState

	updatedKeys map[string]*usersrepo.AuthKeys
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{
		users:       map[string]*models.User{},
		mfa:         map[string]*mfaState{},
		updatedKeys: map[string]*usersrepo.AuthKeys{},
	}
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if u.ID == "" {
		u.ID = fmt.Sprintf("u%d", len(f.users)+1)
	}
	u.CreatedAt = time.Now()
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrResourceNotFound
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, common.ErrResourceNotFound
}

func (f *fakeUsersRepo) UpdateAuthKeys(_ context.Context, id string, keys *usersrepo.AuthKeys) error {
	u, ok := f.users[id]
	if !ok {
		return common.ErrResourceNotFound
	}
	u.Salt = keys.Salt
	u.Verifier = keys.Verifier
	f.updatedKeys[id] = keys
	return nil
}

func (f *fakeUsersRepo) AddDevice(_ context.Context, id string, device models.Device) error {
	u, ok := f.users[id]
	if !ok {
		return common.ErrResourceNotFound
	}
	u.Devices = append(u.Devices, device)
	return nil
}

func (f *fakeUsersRepo) SetMFACode(_ context.Context, id string, hash, salt []byte, expiresAt time.Time) error {
	f.mfa[id] = &mfaState{hash: hash, salt: salt, expiresAt: expiresAt}
	return nil
}

func (f *fakeUsersRepo) GetMFACode(_ context.Context, id string) ([]byte, []byte, time.Time, error) {
	st, ok := f.mfa[id]
	if !ok {
		return nil, nil, time.Time{}, common.ErrResourceNotFound
	}
	return st.hash, st.salt, st.expiresAt, nil
}

func (f *fakeUsersRepo) ConsumeMFACode(_ context.Context, id string) error {
	delete(f.mfa, id)
	return nil
}

type fakeTokenVersionsRepo struct {
	rows    map[string]*models.TokenVersion // keyed by id
	nextID  int
	touched []string
}

func newFakeTokenVersionsRepo() *fakeTokenVersionsRepo {
	return &fakeTokenVersionsRepo{rows: map[string]*models.TokenVersion{}}
}

func (f *fakeTokenVersionsRepo) FindOrCreate(_ context.Context, userID, ip, userAgent string) (*models.TokenVersion, error) {
	for _, tv := range f.rows {
		if tv.UserID == userID && tv.IP == ip && tv.UserAgent == userAgent {
			tv.LastUsed = time.Now()
			return tv, nil
		}
	}
	f.nextID++
	tv := &models.TokenVersion{
		ID:        fmt.Sprintf("tv%d", f.nextID),
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
		LastUsed:  time.Now(),
	}
	f.rows[tv.ID] = tv
	return tv, nil
}

func (f *fakeTokenVersionsRepo) GetByID(_ context.Context, id string) (*models.TokenVersion, error) {
	if tv, ok := f.rows[id]; ok {
		return tv, nil
	}
	return nil, common.ErrResourceNotFound
}

func (f *fakeTokenVersionsRepo) Touch(_ context.Context, id string) error {
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeTokenVersionsRepo) Revoke(_ context.Context, id string) error {
	tv, ok := f.rows[id]
	if !ok {
		return common.ErrResourceNotFound
	}
	tv.AccessVersion++
	tv.RefreshVersion++
	return nil
}

func (f *fakeTokenVersionsRepo) RevokeAllForUser(_ context.Context, userID string) error {
	for _, tv := range f.rows {
		if tv.UserID == userID {
			tv.AccessVersion++
			tv.RefreshVersion++
		}
	}
	return nil
}

type fakeSRPSessionsRepo struct {
	sessions map[string]*models.SRPSession
}

func newFakeSRPSessionsRepo() *fakeSRPSessionsRepo {
	return &fakeSRPSessionsRepo{sessions: map[string]*models.SRPSession{}}
}

func (f *fakeSRPSessionsRepo) Replace(_ context.Context, s *models.SRPSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	f.sessions[s.Identifier] = s
	return nil
}

func (f *fakeSRPSessionsRepo) TakeAndDelete(_ context.Context, identifier string) (*models.SRPSession, error) {
	s, ok := f.sessions[identifier]
	if !ok {
		return nil, common.ErrResourceNotFound
	}
	delete(f.sessions, identifier)
	return s, nil
}

func (f *fakeSRPSessionsRepo) PurgeExpired(_ context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	for id, s := range f.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(f.sessions, id)
		}
	}
	return nil
}

type fakeAPIKeysRepo struct {
	keys    map[string]*models.APIKey
	deleted []string
	touched []string
}

func newFakeAPIKeysRepo() *fakeAPIKeysRepo {
	return &fakeAPIKeysRepo{keys: map[string]*models.APIKey{}}
}

func (f *fakeAPIKeysRepo) Create(_ context.Context, k *models.APIKey) (*models.APIKey, error) {
	if k.ID == "" {
		k.ID = fmt.Sprintf("key%d", len(f.keys)+1)
	}
	f.keys[k.ID] = k
	return k, nil
}

func (f *fakeAPIKeysRepo) GetByID(_ context.Context, id string) (*models.APIKey, error) {
	if k, ok := f.keys[id]; ok {
		return k, nil
	}
	return nil, common.ErrResourceNotFound
}

func (f *fakeAPIKeysRepo) Delete(_ context.Context, id string) error {
	delete(f.keys, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPIKeysRepo) Touch(_ context.Context, id string) error {
	f.touched = append(f.touched, id)
	return nil
}

type fakeServiceTokensRepo struct {
	tokens  map[string]*models.ServiceToken
	deleted []string
}

func newFakeServiceTokensRepo() *fakeServiceTokensRepo {
	return &fakeServiceTokensRepo{tokens: map[string]*models.ServiceToken{}}
}

func (f *fakeServiceTokensRepo) Create(_ context.Context, tok *models.ServiceToken) (*models.ServiceToken, error) {
	if tok.ID == "" {
		tok.ID = fmt.Sprintf("st%d", len(f.tokens)+1)
	}
	f.tokens[tok.ID] = tok
	return tok, nil
}

func (f *fakeServiceTokensRepo) GetByID(_ context.Context, id string) (*models.ServiceToken, error) {
	if tok, ok := f.tokens[id]; ok {
		return tok, nil
	}
	return nil, common.ErrResourceNotFound
}

func (f *fakeServiceTokensRepo) Delete(_ context.Context, id string) error {
	delete(f.tokens, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeServiceTokensRepo) Touch(_ context.Context, id string) error { return nil }

type fakeServiceAccountsRepo struct {
	accounts map[string]*models.ServiceAccount
}

func newFakeServiceAccountsRepo() *fakeServiceAccountsRepo {
	return &fakeServiceAccountsRepo{accounts: map[string]*models.ServiceAccount{}}
}

func (f *fakeServiceAccountsRepo) Create(_ context.Context, a *models.ServiceAccount) (*models.ServiceAccount, error) {
	if a.ID == "" {
		a.ID = fmt.Sprintf("sa%d", len(f.accounts)+1)
	}
	f.accounts[a.ID] = a
	return a, nil
}

func (f *fakeServiceAccountsRepo) GetByID(_ context.Context, id string) (*models.ServiceAccount, error) {
	if a, ok := f.accounts[id]; ok {
		return a, nil
	}
	return nil, common.ErrResourceNotFound
}

func (f *fakeServiceAccountsRepo) Delete(_ context.Context, id string) error {
	delete(f.accounts, id)
	return nil
}

func (f *fakeServiceAccountsRepo) Touch(_ context.Context, id string) error { return nil }

func (f *fakeServiceAccountsRepo) BumpTokenVersion(_ context.Context, id string) error {
	a, ok := f.accounts[id]
	if !ok {
		return common.ErrResourceNotFound
	}
	a.TokenVersion++
	return nil
}

type fakeIdentitiesRepo struct {
	identities map[string]*models.Identity
	tokens     map[string]*models.IdentityAccessToken
}

func newFakeIdentitiesRepo() *fakeIdentitiesRepo {
	return &fakeIdentitiesRepo{
		identities: map[string]*models.Identity{},
		tokens:     map[string]*models.IdentityAccessToken{},
	}
}

func (f *fakeIdentitiesRepo) CreateIdentity(_ context.Context, id *models.Identity) (*models.Identity, error) {
	if id.ID == "" {
		id.ID = fmt.Sprintf("id%d", len(f.identities)+1)
	}
	f.identities[id.ID] = id
	return id, nil
}

func (f *fakeIdentitiesRepo) GetIdentityByID(_ context.Context, id string) (*models.Identity, error) {
	if ident, ok := f.identities[id]; ok {
		return ident, nil
	}
	return nil, common.ErrResourceNotFound
}

func (f *fakeIdentitiesRepo) CreateAccessToken(_ context.Context, tok *models.IdentityAccessToken) (*models.IdentityAccessToken, error) {
	if tok.ID == "" {
		tok.ID = fmt.Sprintf("iat%d", len(f.tokens)+1)
	}
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now()
	}
	f.tokens[tok.ID] = tok
	return tok, nil
}

func (f *fakeIdentitiesRepo) GetAccessTokenByID(_ context.Context, id string) (*models.IdentityAccessToken, error) {
	if tok, ok := f.tokens[id]; ok {
		return tok, nil
	}
	return nil, common.ErrResourceNotFound
}

func (f *fakeIdentitiesRepo) IncrementUsage(_ context.Context, id string) (int, error) {
	tok, ok := f.tokens[id]
	if !ok {
		return 0, common.ErrResourceNotFound
	}
	tok.UsageCount++
	tok.LastUsed = time.Now()
	return tok.UsageCount, nil
}

func (f *fakeIdentitiesRepo) Renew(_ context.Context, id string) error {
	tok, ok := f.tokens[id]
	if !ok {
		return common.ErrResourceNotFound
	}
	now := time.Now()
	tok.LastRenewedAt = &now
	return nil
}

func (f *fakeIdentitiesRepo) BumpTokenVersion(_ context.Context, id string) error {
	tok, ok := f.tokens[id]
	if !ok {
		return common.ErrResourceNotFound
	}
	tok.TokenVersion++
	return nil
}

func (f *fakeIdentitiesRepo) DeleteAccessToken(_ context.Context, id string) error {
	delete(f.tokens, id)
	return nil
}

type fakeBotsRepo struct {
	bots  map[string]*models.Bot // keyed by org id
	salts map[string]*models.BlindIndexSalt

	botUpdates  []*bots.WrappedKeyUpdate
	saltUpdates []*bots.WrappedKeyUpdate
}

func newFakeBotsRepo() *fakeBotsRepo {
	return &fakeBotsRepo{
		bots:  map[string]*models.Bot{},
		salts: map[string]*models.BlindIndexSalt{},
	}
}

func (f *fakeBotsRepo) CreateBot(_ context.Context, b *models.Bot) (*models.Bot, error) {
	f.bots[b.OrgID] = b
	return b, nil
}

func (f *fakeBotsRepo) GetBotByOrgID(_ context.Context, orgID string) (*models.Bot, error) {
	if b, ok := f.bots[orgID]; ok {
		return b, nil
	}
	return nil, common.ErrResourceNotFound
}

func (f *fakeBotsRepo) ListBotsByEncoding(_ context.Context, enc rootkey.Encoding) ([]*models.Bot, error) {
	var out []*models.Bot
	for _, b := range f.bots {
		if b.KeyEncoding == enc {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBotsRepo) UpdateBotKey(_ context.Context, update *bots.WrappedKeyUpdate) error {
	for _, b := range f.bots {
		if b.ID == update.ID {
			b.EncryptedKey = update.Ciphertext
			b.KeyIV = update.IV
			b.KeyTag = update.Tag
			b.KeyEncoding = update.KeyEncoding
			f.botUpdates = append(f.botUpdates, update)
			return nil
		}
	}
	return common.ErrResourceNotFound
}

func (f *fakeBotsRepo) CreateBlindIndexSalt(_ context.Context, s *models.BlindIndexSalt) (*models.BlindIndexSalt, error) {
	f.salts[s.OrgID] = s
	return s, nil
}

func (f *fakeBotsRepo) ListBlindIndexSaltsByEncoding(_ context.Context, enc rootkey.Encoding) ([]*models.BlindIndexSalt, error) {
	var out []*models.BlindIndexSalt
	for _, s := range f.salts {
		if s.KeyEncoding == enc {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeBotsRepo) UpdateBlindIndexSalt(_ context.Context, update *bots.WrappedKeyUpdate) error {
	for _, s := range f.salts {
		if s.ID == update.ID {
			s.EncryptedSalt = update.Ciphertext
			s.SaltIV = update.IV
			s.SaltTag = update.Tag
			s.KeyEncoding = update.KeyEncoding
			f.saltUpdates = append(f.saltUpdates, update)
			return nil
		}
	}
	return common.ErrResourceNotFound
}

// fakeRepoManager vends the same fake instances regardless of the handle so
// transactional and plain paths observe one shared state.
type fakeRepoManager struct {
	users           *fakeUsersRepo
	tokenVersions   *fakeTokenVersionsRepo
	srpSessions     *fakeSRPSessionsRepo
	apiKeys         *fakeAPIKeysRepo
	serviceTokens   *fakeServiceTokensRepo
	serviceAccounts *fakeServiceAccountsRepo
	identities      *fakeIdentitiesRepo
	bots            *fakeBotsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:           newFakeUsersRepo(),
		tokenVersions:   newFakeTokenVersionsRepo(),
		srpSessions:     newFakeSRPSessionsRepo(),
		apiKeys:         newFakeAPIKeysRepo(),
		serviceTokens:   newFakeServiceTokensRepo(),
		serviceAccounts: newFakeServiceAccountsRepo(),
		identities:      newFakeIdentitiesRepo(),
		bots:            newFakeBotsRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository        { return m.users }
func (m *fakeRepoManager) TokenVersions(dbx.DBTX) tokenversions.Repository {
	return m.tokenVersions
}
func (m *fakeRepoManager) SRPSessions(dbx.DBTX) srpsessions.Repository { return m.srpSessions }
func (m *fakeRepoManager) APIKeys(dbx.DBTX) apikeys.Repository         { return m.apiKeys }
func (m *fakeRepoManager) ServiceTokens(dbx.DBTX) servicetokens.Repository {
	return m.serviceTokens
}
func (m *fakeRepoManager) ServiceAccounts(dbx.DBTX) serviceaccounts.Repository {
	return m.serviceAccounts
}
func (m *fakeRepoManager) Identities(dbx.DBTX) identities.Repository { return m.identities }
func (m *fakeRepoManager) Bots(dbx.DBTX) bots.Repository             { return m.bots }
