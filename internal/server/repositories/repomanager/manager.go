package repomanager

import (
	"context"
	"database/sql"

	"github.com/keyfold/keyfold/internal/dbx"
	"github.com/keyfold/keyfold/internal/server/repositories/apikeys"
	"github.com/keyfold/keyfold/internal/server/repositories/bots"
	"github.com/keyfold/keyfold/internal/server/repositories/identities"
	"github.com/keyfold/keyfold/internal/server/repositories/serviceaccounts"
	"github.com/keyfold/keyfold/internal/server/repositories/servicetokens"
	"github.com/keyfold/keyfold/internal/server/repositories/srpsessions"
	"github.com/keyfold/keyfold/internal/server/repositories/tokenversions"
	"github.com/keyfold/keyfold/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX, so a
// service can run several repositories inside one transaction by passing
// the same transactional handle to each.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	TokenVersions(db dbx.DBTX) tokenversions.Repository
	SRPSessions(db dbx.DBTX) srpsessions.Repository
	APIKeys(db dbx.DBTX) apikeys.Repository
	ServiceTokens(db dbx.DBTX) servicetokens.Repository
	ServiceAccounts(db dbx.DBTX) serviceaccounts.Repository
	Identities(db dbx.DBTX) identities.Repository
	Bots(db dbx.DBTX) bots.Repository
}
