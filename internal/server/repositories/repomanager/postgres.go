// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/keyfold/keyfold/internal/dbx"
	"github.com/keyfold/keyfold/internal/server/migrations"
	"github.com/keyfold/keyfold/internal/server/repositories/apikeys"
	"github.com/keyfold/keyfold/internal/server/repositories/bots"
	"github.com/keyfold/keyfold/internal/server/repositories/identities"
	"github.com/keyfold/keyfold/internal/server/repositories/serviceaccounts"
	"github.com/keyfold/keyfold/internal/server/repositories/servicetokens"
	"github.com/keyfold/keyfold/internal/server/repositories/srpsessions"
	"github.com/keyfold/keyfold/internal/server/repositories/tokenversions"
	"github.com/keyfold/keyfold/internal/server/repositories/users"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository
// implementations and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) TokenVersions(db dbx.DBTX) tokenversions.Repository {
	return tokenversions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) SRPSessions(db dbx.DBTX) srpsessions.Repository {
	return srpsessions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) APIKeys(db dbx.DBTX) apikeys.Repository {
	return apikeys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ServiceTokens(db dbx.DBTX) servicetokens.Repository {
	return servicetokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ServiceAccounts(db dbx.DBTX) serviceaccounts.Repository {
	return serviceaccounts.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Identities(db dbx.DBTX) identities.Repository {
	return identities.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Bots(db dbx.DBTX) bots.Repository {
	return bots.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing RunMigrations.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}
