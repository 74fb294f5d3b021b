// Package server assembles and runs the auth service: configuration,
// database, root keys, the startup re-encryption migration and the HTTP
// server, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/keyfold/keyfold/internal/cryptox/rootkey"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/server/config"
	"github.com/keyfold/keyfold/internal/server/httpapi"
	"github.com/keyfold/keyfold/internal/server/mail"
	"github.com/keyfold/keyfold/internal/server/repositories/repomanager"
	"github.com/keyfold/keyfold/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	repos  repomanager.RepositoryManager
	http   *httpapi.Server
	reenc  *services.ReencryptionMigration

	// Keys and Credentials are consumed by the secret-engine and admin
	// sides of the platform; exposed so embedding binaries can reach them.
	Keys        *services.KeyService
	Credentials *services.CredentialService
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()

	roots, err := rootkey.NewProvider(cfg.EncryptionKey, cfg.RootEncryptionKey)
	if err != nil {
		return nil, err
	}

	tokens := services.NewTokenService(db, repos, cfg)
	mailer := mail.NewLogMailer(logger)
	login := services.NewLoginService(db, repos, tokens, mailer, logger, cfg)
	resolver := services.NewResolver(db, repos, logger, cfg)
	reenc := services.NewReencryptionMigration(db, repos, roots, logger)
	keys := services.NewKeyService(db, repos, roots)
	creds := services.NewCredentialService(db, repos, cfg)

	httpServer := httpapi.NewServer(login, tokens, resolver, logger, cfg)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		repos:       repos,
		http:        httpServer,
		reenc:       reenc,
		Keys:        keys,
		Credentials: creds,
	}, nil
}

// Run migrates the schema, rewraps any envelopes left under the legacy
// root key, then serves until the context is canceled or a signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if _, err := app.reenc.Run(ctx); err != nil {
		return fmt.Errorf("root key migration: %w", err)
	}

	app.initSignalHandler(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.http.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := app.http.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "http shutdown failed", "error", err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "closing db failed", "error", err.Error())
	}
	return nil
}

func (app *App) initSignalHandler(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancel()
	}()
}
