// Package httpapi is the HTTP boundary of the auth service: routing,
// request/response shapes, cookie handling and the error-to-status mapping.
// Handlers stay thin; all decisions live in the services layer.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/server/config"
	"github.com/keyfold/keyfold/internal/server/services"
)

// refreshCookieName is the HTTP-only cookie carrying the refresh token.
const refreshCookieName = "jid"

// refreshCookiePath scopes the cookie to the auth endpoints so it is not
// attached to every API request.
const refreshCookiePath = "/api/v1/auth"

type Server struct {
	http     *http.Server
	login    *services.LoginService
	tokens   *services.TokenService
	resolver *services.Resolver
	logger   logging.Logger
	cfg      *config.Config
}

func NewServer(login *services.LoginService, tokens *services.TokenService,
	resolver *services.Resolver, logger logging.Logger, cfg *config.Config) *Server {
	s := &Server{
		login:    login,
		tokens:   tokens,
		resolver: resolver,
		logger:   logger,
		cfg:      cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/srp1", s.handleSRP1)
	mux.HandleFunc("POST /api/v1/auth/srp2", s.handleSRP2)
	mux.HandleFunc("POST /api/v1/auth/mfa/verify", s.handleMFAVerify)
	mux.HandleFunc("POST /api/v1/auth/token", s.handleRefresh)
	mux.HandleFunc("POST /api/v1/signup/complete", s.handleCompleteSignup)
	mux.Handle("POST /api/v1/auth/logout", s.Authenticate(http.HandlerFunc(s.handleLogout)))
	mux.Handle("POST /api/v2/auth/password", s.Authenticate(http.HandlerFunc(s.handleChangePassword)))

	s.http = &http.Server{
		Addr:              cfg.EndpointAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run blocks serving requests until Shutdown is called or the listener
// fails.
func (s *Server) Run() error {
	s.logger.Info(context.Background(), "http server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// setRefreshCookie attaches the refresh token as the scoped jid cookie.
func (s *Server) setRefreshCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     refreshCookiePath,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   s.cfg.HTTPSEnabled,
		MaxAge:   int(s.cfg.RefreshTokenTTL / time.Second),
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   s.cfg.HTTPSEnabled,
		MaxAge:   -1,
	})
}
