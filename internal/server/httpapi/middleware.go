package httpapi

import (
	"context"
	"net"
	"net/http"

	"github.com/keyfold/keyfold/internal/server/services"
)

type contextKey struct{ name string }

var principalKey = contextKey{"principal"}

// PrincipalFromContext returns the principal the Authenticate middleware
// attached, or nil on unauthenticated requests.
func PrincipalFromContext(ctx context.Context) *services.Principal {
	p, _ := ctx.Value(principalKey).(*services.Principal)
	return p
}

// clientIP strips the port from RemoteAddr. Proxy headers are deliberately
// not consulted; deployments behind a proxy terminate them at the edge.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Authenticate resolves the request's credential and attaches the principal
// to the context, failing closed with the standard error mapping.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.resolver.Resolve(r.Context(), &services.RequestAuth{
			APIKey:        r.Header.Get("X-API-KEY"),
			Authorization: r.Header.Get("Authorization"),
			IP:            clientIP(r),
			UserAgent:     r.UserAgent(),
		})
		if err != nil {
			s.logger.Warn(r.Context(), "authentication failed", "path", r.URL.Path, "error", err.Error())
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
