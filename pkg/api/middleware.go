package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/clientads/adserver/pkg/api/auth"
)

type contextKey string

const authContextKey contextKey = "authContext"

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireAuth verifies the Bearer credential and injects the resolved
// AuthContext into the request context.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		actx, err := s.issuer.Verify(authHeader[7:])
		if err != nil {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"invalid or expired credential"})

			return
		}

		ctx := context.WithValue(r.Context(), authContextKey, actx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole checks that the authenticated actor has the specified role.
func (s *server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actx := authFromContext(r.Context())
			if actx == nil || actx.Role != role {
				writeJSON(w, http.StatusForbidden,
					errorResponse{"insufficient permissions"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// authFromContext extracts the verified AuthContext from the request
// context.
func authFromContext(ctx context.Context) *auth.AuthContext {
	actx, _ := ctx.Value(authContextKey).(*auth.AuthContext)

	return actx
}
