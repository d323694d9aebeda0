package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// HTTP paths served without a session
const (
	HealthPath  = "/health"
	MetricsPath = "/metrics"
)

func writeAuthError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": msg})
}

// Resolve finds the caller: a bearer token wins, then the session header
func (m *Manager) Resolve(r *http.Request) (*Session, error) {
	if authHeader := r.Header.Get(AuthorizationHeader); authHeader != "" {
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			return nil, ErrInvalidToken
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
		if token == "" {
			return nil, ErrInvalidToken
		}
		return m.Verify(token)
	}
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return m.Lookup(r.Context(), id)
	}
	return nil, ErrNoCredentials
}

// Middleware rejects requests without a valid session and stores the
// session in the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == HealthPath || r.URL.Path == MetricsPath {
			next.ServeHTTP(w, r)
			return
		}

		s, err := m.Resolve(r)
		if err != nil {
			switch {
			case errors.Is(err, ErrNoCredentials), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrSessionExpired):
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")
				writeAuthError(w, http.StatusUnauthorized, err.Error())
			default:
				log.Error().Err(err).Str("path", r.URL.Path).Msg("Session lookup failed")
				writeAuthError(w, http.StatusInternalServerError, "session lookup failed")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// RequireRole answers 403 unless the session holds one of roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := FromContext(r.Context())
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if !s.HasRole(roles...) {
				log.Warn().Str("user", s.Email).Strs("roles", roles).Str("path", r.URL.Path).Msg("Role check failed")
				writeAuthError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
