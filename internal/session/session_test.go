package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealthcompany.com/labportal/internal/cache"
)

const testSecret = "test-secret"

var now = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func newManager() *Manager {
	return NewManager(testSecret, cache.NewMemory().WithClock(func() time.Time { return now }), time.Hour).
		WithClock(func() time.Time { return now })
}

func issue(t *testing.T, m *Manager, roles ...string) string {
	t.Helper()
	tok, err := m.Issue(Claims{
		Name:             "Ann Lee",
		Email:            "ann@example.com",
		Roles:            roles,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"},
	}, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	m := newManager()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	other := NewManager("other-secret", cache.NewMemory(), time.Hour).WithClock(func() time.Time { return now })
	cached, err := m.Create(context.Background(), &Session{Name: "Ann Lee", Email: "ann@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name           string
		path           string
		authHeader     string
		sessionID      string
		expectedStatus int
	}{
		{"health skips auth", "/health", "", "", http.StatusOK},
		{"metrics skips auth", "/metrics", "", "", http.StatusOK},
		{"no credentials", "/api/testing-samples", "", "", http.StatusUnauthorized},
		{"not a bearer header", "/api/testing-samples", "Invalid", "", http.StatusUnauthorized},
		{"bearer without token", "/api/testing-samples", "Bearer ", "", http.StatusUnauthorized},
		{"valid token", "/api/testing-samples", "Bearer " + issue(t, m), "", http.StatusOK},
		{"wrong signing key", "/api/testing-samples", "Bearer " + issue(t, other), "", http.StatusUnauthorized},
		{"cached session", "/api/testing-samples", "", cached.ID, http.StatusOK},
		{"unknown session", "/api/testing-samples", "", "nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set(AuthorizationHeader, tt.authHeader)
			}
			if tt.sessionID != "" {
				req.Header.Set(SessionHeader, tt.sessionID)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	m := newManager()
	tok := issue(t, m)

	later := NewManager(testSecret, cache.NewMemory(), time.Hour).
		WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	_, err := later.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionInContext(t *testing.T) {
	m := newManager()
	var got *Session
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := FromContext(r.Context())
		require.NoError(t, err)
		got = s
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
	req.Header.Set(AuthorizationHeader, "Bearer "+issue(t, m, RoleLab))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "ann@example.com", got.Email)
	assert.Equal(t, "u-1", got.UserID)
	assert.True(t, got.Staff())
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleLab, RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		session  *Session
		expected int
	}{
		{"no session", nil, http.StatusUnauthorized},
		{"requester", &Session{Email: "a@x"}, http.StatusForbidden},
		{"lab", &Session{Email: "a@x", Roles: []string{RoleLab}}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/api/testing-samples", nil)
			if tt.session != nil {
				req = req.WithContext(WithSession(req.Context(), tt.session))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expected, rr.Code)
		})
	}
}

func TestCachedSessionExpires(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	s, err := m.Create(ctx, &Session{Email: "ann@example.com"})
	require.NoError(t, err)

	_, err = m.Lookup(ctx, s.ID)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, s.ID))
	_, err = m.Lookup(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)
}
