// Package session resolves the calling user from a bearer token or a cached
// session id and carries it in the request context.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"stealthcompany.com/labportal/internal/cache"
)

// Roles that unlock lab-side actions
const (
	RoleLab   = "lab"
	RoleAdmin = "admin"
)

// Header constants
const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
	SessionHeader       = "X-Session-ID"
)

var (
	ErrNoCredentials  = errors.New("authorization required")
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session expired or unknown")
	ErrNoSession      = errors.New("no session in context")
)

// Claims are the token claims the portal reads
type Claims struct {
	Name              string   `json:"name"`
	Email             string   `json:"email"`
	PreferredUsername string   `json:"preferred_username"`
	Department        string   `json:"department,omitempty"`
	Roles             []string `json:"roles"`
	jwt.RegisteredClaims
}

// Session is the resolved caller
type Session struct {
	ID         string    `json:"id,omitempty"`
	UserID     string    `json:"userId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Department string    `json:"department,omitempty"`
	Roles      []string  `json:"roles"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// HasRole reports whether the session holds any of roles
func (s *Session) HasRole(roles ...string) bool {
	for _, have := range s.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Staff is true for lab and admin users
func (s *Session) Staff() bool {
	return s.HasRole(RoleLab, RoleAdmin)
}

func fromClaims(c *Claims) *Session {
	s := &Session{
		UserID:     c.Subject,
		Name:       c.Name,
		Email:      c.Email,
		Department: c.Department,
		Roles:      c.Roles,
	}
	if s.Name == "" {
		s.Name = c.PreferredUsername
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}

// Manager verifies tokens and keeps cached sessions
type Manager struct {
	secret []byte
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, c cache.Cache, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Manager{secret: []byte(secret), cache: c, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, for tests
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Verify checks an HS256 token and returns its session
func (m *Manager) Verify(token string) (*Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: email claim missing", ErrInvalidToken)
	}
	return fromClaims(claims), nil
}

// Issue signs a token for claims. Used by tests and local tooling.
func (m *Manager) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := m.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.secret)
}

func sessionKey(id string) string { return "session:" + id }

// Create caches a session and returns it with its new id
func (m *Manager) Create(ctx context.Context, s *Session) (*Session, error) {
	out := *s
	out.ID = uuid.NewString()
	out.ExpiresAt = m.now().Add(m.ttl)
	if err := m.cache.Set(ctx, sessionKey(out.ID), out, m.ttl); err != nil {
		return nil, fmt.Errorf("cache session: %w", err)
	}
	return &out, nil
}

// Lookup loads a cached session
func (m *Manager) Lookup(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := m.cache.Get(ctx, sessionKey(id), &s); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !s.ExpiresAt.IsZero() && m.now().After(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return &s, nil
}

// Revoke drops a cached session
func (m *Manager) Revoke(ctx context.Context, id string) error {
	return m.cache.Delete(ctx, sessionKey(id))
}

type contextKey string

const sessionContextKey contextKey = "session"

// WithSession stores s in ctx
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext returns the session stored by the middleware
func FromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok || s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}
