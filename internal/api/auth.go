package api

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// CreateSession handles POST /api/auth/session. The caller arrives with a
// bearer token and leaves with a session id for the X-Session-ID header.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.ID != "" {
		writeError(w, r, invalid("already using a session; exchange a bearer token instead"))
		return
	}

	created, err := h.sessions.Create(r.Context(), s)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().Str("user", created.Email).Time("expiresAt", created.ExpiresAt).Msg("Session created")
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"sessionId": created.ID,
		"expiresAt": created.ExpiresAt,
		"data":      created,
	})
}

// RevokeSession handles DELETE /api/auth/session
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.ID == "" {
		writeError(w, r, invalid("no session to revoke"))
		return
	}
	if err := h.sessions.Revoke(r.Context(), s.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Me handles GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": s})
}
