// Package api serves the portal's JSON endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/labportal/internal/cache"
	"stealthcompany.com/labportal/internal/dal"
	"stealthcompany.com/labportal/internal/lifecycle"
	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/session"
	"stealthcompany.com/labportal/internal/slots"
	"stealthcompany.com/labportal/internal/storage"
	"stealthcompany.com/labportal/internal/wizard"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrForbidden       = errors.New("forbidden")
	ErrSlotUnavailable = errors.New("slot unavailable")
)

const maxJSONBody = 1 << 20

// Options wires the handler's collaborators
type Options struct {
	Store          dal.Store
	Cache          cache.Cache
	Files          storage.FileStore
	Sessions       *session.Manager
	DraftTTL       time.Duration
	MaxUploadBytes int64
}

// Handler holds the dependencies shared by every endpoint
type Handler struct {
	store     dal.Store
	cache     cache.Cache
	files     storage.FileStore
	sessions  *session.Manager
	draftTTL  time.Duration
	maxUpload int64
	now       func() time.Time
}

func New(o Options) *Handler {
	h := &Handler{
		store:     o.Store,
		cache:     o.Cache,
		files:     o.Files,
		sessions:  o.Sessions,
		draftTTL:  o.DraftTTL,
		maxUpload: o.MaxUploadBytes,
		now:       time.Now,
	}
	if h.draftTTL <= 0 {
		h.draftTTL = 24 * time.Hour
	}
	if h.maxUpload <= 0 {
		h.maxUpload = 32 << 20
	}
	return h
}

// WithClock replaces the time source, for tests
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	var verr *wizard.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, lifecycle.ErrUnknownStatus),
		errors.Is(err, wizard.ErrUnknownFlow),
		errors.Is(err, wizard.ErrStepOutOfRange),
		errors.Is(err, wizard.ErrIncompleteSample),
		errors.Is(err, wizard.ErrDuplicateSampleName),
		errors.Is(err, wizard.ErrSampleIndex),
		errors.Is(err, slots.ErrInvalidDate),
		errors.Is(err, slots.ErrInvalidRange),
		errors.Is(err, slots.ErrInvalidClock),
		errors.Is(err, storage.ErrInvalidFolder),
		errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, dal.ErrNotFound), errors.Is(err, cache.ErrMiss):
		return http.StatusNotFound
	case errors.Is(err, dal.ErrConflict),
		errors.Is(err, ErrSlotUnavailable),
		errors.Is(err, lifecycle.ErrSampleClosed),
		errors.Is(err, lifecycle.ErrTransition),
		errors.Is(err, lifecycle.ErrRequestClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers {success:false, error}. Server errors are logged and
// their detail is not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorWith(w, r, err, nil)
}

// writeErrorWith is writeError with extra fields in the body
func writeErrorWith(w http.ResponseWriter, r *http.Request, err error, extra map[string]interface{}) {
	code := statusFor(err)
	body := map[string]interface{}{"success": false, "error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}

	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		body["step"] = verr.Step
		body["fields"] = verr.Fields
	}

	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		body["error"] = "internal server error"
	} else {
		log.Debug().Err(err).Int("status", code).Str("path", r.URL.Path).Msg("Request rejected")
	}
	writeJSON(w, code, body)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return invalid("malformed JSON body: %v", err)
	}
	return nil
}

func currentSession(r *http.Request) (*session.Session, error) {
	return session.FromContext(r.Context())
}

// canAccess lets staff see everything and requesters their own requests,
// including ones they filed for someone else
func canAccess(s *session.Session, req *model.Request) bool {
	return s.Staff() ||
		strings.EqualFold(s.Email, req.Requester.Email) ||
		strings.EqualFold(s.Email, req.Requester.OnBehalfOf)
}

// loadRequest fetches a request the caller may see
func (h *Handler) loadRequest(r *http.Request, number string) (*model.Request, *session.Session, error) {
	s, err := currentSession(r)
	if err != nil {
		return nil, nil, err
	}
	req, err := h.store.GetRequest(r.Context(), number)
	if err != nil {
		return nil, nil, err
	}
	if !canAccess(s, req) {
		return nil, nil, fmt.Errorf("%w: request %s belongs to another user", ErrForbidden, number)
	}
	return req, s, nil
}
