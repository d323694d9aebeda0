package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/session"
	"stealthcompany.com/labportal/internal/wizard"
)

type SampleSetRequest struct {
	Name    string                   `json:"name"`
	Samples []model.SampleDefinition `json:"samples"`
}

// ownSampleSet loads a set owned by the caller
func (h *Handler) ownSampleSet(r *http.Request) (*model.SampleSet, *session.Session, error) {
	s, err := currentSession(r)
	if err != nil {
		return nil, nil, err
	}
	set, err := h.store.GetSampleSet(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, nil, err
	}
	if !strings.EqualFold(set.OwnerEmail, s.Email) {
		return nil, nil, fmt.Errorf("%w: sample set %s belongs to another user", ErrForbidden, set.ID)
	}
	return set, s, nil
}

// ListSampleSets handles GET /api/sample-sets
func (h *Handler) ListSampleSets(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sets, err := h.store.ListSampleSets(r.Context(), s.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sets == nil {
		sets = []model.SampleSet{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": sets})
}

// CreateSampleSet handles POST /api/sample-sets. Samples get their generated
// names and duplicates are refused.
func (h *Handler) CreateSampleSet(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body SampleSetRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		writeError(w, r, invalid("name is required"))
		return
	}
	if len(body.Samples) == 0 {
		writeError(w, r, invalid("at least one sample is required"))
		return
	}

	list := wizard.NewSampleList(nil)
	for i, sd := range body.Samples {
		if _, err := list.Add(sd); err != nil {
			writeError(w, r, fmt.Errorf("samples[%d]: %w", i, err))
			return
		}
	}

	now := h.now().UTC()
	set := &model.SampleSet{
		ID:         uuid.NewString(),
		Name:       body.Name,
		OwnerEmail: s.Email,
		OwnerName:  s.Name,
		Samples:    list.Items(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.store.CreateSampleSet(r.Context(), set); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": set})
}

// GetSampleSet handles GET /api/sample-sets/{id}
func (h *Handler) GetSampleSet(w http.ResponseWriter, r *http.Request) {
	set, _, err := h.ownSampleSet(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": set})
}

// DeleteSampleSet handles DELETE /api/sample-sets/{id}
func (h *Handler) DeleteSampleSet(w http.ResponseWriter, r *http.Request) {
	set, _, err := h.ownSampleSet(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.DeleteSampleSet(r.Context(), set.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
