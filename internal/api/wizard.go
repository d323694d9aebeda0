package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/wizard"
)

// SampleNameRequest asks for a generated name. When Index is set the sample
// replaces Existing[Index] and its own current name is not a duplicate.
type SampleNameRequest struct {
	Sample   model.SampleDefinition   `json:"sample"`
	Existing []model.SampleDefinition `json:"existing,omitempty"`
	Index    *int                     `json:"index,omitempty"`
}

func machineFor(r *http.Request) (*wizard.Machine, error) {
	flow, err := wizard.ParseFlow(mux.Vars(r)["flow"])
	if err != nil {
		return nil, err
	}
	return wizard.For(flow)
}

func stepOf(r *http.Request) (int, error) {
	step, err := strconv.Atoi(mux.Vars(r)["step"])
	if err != nil {
		return 0, invalid("step must be a number")
	}
	return step, nil
}

// WizardSteps handles GET /api/wizard/{flow}
func (h *Handler) WizardSteps(w http.ResponseWriter, r *http.Request) {
	m, err := machineFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"flow":        m.Flow(),
			"requestType": m.Flow().RequestType(),
			"steps":       m.Steps(),
		},
	})
}

// ValidateStep handles POST /api/wizard/{flow}/steps/{step}/validate
func (h *Handler) ValidateStep(w http.ResponseWriter, r *http.Request) {
	m, err := machineFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	step, err := stepOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var d wizard.Draft
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, r, err)
		return
	}

	next, err := m.Next(step, &d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"step":    step,
		"next":    next,
		"last":    next == m.Len(),
	})
}

// StepBack handles POST /api/wizard/{flow}/steps/{step}/back
func (h *Handler) StepBack(w http.ResponseWriter, r *http.Request) {
	m, err := machineFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	step, err := stepOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "step": m.Back(step)})
}

// GenerateSampleName handles POST /api/wizard/sample-name
func (h *Handler) GenerateSampleName(w http.ResponseWriter, r *http.Request) {
	var body SampleNameRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	list := wizard.NewSampleList(body.Existing)
	var (
		sample model.SampleDefinition
		err    error
	)
	if body.Index != nil {
		sample, err = list.Update(*body.Index, body.Sample)
	} else {
		sample, err = list.Add(body.Sample)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"generatedName": sample.GeneratedName,
	})
}

func draftKey(flow wizard.Flow, email string) string {
	return fmt.Sprintf("draft:%s:%s", flow, strings.ToLower(email))
}

// SaveDraft handles PUT /api/drafts/{flow}
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := machineFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var d wizard.Draft
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.cache.Set(r.Context(), draftKey(m.Flow(), s.Email), d, h.draftTTL); err != nil {
		writeError(w, r, fmt.Errorf("failed to save draft: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"expiresAt": h.now().Add(h.draftTTL).UTC(),
	})
}

// LoadDraft handles GET /api/drafts/{flow}. A draft is handed out once.
func (h *Handler) LoadDraft(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := machineFor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var d wizard.Draft
	if err := h.cache.Take(r.Context(), draftKey(m.Flow(), s.Email), &d); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": d})
}
