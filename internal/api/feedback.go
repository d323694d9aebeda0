package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/labportal/internal/model"
)

const ComplaintOpen = "open"

type ComplaintRequest struct {
	RequestNumber string `json:"requestNumber"`
	Category      string `json:"category"`
	Subject       string `json:"subject"`
	Description   string `json:"description"`
}

type EvaluationRequest struct {
	RequestNumber string `json:"requestNumber"`
	Score         int    `json:"score"`
	Comment       string `json:"comment,omitempty"`
}

// CreateComplaint handles POST /api/complaints
func (h *Handler) CreateComplaint(w http.ResponseWriter, r *http.Request) {
	var body ComplaintRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	body.Subject = strings.TrimSpace(body.Subject)
	body.Description = strings.TrimSpace(body.Description)
	if body.RequestNumber == "" || body.Subject == "" || body.Description == "" {
		writeError(w, r, invalid("requestNumber, subject and description are required"))
		return
	}
	if body.Category == "" {
		body.Category = "general"
	}

	_, s, err := h.loadRequest(r, body.RequestNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c := &model.Complaint{
		ID:            uuid.NewString(),
		RequestNumber: body.RequestNumber,
		Category:      body.Category,
		Subject:       body.Subject,
		Description:   body.Description,
		Status:        ComplaintOpen,
		FiledBy:       s.Name,
		FiledByEmail:  s.Email,
		CreatedAt:     h.now().UTC(),
	}
	if err := h.store.CreateComplaint(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().Str("requestNumber", c.RequestNumber).Str("category", c.Category).Str("user", s.Email).Msg("Complaint filed")
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": c})
}

// ListComplaints handles GET /api/complaints?requestNumber
func (h *Handler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	number := strings.TrimSpace(r.URL.Query().Get("requestNumber"))
	if number == "" && !s.Staff() {
		writeError(w, r, invalid("requestNumber is required"))
		return
	}
	if number != "" {
		if _, _, err := h.loadRequest(r, number); err != nil {
			writeError(w, r, err)
			return
		}
	}

	complaints, err := h.store.ListComplaints(r.Context(), number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if complaints == nil {
		complaints = []model.Complaint{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": complaints})
}

// CreateEvaluation handles POST /api/evaluations. The store refuses requests
// that are not completed or were already evaluated.
func (h *Handler) CreateEvaluation(w http.ResponseWriter, r *http.Request) {
	var body EvaluationRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.RequestNumber == "" {
		writeError(w, r, invalid("requestNumber is required"))
		return
	}
	if body.Score < 1 || body.Score > 5 {
		writeError(w, r, invalid("score must be between 1 and 5"))
		return
	}

	_, s, err := h.loadRequest(r, body.RequestNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}

	e := &model.Evaluation{
		ID:             uuid.NewString(),
		RequestNumber:  body.RequestNumber,
		Score:          body.Score,
		Comment:        strings.TrimSpace(body.Comment),
		Evaluator:      s.Name,
		EvaluatorEmail: s.Email,
		CreatedAt:      h.now().UTC(),
	}
	if err := h.store.CreateEvaluation(r.Context(), e); err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().Str("requestNumber", e.RequestNumber).Int("score", e.Score).Str("user", s.Email).Msg("Request evaluated")
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": e})
}

// ListEvaluations handles GET /api/evaluations?requestNumber
func (h *Handler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	number := strings.TrimSpace(r.URL.Query().Get("requestNumber"))
	if number == "" && !s.Staff() {
		writeError(w, r, invalid("requestNumber is required"))
		return
	}
	if number != "" {
		if _, _, err := h.loadRequest(r, number); err != nil {
			writeError(w, r, err)
			return
		}
	}

	evaluations, err := h.store.ListEvaluations(r.Context(), number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if evaluations == nil {
		evaluations = []model.Evaluation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": evaluations})
}
