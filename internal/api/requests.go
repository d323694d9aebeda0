package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/labportal/internal/dal"
	"stealthcompany.com/labportal/internal/lifecycle"
	"stealthcompany.com/labportal/internal/metrics"
	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/session"
	"stealthcompany.com/labportal/internal/slots"
	"stealthcompany.com/labportal/internal/status"
	"stealthcompany.com/labportal/internal/wizard"
)

// SubmissionResponse confirms a created request
type SubmissionResponse struct {
	Success        bool           `json:"success"`
	RequestNumber  string         `json:"requestNumber"`
	TotalCost      float64        `json:"totalCost"`
	TestingSamples int            `json:"testingSamples"`
	Data           *model.Request `json:"data"`
}

type UrgentDecision struct {
	Approved bool   `json:"approved"`
	Note     string `json:"note,omitempty"`
}

type TerminateRequest struct {
	Confirm bool   `json:"confirm"`
	Reason  string `json:"reason"`
}

func closedErr(req *model.Request) error {
	return fmt.Errorf("%w: %s is %s", lifecycle.ErrRequestClosed, req.RequestNumber, req.Status)
}

// readDraft decodes a submission and fills the requester from the session
// when the form left it empty.
func readDraft(r *http.Request) (*session.Session, *wizard.Draft, error) {
	s, err := currentSession(r)
	if err != nil {
		return nil, nil, err
	}
	var d wizard.Draft
	if err := decodeJSON(r, &d); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(d.Requester.Email) == "" {
		d.Requester.Email = s.Email
		if d.Requester.Name == "" {
			d.Requester.Name = s.Name
		}
		if d.Requester.Department == "" {
			d.Requester.Department = s.Department
		}
	} else if !strings.EqualFold(d.Requester.Email, s.Email) && d.Requester.OnBehalfOf == "" {
		d.Requester.OnBehalfOf = s.Email
	}
	return s, &d, nil
}

func validateDraft(flow wizard.Flow, d *wizard.Draft) error {
	m, err := wizard.For(flow)
	if err != nil {
		return err
	}
	return m.ValidateAll(d)
}

// submissionFailed answers an error and counts the failed attempt
func submissionFailed(w http.ResponseWriter, r *http.Request, t model.RequestType, err error) {
	result := "error"
	switch statusFor(err) {
	case http.StatusBadRequest:
		result = "invalid"
	case http.StatusConflict:
		result = "conflict"
	}
	metrics.RecordSubmission(string(t), result)
	writeError(w, r, err)
}

func (h *Handler) baseRequest(t model.RequestType, number string, d *wizard.Draft) *model.Request {
	now := h.now().UTC()
	priority := d.Priority
	if priority.Level == "" {
		priority.Level = model.PriorityNormal
	}
	if priority.Level == model.PriorityUrgent {
		priority.ApprovalStatus = model.UrgentPending
	}
	samples := make([]model.SampleDefinition, 0, len(d.Samples))
	for _, s := range d.Samples {
		s.GeneratedName = wizard.GenerateName(s)
		samples = append(samples, s)
	}
	return &model.Request{
		RequestNumber: number,
		RequestType:   t,
		Title:         strings.TrimSpace(d.Title),
		Requester:     d.Requester,
		Funding:       d.Funding,
		Priority:      priority,
		Status:        status.Submitted,
		CapabilityID:  d.CapabilityID,
		Samples:       samples,
		ASRNumber:     d.ASRNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// capabilityName looks up an optional capability; an unknown id is bad input
func (h *Handler) capabilityName(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	c, err := h.store.GetCapability(ctx, id)
	if err != nil {
		if errors.Is(err, dal.ErrNotFound) {
			return "", invalid("unknown capability %q", id)
		}
		return "", err
	}
	return c.Name, nil
}

// method looks up a test method; an unknown id is bad input
func (h *Handler) method(ctx context.Context, id string) (*model.TestMethod, error) {
	m, err := h.store.GetTestMethod(ctx, id)
	if err != nil {
		if errors.Is(err, dal.ErrNotFound) {
			return nil, invalid("unknown test method %q", id)
		}
		return nil, err
	}
	return m, nil
}

func fillSelection(sel *model.MethodSelection, m *model.TestMethod) {
	sel.MethodCode = m.MethodCode
	sel.MethodName = m.Name
	sel.EquipmentName = m.EquipmentName
}

// SubmitNTR handles POST /api/requests
func (h *Handler) SubmitNTR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t := model.RequestTypeNTR

	s, d, err := readDraft(r)
	if err == nil {
		err = validateDraft(wizard.FlowNTR, d)
	}
	if err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	capName, err := h.capabilityName(ctx, d.CapabilityID)
	if err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	caps, err := h.store.ListCapabilities(ctx)
	if err != nil {
		submissionFailed(w, r, t, err)
		return
	}
	capNames := make(map[string]string, len(caps))
	for _, c := range caps {
		capNames[c.ID] = c.Name
	}

	methods := make([]*model.TestMethod, len(d.TestMethods))
	for i := range d.TestMethods {
		m, err := h.method(ctx, d.TestMethods[i].MethodID)
		if err != nil {
			submissionFailed(w, r, t, err)
			return
		}
		fillSelection(&d.TestMethods[i], m)
		methods[i] = m
	}

	if d.ASRNumber != "" {
		asr, err := h.store.GetRequest(ctx, d.ASRNumber)
		if err != nil {
			if errors.Is(err, dal.ErrNotFound) {
				err = invalid("unknown ASR %q", d.ASRNumber)
			}
			submissionFailed(w, r, t, err)
			return
		}
		if asr.RequestType != model.RequestTypeASR {
			submissionFailed(w, r, t, invalid("%s is not an ASR", d.ASRNumber))
			return
		}
		if asr.Status.Terminal() {
			submissionFailed(w, r, t, closedErr(asr))
			return
		}
	}

	now := h.now().UTC()
	number, err := h.store.NextRequestNumber(ctx, t, now)
	if err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	req := h.baseRequest(t, number, d)
	req.CapabilityName = capName
	req.TestMethods = d.TestMethods
	req.Status = status.PendingReceive

	index := make(map[string]int, len(req.Samples))
	for i, sd := range req.Samples {
		index[sd.GeneratedName] = i
	}

	var testing []model.TestingSample
	for i, sel := range req.TestMethods {
		m := methods[i]
		methodCap := capNames[m.CapabilityID]
		if methodCap == "" {
			methodCap = capName
		}
		for _, name := range sel.SampleNames {
			testing = append(testing, model.TestingSample{
				TestingListID:  uuid.NewString(),
				RequestNumber:  number,
				SampleID:       fmt.Sprintf("%s-S%02d", number, index[name]+1),
				SampleName:     name,
				MethodID:       m.ID,
				MethodCode:     m.MethodCode,
				EquipmentName:  m.EquipmentName,
				CapabilityName: methodCap,
				SampleStatus:   status.PendingReceive,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
			req.TotalCost += m.PricePerSample
		}
	}

	if err := h.store.CreateRequest(ctx, req, testing); err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	if d.ASRNumber != "" {
		_, err := h.store.UpdateRequest(ctx, d.ASRNumber, func(asr *model.Request) error {
			asr.SubRequests = append(asr.SubRequests, number)
			asr.UpdatedAt = now
			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("asrNumber", d.ASRNumber).Str("requestNumber", number).Msg("Failed to link sub-request")
		}
	}

	metrics.RecordSubmission(string(t), "created")
	log.Info().
		Str("requestNumber", number).
		Str("user", s.Email).
		Int("testingSamples", len(testing)).
		Float64("totalCost", req.TotalCost).
		Msg("NTR submitted")

	writeJSON(w, http.StatusCreated, SubmissionResponse{
		Success:        true,
		RequestNumber:  number,
		TotalCost:      req.TotalCost,
		TestingSamples: len(testing),
		Data:           req,
	})
}

// reserve checks one date's slots against the window and existing bookings
func (h *Handler) reserve(ctx context.Context, sel model.SlotSelection, m *model.TestMethod) ([]model.EquipmentBooking, float64, error) {
	window := slots.WindowFor(m)
	day, err := slots.ParseDate(sel.Date)
	if err != nil {
		return nil, 0, err
	}
	if slots.IsWeekend(day) {
		return nil, 0, fmt.Errorf("%w: %s is a weekend", ErrSlotUnavailable, sel.Date)
	}

	stored, err := h.store.ActiveBookings(ctx, m.ID, sel.Date, sel.Date)
	if err != nil {
		return nil, 0, err
	}
	var existing []slots.Booking
	for _, b := range stored {
		if bk, err := slots.BookingFrom(b); err == nil {
			existing = append(existing, bk)
		}
	}

	out := make([]model.EquipmentBooking, 0, len(sel.Slots))
	for _, label := range sel.Slots {
		slot, ok := window.Find(label)
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s on %s is outside the operating window", ErrSlotUnavailable, label, sel.Date)
		}
		for _, e := range existing {
			if slot.Overlaps(e.Slot) {
				return nil, 0, fmt.Errorf("%w: %s on %s is already booked", ErrSlotUnavailable, label, sel.Date)
			}
		}
		out = append(out, model.EquipmentBooking{
			EquipmentID:     m.EquipmentID,
			EquipmentName:   m.EquipmentName,
			MethodID:        m.ID,
			ReservationDate: sel.Date,
			StartTime:       slot.StartTime(),
			EndTime:         slot.EndTime(),
		})
	}
	return out, window.Cost(len(out), m.PricePerHour), nil
}

// SubmitER handles POST /api/requests/er. Availability is re-scanned here but
// two concurrent submissions for the same slot can both pass.
func (h *Handler) SubmitER(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t := model.RequestTypeER

	s, d, err := readDraft(r)
	if err == nil {
		err = validateDraft(wizard.FlowER, d)
	}
	if err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	capName, err := h.capabilityName(ctx, d.CapabilityID)
	if err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	methods := make(map[string]*model.TestMethod)
	for i := range d.TestMethods {
		m, err := h.method(ctx, d.TestMethods[i].MethodID)
		if err != nil {
			submissionFailed(w, r, t, err)
			return
		}
		fillSelection(&d.TestMethods[i], m)
		methods[m.ID] = m
	}

	var bookings []model.EquipmentBooking
	var cost float64
	for _, sel := range d.Reservations {
		b, c, err := h.reserve(ctx, sel, methods[sel.MethodID])
		if err != nil {
			submissionFailed(w, r, t, err)
			return
		}
		bookings = append(bookings, b...)
		cost += c
	}

	number, err := h.store.NextRequestNumber(ctx, t, h.now())
	if err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	req := h.baseRequest(t, number, d)
	req.CapabilityName = capName
	req.TestMethods = d.TestMethods
	req.Equipment = bookings
	req.TotalCost = cost

	if err := h.store.CreateRequest(ctx, req, nil); err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	metrics.RecordSubmission(string(t), "created")
	log.Info().
		Str("requestNumber", number).
		Str("user", s.Email).
		Int("slots", len(bookings)).
		Float64("totalCost", cost).
		Msg("ER submitted")

	writeJSON(w, http.StatusCreated, SubmissionResponse{
		Success:       true,
		RequestNumber: number,
		TotalCost:     cost,
		Data:          req,
	})
}

// SubmitASR handles POST /api/asr
func (h *Handler) SubmitASR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t := model.RequestTypeASR

	s, d, err := readDraft(r)
	if err == nil {
		err = validateDraft(wizard.FlowASR, d)
	}
	if err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	capName, err := h.capabilityName(ctx, d.CapabilityID)
	if err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	number, err := h.store.NextRequestNumber(ctx, t, h.now())
	if err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	req := h.baseRequest(t, number, d)
	req.CapabilityName = capName
	req.Project = d.Project
	req.ASRNumber = ""

	if err := h.store.CreateRequest(ctx, req, nil); err != nil {
		submissionFailed(w, r, t, err)
		return
	}

	metrics.RecordSubmission(string(t), "created")
	log.Info().Str("requestNumber", number).Str("user", s.Email).Msg("ASR submitted")

	writeJSON(w, http.StatusCreated, SubmissionResponse{
		Success:       true,
		RequestNumber: number,
		Data:          req,
	})
}

// GetRequest handles GET /api/requests/{requestNumber}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, _, err := h.loadRequest(r, mux.Vars(r)["requestNumber"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	samples, err := h.store.SamplesForRequest(r.Context(), req.RequestNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"data":           req,
		"testingSamples": samples,
	})
}

// ListRequests handles GET /api/requests. Requesters only see their own.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := dal.RequestFilter{
		RequesterEmail: strings.TrimSpace(q.Get("requester")),
		Type:           model.RequestType(strings.ToUpper(strings.TrimSpace(q.Get("type")))),
	}
	if label := strings.TrimSpace(q.Get("status")); label != "" && !strings.EqualFold(label, "all") {
		f.Status = status.FromLabel(label)
	}
	if !s.Staff() {
		f.RequesterEmail = s.Email
	}

	reqs, err := h.store.ListRequests(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": reqs, "total": len(reqs)})
}

// DecideUrgent handles POST /api/requests/{requestNumber}/urgent-approval.
// Only the named approver or an admin may decide; a rejection drops the
// request back to normal priority.
func (h *Handler) DecideUrgent(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	number := mux.Vars(r)["requestNumber"]

	var body UrgentDecision
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	now := h.now().UTC()
	req, err := h.store.UpdateRequest(r.Context(), number, func(req *model.Request) error {
		p := &req.Priority
		if p.Level != model.PriorityUrgent {
			return invalid("%s is not an urgent request", number)
		}
		if !strings.EqualFold(p.ApproverEmail, s.Email) && !s.HasRole(session.RoleAdmin) {
			return fmt.Errorf("%w: only %s may decide", ErrForbidden, p.ApproverEmail)
		}
		if p.ApprovalStatus != model.UrgentPending {
			return fmt.Errorf("urgent approval already %s: %w", p.ApprovalStatus, dal.ErrConflict)
		}
		if req.Status.Terminal() {
			return closedErr(req)
		}
		if body.Approved {
			p.ApprovalStatus = model.UrgentApproved
		} else {
			p.ApprovalStatus = model.UrgentRejected
			p.Level = model.PriorityNormal
		}
		p.ApprovalNote = body.Note
		p.DecidedAt = &now
		req.UpdatedAt = now
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().Str("requestNumber", number).Bool("approved", body.Approved).Str("user", s.Email).Msg("Urgent priority decided")
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": req})
}

// TerminateRequest handles POST /api/requests/{requestNumber}/terminate
func (h *Handler) TerminateRequest(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["requestNumber"]

	var body TerminateRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	reason := strings.TrimSpace(body.Reason)
	if !body.Confirm || reason == "" {
		writeError(w, r, invalid("confirm must be true and reason is required"))
		return
	}

	_, s, err := h.loadRequest(r, number)
	if err != nil {
		writeError(w, r, err)
		return
	}

	terminated := 0
	req, err := h.store.UpdateRequestWithSamples(r.Context(), number, func(req *model.Request, samples []model.TestingSample) error {
		if err := lifecycle.Terminate(req, samples, reason, s.Name, h.now()); err != nil {
			return err
		}
		terminated = 0
		for _, ts := range samples {
			if ts.SampleStatus == status.Terminated {
				terminated++
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().
		Str("requestNumber", number).
		Int("samples", terminated).
		Str("user", s.Email).
		Msg("Request terminated")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"data":              req,
		"terminatedSamples": terminated,
	})
}
