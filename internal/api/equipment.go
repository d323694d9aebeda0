package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/labportal/internal/dal"
	"stealthcompany.com/labportal/internal/metrics"
	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/slots"
)

type BookedSlotsResponse struct {
	Success bool               `json:"success"`
	Data    slots.Availability `json:"data"`
	Window  slots.Window       `json:"window"`
	State   string             `json:"state"`
	Message string             `json:"message,omitempty"`
}

type ApprovalRequest struct {
	Approved bool `json:"approved"`
}

// BookedSlots handles GET /api/equipment/booked-slots
func (h *Handler) BookedSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	methodID := strings.TrimSpace(q.Get("methodId"))
	if methodID == "" {
		writeError(w, r, invalid("methodId is required"))
		return
	}
	from, to, err := slots.ParseRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	degraded := func(window slots.Window, err error) {
		log.Error().Err(err).Str("methodId", methodID).Msg("Slot availability degraded")
		metrics.RecordDegraded("/api/equipment/booked-slots")
		writeJSON(w, http.StatusOK, BookedSlotsResponse{
			Success: true,
			Data:    slots.Compute(window, from, to, nil),
			Window:  window,
			State:   StateUnavailable,
			Message: "Existing bookings could not be loaded; availability may be overstated",
		})
	}

	method, err := h.store.GetTestMethod(r.Context(), methodID)
	if err != nil {
		if errors.Is(err, dal.ErrNotFound) {
			writeError(w, r, err)
			return
		}
		degraded(slots.DefaultWindow(), err)
		return
	}
	window := slots.WindowFor(method)

	stored, err := h.store.ActiveBookings(r.Context(), methodID, from.Format(slots.DateLayout), to.Format(slots.DateLayout))
	if err != nil {
		degraded(window, err)
		return
	}

	bookings := make([]slots.Booking, 0, len(stored))
	for _, b := range stored {
		bk, err := slots.BookingFrom(b)
		if err != nil {
			log.Warn().Err(err).Str("methodId", methodID).Str("date", b.ReservationDate).Msg("Skipping malformed booking")
			continue
		}
		bookings = append(bookings, bk)
	}

	writeJSON(w, http.StatusOK, BookedSlotsResponse{
		Success: true,
		Data:    slots.Compute(window, from, to, bookings),
		Window:  window,
		State:   StateOK,
	})
}

// ListRequestEquipment handles GET /api/requests/{requestNumber}/equipment
func (h *Handler) ListRequestEquipment(w http.ResponseWriter, r *http.Request) {
	req, _, err := h.loadRequest(r, mux.Vars(r)["requestNumber"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	equipment := req.Equipment
	if equipment == nil {
		equipment = []model.EquipmentBooking{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": equipment})
}

// ApproveEquipment handles PUT /api/requests/{requestNumber}/equipment/{index}/approval
func (h *Handler) ApproveEquipment(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	number := vars["requestNumber"]
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeError(w, r, invalid("index must be a number"))
		return
	}

	var body ApprovalRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	now := h.now().UTC()
	req, err := h.store.UpdateRequest(r.Context(), number, func(req *model.Request) error {
		if req.RequestType != model.RequestTypeER {
			return invalid("%s is not an equipment reservation", number)
		}
		if req.Status.Terminal() {
			return closedErr(req)
		}
		if index < 0 || index >= len(req.Equipment) {
			return invalid("equipment index %d out of range", index)
		}
		b := &req.Equipment[index]
		b.Approved = body.Approved
		b.ApprovedBy = s.Name
		b.ApprovedAt = &now
		req.UpdatedAt = now
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().
		Str("requestNumber", number).
		Int("index", index).
		Bool("approved", body.Approved).
		Str("user", s.Email).
		Msg("Equipment booking decided")

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": req.Equipment[index]})
}
