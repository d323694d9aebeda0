package api

import (
	"errors"
	"net/http"
	"strings"

	"stealthcompany.com/labportal/internal/dal"
	"stealthcompany.com/labportal/internal/model"
)

// ListCapabilities handles GET /api/capabilities
func (h *Handler) ListCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := h.store.ListCapabilities(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if caps == nil {
		caps = []model.Capability{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": caps})
}

// ListTestMethods handles GET /api/test-methods?capabilityId. The capability
// may be given by id or by name.
func (h *Handler) ListTestMethods(w http.ResponseWriter, r *http.Request) {
	capID := strings.TrimSpace(r.URL.Query().Get("capabilityId"))
	if capID != "" && !strings.EqualFold(capID, "all") {
		_, err := h.store.GetCapability(r.Context(), capID)
		if err != nil && !errors.Is(err, dal.ErrNotFound) {
			writeError(w, r, err)
			return
		}
		if err != nil {
			caps, lerr := h.store.ListCapabilities(r.Context())
			if lerr != nil {
				writeError(w, r, lerr)
				return
			}
			for _, c := range caps {
				if strings.EqualFold(c.Name, capID) {
					capID = c.ID
					break
				}
			}
		}
	} else {
		capID = ""
	}

	methods, err := h.store.ListTestMethods(r.Context(), capID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if methods == nil {
		methods = []model.TestMethod{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": methods})
}

// ListEquipment handles GET /api/equipment
func (h *Handler) ListEquipment(w http.ResponseWriter, r *http.Request) {
	equipment, err := h.store.ListEquipment(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if equipment == nil {
		equipment = []model.Equipment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": equipment})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "ok", "cache": "ok"}
	code := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		checks["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if err := h.cache.Ping(r.Context()); err != nil {
		checks["cache"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	state := "ok"
	if code != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, code, map[string]interface{}{"status": state, "checks": checks})
}
