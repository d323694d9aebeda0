package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/labportal/internal/metrics"
	"stealthcompany.com/labportal/internal/session"
)

// accessLog chains the zerolog request handlers
func accessLog(next http.Handler) http.Handler {
	h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		lvl := zerolog.InfoLevel
		if status >= http.StatusInternalServerError {
			lvl = zerolog.ErrorLevel
		}
		hlog.FromRequest(r).WithLevel(lvl).
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	})(next)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.RequestIDHandler("request_id", "X-Request-ID")(h)
	return hlog.NewHandler(log.Logger)(h)
}

// SetupRoutes configures and returns the HTTP router
func (h *Handler) SetupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Use(accessLog)
	r.Use(metrics.Middleware)
	r.Use(h.sessions.Middleware)

	lab := func(fn http.HandlerFunc) http.Handler {
		return session.RequireRole(session.RoleLab, session.RoleAdmin)(fn)
	}

	r.HandleFunc(session.HealthPath, h.Health).Methods(http.MethodGet)
	r.Handle(session.MetricsPath, metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/session", h.CreateSession).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/session", h.RevokeSession).Methods(http.MethodDelete)
	r.HandleFunc("/api/auth/me", h.Me).Methods(http.MethodGet)

	// Testing samples
	r.HandleFunc("/api/testing-samples", h.ListTestingSamples).Methods(http.MethodGet)
	r.Handle("/api/testing-samples", lab(h.PatchTestingSample)).Methods(http.MethodPatch)
	r.HandleFunc("/api/testing-samples/check-all-received", h.CheckAllReceived).Methods(http.MethodGet)
	r.Handle("/api/testing-samples/export", lab(h.ExportTestingSamples)).Methods(http.MethodGet)
	r.Handle("/api/testing-samples/receive", lab(h.ReceiveSamples)).Methods(http.MethodPost)
	r.Handle("/api/testing-samples/{id}/files", lab(h.UploadSampleFile)).Methods(http.MethodPost)

	// Equipment
	r.HandleFunc("/api/equipment/booked-slots", h.BookedSlots).Methods(http.MethodGet)
	r.HandleFunc("/api/requests/{requestNumber}/equipment", h.ListRequestEquipment).Methods(http.MethodGet)
	r.Handle("/api/requests/{requestNumber}/equipment/{index:[0-9]+}/approval", lab(h.ApproveEquipment)).Methods(http.MethodPut)

	// Requests
	r.HandleFunc("/api/requests", h.SubmitNTR).Methods(http.MethodPost)
	r.HandleFunc("/api/requests", h.ListRequests).Methods(http.MethodGet)
	r.HandleFunc("/api/requests/er", h.SubmitER).Methods(http.MethodPost)
	r.HandleFunc("/api/asr", h.SubmitASR).Methods(http.MethodPost)
	r.HandleFunc("/api/requests/{requestNumber}", h.GetRequest).Methods(http.MethodGet)
	r.HandleFunc("/api/requests/{requestNumber}/urgent-approval", h.DecideUrgent).Methods(http.MethodPost)
	r.HandleFunc("/api/requests/{requestNumber}/terminate", h.TerminateRequest).Methods(http.MethodPost)

	// ASR documents
	r.HandleFunc("/api/asr/{asrNumber}/files", h.UploadASRFile).Methods(http.MethodPost)
	r.HandleFunc("/api/asr/{asrNumber}/files", h.ListASRFiles).Methods(http.MethodGet)

	// Complaints and evaluations
	r.HandleFunc("/api/complaints", h.CreateComplaint).Methods(http.MethodPost)
	r.HandleFunc("/api/complaints", h.ListComplaints).Methods(http.MethodGet)
	r.HandleFunc("/api/evaluations", h.CreateEvaluation).Methods(http.MethodPost)
	r.HandleFunc("/api/evaluations", h.ListEvaluations).Methods(http.MethodGet)

	// Sample sets
	r.HandleFunc("/api/sample-sets", h.ListSampleSets).Methods(http.MethodGet)
	r.HandleFunc("/api/sample-sets", h.CreateSampleSet).Methods(http.MethodPost)
	r.HandleFunc("/api/sample-sets/{id}", h.GetSampleSet).Methods(http.MethodGet)
	r.HandleFunc("/api/sample-sets/{id}", h.DeleteSampleSet).Methods(http.MethodDelete)

	// Catalogue
	r.HandleFunc("/api/capabilities", h.ListCapabilities).Methods(http.MethodGet)
	r.HandleFunc("/api/test-methods", h.ListTestMethods).Methods(http.MethodGet)
	r.HandleFunc("/api/equipment", h.ListEquipment).Methods(http.MethodGet)

	// Wizard
	r.HandleFunc("/api/wizard/sample-name", h.GenerateSampleName).Methods(http.MethodPost)
	r.HandleFunc("/api/wizard/{flow}", h.WizardSteps).Methods(http.MethodGet)
	r.HandleFunc("/api/wizard/{flow}/steps/{step:[0-9]+}/validate", h.ValidateStep).Methods(http.MethodPost)
	r.HandleFunc("/api/wizard/{flow}/steps/{step:[0-9]+}/back", h.StepBack).Methods(http.MethodPost)
	r.HandleFunc("/api/drafts/{flow}", h.SaveDraft).Methods(http.MethodPut)
	r.HandleFunc("/api/drafts/{flow}", h.LoadDraft).Methods(http.MethodGet)

	return r
}
