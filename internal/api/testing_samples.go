package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/labportal/internal/dal"
	"stealthcompany.com/labportal/internal/lifecycle"
	"stealthcompany.com/labportal/internal/metrics"
	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/report"
	"stealthcompany.com/labportal/internal/status"
	"stealthcompany.com/labportal/internal/storage"
)

// Result states of listings that degrade instead of failing
const (
	StateOK          = "ok"
	StateEmpty       = "empty"
	StateUnavailable = "unavailable"
)

const (
	samplesUnavailableMessage = "Testing samples are temporarily unavailable"
	exportRowLimit            = 5000
	xlsxContentType           = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type SampleListResponse struct {
	Success    bool                   `json:"success"`
	Data       []model.SampleListItem `json:"data"`
	Pagination Pagination             `json:"pagination"`
	State      string                 `json:"state"`
	Message    string                 `json:"message,omitempty"`
}

// PatchSampleRequest is the body of PATCH /api/testing-samples
type PatchSampleRequest struct {
	TestingListID         string     `json:"testingListId"`
	Status                string     `json:"status"`
	Note                  string     `json:"note,omitempty"`
	ReceiveDate           *time.Time `json:"receiveDate,omitempty"`
	OperationCompleteDate *time.Time `json:"operationCompleteDate,omitempty"`
	OperationCompleteBy   string     `json:"operationCompleteBy,omitempty"`
	EntryResultDate       *time.Time `json:"entryResultDate,omitempty"`
	EntryResultBy         string     `json:"entryResultBy,omitempty"`
}

type ReceiveRequest struct {
	RequestNumber  string     `json:"requestNumber"`
	TestingListIDs []string   `json:"testingListIds"`
	ReceiveDate    *time.Time `json:"receiveDate,omitempty"`
}

// sampleFilter reads the listing query. Status labels go through the shared
// mapping; "all" or empty means no filter.
func (h *Handler) sampleFilter(ctx context.Context, r *http.Request) (dal.SampleFilter, error) {
	q := r.URL.Query()
	f := dal.SampleFilter{
		Search:        q.Get("search"),
		RequestNumber: strings.TrimSpace(q.Get("requestNumber")),
	}
	if label := strings.TrimSpace(q.Get("status")); label != "" && !strings.EqualFold(label, "all") {
		f.Status = status.FromLabel(label)
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f = f.Normalize()

	name, err := dal.ResolveCapabilityName(ctx, h.store, q.Get("capability"))
	if err != nil {
		return f, err
	}
	f.CapabilityName = name

	if err := h.scopeSamples(r, &f); err != nil {
		return f, err
	}
	return f, nil
}

// scopeSamples limits non-staff callers to the requests they can access
func (h *Handler) scopeSamples(r *http.Request, f *dal.SampleFilter) error {
	s, err := currentSession(r)
	if err != nil {
		return err
	}
	if s.Staff() {
		return nil
	}
	reqs, err := h.store.ListRequests(r.Context(), dal.RequestFilter{Participant: s.Email})
	if err != nil {
		return err
	}
	f.Scoped = true
	f.RequestNumbers = make([]string, 0, len(reqs))
	for i := range reqs {
		if canAccess(s, &reqs[i]) {
			f.RequestNumbers = append(f.RequestNumbers, reqs[i].RequestNumber)
		}
	}
	return nil
}

// joinRequesters adds requester name and request type to each row. A failed
// join leaves the rows without those fields.
func (h *Handler) joinRequesters(ctx context.Context, samples []model.TestingSample) []model.SampleListItem {
	seen := make(map[string]bool)
	var numbers []string
	for _, s := range samples {
		if !seen[s.RequestNumber] {
			seen[s.RequestNumber] = true
			numbers = append(numbers, s.RequestNumber)
		}
	}

	summaries, err := h.store.RequestSummaries(ctx, numbers)
	if err != nil {
		log.Warn().Err(err).Int("requests", len(numbers)).Msg("Requester join failed")
		summaries = nil
	}

	out := make([]model.SampleListItem, 0, len(samples))
	for _, s := range samples {
		item := model.SampleListItem{TestingSample: s}
		if sum, ok := summaries[s.RequestNumber]; ok {
			item.RequesterName = sum.RequesterName
			item.RequestType = sum.RequestType
		}
		out = append(out, item)
	}
	return out
}

// ListTestingSamples handles GET /api/testing-samples
func (h *Handler) ListTestingSamples(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	f, err := h.sampleFilter(ctx, r)
	var page dal.SamplePage
	if err == nil {
		page, err = h.store.ListSamples(ctx, f)
	}
	if err != nil {
		log.Error().Err(err).Str("search", f.Search).Msg("Testing sample listing degraded")
		metrics.RecordDegraded("/api/testing-samples")
		writeJSON(w, http.StatusOK, SampleListResponse{
			Success:    true,
			Data:       []model.SampleListItem{},
			Pagination: Pagination{Page: f.Page, Limit: f.Limit},
			State:      StateUnavailable,
			Message:    samplesUnavailableMessage,
		})
		return
	}

	resp := SampleListResponse{
		Success: true,
		Data:    h.joinRequesters(ctx, page.Samples),
		Pagination: Pagination{
			Total: page.Total,
			Page:  f.Page,
			Limit: f.Limit,
			Pages: page.Pages(f.Limit),
		},
		State: StateOK,
	}
	if len(resp.Data) == 0 {
		resp.State = StateEmpty
	}
	writeJSON(w, http.StatusOK, resp)
}

// transition moves one sample and reconciles its request in one unit of work
func (h *Handler) transition(ctx context.Context, id string, t lifecycle.Transition, check func(*model.TestingSample) error) (*model.TestingSample, lifecycle.Outcome, error) {
	now := h.now()
	var out lifecycle.Outcome
	sample, err := h.store.TransitionSample(ctx, id, func(s *model.TestingSample, siblings []model.TestingSample, req *model.Request) (bool, error) {
		if check != nil {
			if err := check(s); err != nil {
				return false, err
			}
		}
		o, err := lifecycle.Apply(s, siblings, req, t, now)
		if err != nil {
			return false, err
		}
		out = o
		return o.RequestChanged, nil
	})
	if err != nil {
		return nil, lifecycle.Outcome{}, err
	}

	requestTo := ""
	if out.RequestChanged {
		requestTo = out.RequestStatus.String()
		log.Info().
			Str("requestNumber", sample.RequestNumber).
			Str("status", requestTo).
			Msg("Request status reconciled from samples")
	}
	metrics.RecordSampleTransition(t.To.String(), requestTo)
	return sample, out, nil
}

// PatchTestingSample handles PATCH /api/testing-samples
func (h *Handler) PatchTestingSample(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body PatchSampleRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	body.TestingListID = strings.TrimSpace(body.TestingListID)
	if body.TestingListID == "" || strings.TrimSpace(body.Status) == "" {
		writeError(w, r, invalid("testingListId and status are required"))
		return
	}
	to, ok := status.Parse(body.Status)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %q", lifecycle.ErrUnknownStatus, body.Status))
		return
	}

	sample, out, err := h.transition(r.Context(), body.TestingListID, lifecycle.Transition{
		To:                    to,
		Note:                  body.Note,
		ReceiveDate:           body.ReceiveDate,
		OperationCompleteDate: body.OperationCompleteDate,
		OperationCompleteBy:   body.OperationCompleteBy,
		EntryResultDate:       body.EntryResultDate,
		EntryResultBy:         body.EntryResultBy,
		Actor:                 s.Name,
	}, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().
		Str("testingListId", sample.TestingListID).
		Str("status", to.String()).
		Str("user", s.Email).
		Msg("Testing sample updated")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"data":        sample,
		"allReceived": out.Summary.AllReceived(),
	})
}

// CheckAllReceived handles GET /api/testing-samples/check-all-received
func (h *Handler) CheckAllReceived(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(r.URL.Query().Get("requestNumber"))
	if number == "" {
		writeError(w, r, invalid("requestNumber is required"))
		return
	}

	// an unknown request has no samples and reports nothing received
	if _, _, err := h.loadRequest(r, number); err != nil && !errors.Is(err, dal.ErrNotFound) {
		writeError(w, r, err)
		return
	}

	samples, err := h.store.SamplesForRequest(r.Context(), number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum := status.Summarize(model.Statuses(samples))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"allReceived":     sum.AllReceived(),
		"totalSamples":    sum.Total,
		"receivedSamples": sum.Received,
		"pendingSamples":  sum.Pending,
	})
}

// ReceiveSamples handles POST /api/testing-samples/receive
func (h *Handler) ReceiveSamples(w http.ResponseWriter, r *http.Request) {
	s, err := currentSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body ReceiveRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.RequestNumber == "" || len(body.TestingListIDs) == 0 {
		writeError(w, r, invalid("requestNumber and testingListIds are required"))
		return
	}

	receivable := func(sample *model.TestingSample) error {
		if sample.RequestNumber != body.RequestNumber {
			return invalid("testing sample %s does not belong to %s", sample.TestingListID, body.RequestNumber)
		}
		if sample.SampleStatus == status.Terminated {
			return fmt.Errorf("%w: %s", lifecycle.ErrSampleClosed, sample.TestingListID)
		}
		if !sample.SampleStatus.Receivable() {
			return fmt.Errorf("%w: testing sample %s is already %s", lifecycle.ErrTransition, sample.TestingListID, sample.SampleStatus)
		}
		return nil
	}

	// every sample is checked before anything is written
	seen := make(map[string]bool, len(body.TestingListIDs))
	for _, id := range body.TestingListIDs {
		if seen[id] {
			writeError(w, r, invalid("testing sample %s is listed twice", id))
			return
		}
		seen[id] = true
		sample, err := h.store.GetSample(r.Context(), id)
		if err == nil {
			err = receivable(sample)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	received := make([]*model.TestingSample, 0, len(body.TestingListIDs))
	var out lifecycle.Outcome
	for _, id := range body.TestingListIDs {
		sample, o, err := h.transition(r.Context(), id, lifecycle.Transition{
			To:          status.InProgress,
			ReceiveDate: body.ReceiveDate,
			Actor:       s.Name,
		}, receivable)
		if err != nil {
			log.Warn().Err(err).
				Str("requestNumber", body.RequestNumber).
				Int("received", len(received)).
				Msg("Sample receipt stopped part way")
			writeErrorWith(w, r, err, map[string]interface{}{"data": received})
			return
		}
		received = append(received, sample)
		out = o
	}

	log.Info().
		Str("requestNumber", body.RequestNumber).
		Int("samples", len(received)).
		Str("user", s.Email).
		Msg("Samples received")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"data":        received,
		"allReceived": out.Summary.AllReceived(),
	})
}

// ExportTestingSamples handles GET /api/testing-samples/export
func (h *Handler) ExportTestingSamples(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := h.sampleFilter(ctx, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	f.Limit = dal.MaxLimit
	var rows []model.SampleListItem
	for f.Page = 1; ; f.Page++ {
		page, err := h.store.ListSamples(ctx, f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rows = append(rows, h.joinRequesters(ctx, page.Samples)...)
		if len(page.Samples) < f.Limit || len(rows) >= page.Total || len(rows) >= exportRowLimit {
			break
		}
	}
	if len(rows) > exportRowLimit {
		rows = rows[:exportRowLimit]
	}

	b, err := report.Samples(rows)
	if err != nil {
		writeError(w, r, err)
		return
	}

	name := fmt.Sprintf("testing-samples-%s.xlsx", h.now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b); err != nil {
		log.Warn().Err(err).Msg("Export write interrupted")
	}
}

// UploadSampleFile handles POST /api/testing-samples/{id}/files
func (h *Handler) UploadSampleFile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.store.GetSample(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	ref, err := h.receiveUpload(w, r, func(fileName string) (string, error) {
		return storage.SampleFileKey(id, fileName, h.now())
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	sample, err := h.store.AddSampleAttachment(r.Context(), id, ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": sample})
}

// receiveUpload stores the multipart "file" field under the key chosen by keyFor
func (h *Handler) receiveUpload(w http.ResponseWriter, r *http.Request, keyFor func(fileName string) (string, error)) (model.FileRef, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.FileRef{}, invalid("file exceeds %d bytes", h.maxUpload)
		}
		return model.FileRef{}, invalid("multipart form expected: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return model.FileRef{}, invalid("file field is required")
	}
	defer file.Close()

	key, err := keyFor(header.Filename)
	if err != nil {
		return model.FileRef{}, err
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ref, err := h.files.Put(r.Context(), key, file, header.Size, contentType)
	if err != nil {
		return model.FileRef{}, fmt.Errorf("failed to store %s: %w", key, err)
	}
	return ref, nil
}
