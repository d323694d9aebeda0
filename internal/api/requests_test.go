package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/status"
	"stealthcompany.com/labportal/internal/wizard"
)

func TestSubmitNTR(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/requests", f.requester(t), ntrDraft())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp SubmissionResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "NTR-2610-0001", resp.RequestNumber)
	assert.Equal(t, 2, resp.TestingSamples)
	assert.Equal(t, 1000.0, resp.TotalCost)
	assert.Equal(t, status.PendingReceive, resp.Data.Status)
	assert.Equal(t, "Rheology", resp.Data.CapabilityName)
	assert.Equal(t, "RH-MFI", resp.Data.TestMethods[0].MethodCode)
	assert.Equal(t, "HD5000S-A1-S1", resp.Data.Samples[0].GeneratedName)

	samples := f.samples(t, resp.RequestNumber)
	require.Len(t, samples, 2)
	for _, s := range samples {
		assert.Equal(t, status.PendingReceive, s.SampleStatus)
		assert.Equal(t, "Rheology", s.CapabilityName)
		assert.Equal(t, "Rheometer", s.EquipmentName)
	}
	assert.ElementsMatch(t,
		[]string{"NTR-2610-0001-S01", "NTR-2610-0001-S02"},
		[]string{samples[0].SampleID, samples[1].SampleID})

	assert.Equal(t, "NTR-2610-0002", f.submitNTR(t))
}

func TestSubmitNTRValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(d *wizard.Draft)
		code   int
		step   float64
	}{
		{"missing title", func(d *wizard.Draft) { d.Title = "" }, http.StatusBadRequest, 1},
		{"both funding sources", func(d *wizard.Draft) { d.Funding.IONumber = "IO-1" }, http.StatusBadRequest, 2},
		{"urgent without approver", func(d *wizard.Draft) { d.Priority.Level = model.PriorityUrgent }, http.StatusBadRequest, 2},
		{"duplicate sample", func(d *wizard.Draft) { d.Samples[1] = d.Samples[0] }, http.StatusBadRequest, 3},
		{"unassigned sample", func(d *wizard.Draft) { d.TestMethods[0].SampleNames = d.TestMethods[0].SampleNames[:1] }, http.StatusBadRequest, 5},
		{"not confirmed", func(d *wizard.Draft) { d.Confirmed = false }, http.StatusBadRequest, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ntrDraft()
			tt.mutate(&d)
			rec := f.do(t, http.MethodPost, "/api/requests", f.requester(t), d)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			resp := body(t, rec)
			assert.Equal(t, tt.step, resp["step"])
			assert.NotEmpty(t, resp["fields"])
		})
	}

	d := ntrDraft()
	d.TestMethods[0].MethodID = "m-unknown"
	rec := f.do(t, http.MethodPost, "/api/requests", f.requester(t), d)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	d = ntrDraft()
	d.CapabilityID = "cap-unknown"
	rec = f.do(t, http.MethodPost, "/api/requests", f.requester(t), d)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitNTROnBehalfOf(t *testing.T) {
	f := newFixture(t)
	d := ntrDraft()
	d.Requester = model.Requester{Name: "Bo Chan", Email: "bo@example.com"}

	rec := f.do(t, http.MethodPost, "/api/requests", f.requester(t), d)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp SubmissionResponse
	decode(t, rec, &resp)
	assert.Equal(t, "ann@example.com", resp.Data.Requester.OnBehalfOf)

	bo := f.token(t, "bo@example.com", "Bo Chan")
	rec = f.do(t, http.MethodGet, "/api/requests/"+resp.RequestNumber, bo, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/requests/"+resp.RequestNumber, f.requester(t), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/requests/"+resp.RequestNumber, f.token(t, "eve@example.com", "Eve"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitASRAndLinkNTR(t *testing.T) {
	f := newFixture(t)
	asr := wizard.Draft{
		Title:        "New grade study",
		Requester:    model.Requester{Name: "Ann Lee", Email: "ann@example.com"},
		Funding:      model.Funding{CostCenter: "CC-100"},
		CapabilityID: "cap-rh",
		Project: &model.Project{
			Name:            "Grade X",
			Objective:       "Compare flow behaviour",
			ExpectedResults: "Ranking of candidates",
		},
		Samples:   ntrDraft().Samples,
		Confirmed: true,
	}

	rec := f.do(t, http.MethodPost, "/api/asr", f.requester(t), asr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created SubmissionResponse
	decode(t, rec, &created)
	assert.Equal(t, "ASR-2610-0001", created.RequestNumber)
	assert.Equal(t, status.Submitted, created.Data.Status)

	d := ntrDraft()
	d.ASRNumber = created.RequestNumber
	rec = f.do(t, http.MethodPost, "/api/requests", f.requester(t), d)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ntr SubmissionResponse
	decode(t, rec, &ntr)

	parent, err := f.store.GetRequest(t.Context(), created.RequestNumber)
	require.NoError(t, err)
	assert.Equal(t, []string{ntr.RequestNumber}, parent.SubRequests)

	d.ASRNumber = ntr.RequestNumber
	rec = f.do(t, http.MethodPost, "/api/requests", f.requester(t), d)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRequestsScopesToCaller(t *testing.T) {
	f := newFixture(t)
	f.submitNTR(t)
	d := ntrDraft()
	d.Requester = model.Requester{Name: "Bo Chan", Email: "bo@example.com"}
	rec := f.do(t, http.MethodPost, "/api/requests", f.token(t, "bo@example.com", "Bo Chan"), d)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/requests?requester=bo@example.com", f.requester(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body(t, rec)["total"])

	rec = f.do(t, http.MethodGet, "/api/requests", f.lab(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, body(t, rec)["total"])

	rec = f.do(t, http.MethodGet, "/api/requests?type=er", f.lab(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, body(t, rec)["total"])
}

func TestGetRequestIncludesSamples(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)

	rec := f.do(t, http.MethodGet, "/api/requests/"+number, f.requester(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body(t, rec)["testingSamples"], 2)

	rec = f.do(t, http.MethodGet, "/api/requests/NTR-2610-0099", f.requester(t), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecideUrgent(t *testing.T) {
	f := newFixture(t)
	d := ntrDraft()
	d.Priority = model.Priority{Level: model.PriorityUrgent, ApproverEmail: "boss@example.com", Reason: "customer waiting"}
	rec := f.do(t, http.MethodPost, "/api/requests", f.requester(t), d)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created SubmissionResponse
	decode(t, rec, &created)
	assert.Equal(t, model.UrgentPending, created.Data.Priority.ApprovalStatus)
	path := "/api/requests/" + created.RequestNumber + "/urgent-approval"

	rec = f.do(t, http.MethodPost, path, f.requester(t), UrgentDecision{Approved: true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	boss := f.token(t, "boss@example.com", "The Boss")
	rec = f.do(t, http.MethodPost, path, boss, UrgentDecision{Approved: false, Note: "not this week"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req, err := f.store.GetRequest(t.Context(), created.RequestNumber)
	require.NoError(t, err)
	assert.Equal(t, model.UrgentRejected, req.Priority.ApprovalStatus)
	assert.Equal(t, model.PriorityNormal, req.Priority.Level)
	assert.Equal(t, "not this week", req.Priority.ApprovalNote)

	rec = f.do(t, http.MethodPost, path, boss, UrgentDecision{Approved: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/requests/"+f.submitNTR(t)+"/urgent-approval", boss, UrgentDecision{Approved: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTerminateRequest(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	path := "/api/requests/" + number + "/terminate"

	rec := f.do(t, http.MethodPost, path, f.requester(t), TerminateRequest{Reason: "no longer needed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, path, f.requester(t), TerminateRequest{Confirm: true, Reason: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, path, f.token(t, "eve@example.com", "Eve"), TerminateRequest{Confirm: true, Reason: "mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, path, f.requester(t), TerminateRequest{Confirm: true, Reason: "no longer needed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := body(t, rec)
	assert.Equal(t, 2.0, resp["terminatedSamples"])

	req, err := f.store.GetRequest(t.Context(), number)
	require.NoError(t, err)
	assert.Equal(t, status.Terminated, req.Status)
	require.NotNil(t, req.Termination)
	assert.Equal(t, "no longer needed", req.Termination.Reason)
	assert.Equal(t, "Ann Lee", req.Termination.TerminatedBy)
	for _, s := range f.samples(t, number) {
		assert.Equal(t, status.Terminated, s.SampleStatus)
	}

	rec = f.do(t, http.MethodPost, path, f.requester(t), TerminateRequest{Confirm: true, Reason: "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// a terminated sample does not come back
	rec = f.do(t, http.MethodPatch, "/api/testing-samples", f.lab(t), PatchSampleRequest{
		TestingListID: f.samples(t, number)[0].TestingListID,
		Status:        "in-progress",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestComplaints(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)

	rec := f.do(t, http.MethodPost, "/api/complaints", f.requester(t), ComplaintRequest{RequestNumber: number, Subject: "Late"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/complaints", f.requester(t), ComplaintRequest{
		RequestNumber: number,
		Subject:       "Late",
		Description:   "Results are a week overdue",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := body(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, ComplaintOpen, data["status"])
	assert.Equal(t, "general", data["category"])
	assert.Equal(t, "ann@example.com", data["filedByEmail"])

	rec = f.do(t, http.MethodGet, "/api/complaints", f.requester(t), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/complaints?requestNumber="+number, f.requester(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body(t, rec)["data"], 1)

	rec = f.do(t, http.MethodGet, "/api/complaints", f.lab(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body(t, rec)["data"], 1)
}

func TestEvaluations(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	tok := f.requester(t)
	eval := EvaluationRequest{RequestNumber: number, Score: 4, Comment: "fast turnaround"}

	rec := f.do(t, http.MethodPost, "/api/evaluations", tok, eval)
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, s := range f.samples(t, number) {
		rec := f.do(t, http.MethodPatch, "/api/testing-samples", f.lab(t), PatchSampleRequest{TestingListID: s.TestingListID, Status: "completed"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	req, err := f.store.GetRequest(t.Context(), number)
	require.NoError(t, err)
	require.Equal(t, status.Completed, req.Status)

	rec = f.do(t, http.MethodPost, "/api/evaluations", tok, EvaluationRequest{RequestNumber: number, Score: 6})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/evaluations", tok, eval)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/evaluations", tok, eval)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/evaluations?requestNumber="+number, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := body(t, rec)["data"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, 4.0, list[0].(map[string]interface{})["score"])
}
