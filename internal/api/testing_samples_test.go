package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/report"
	"stealthcompany.com/labportal/internal/status"
)

func TestListTestingSamplesFilters(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	tok := f.requester(t)

	tests := []struct {
		name  string
		query url.Values
		rows  int
		state string
	}{
		{"no filter", url.Values{}, 2, StateOK},
		{"all status", url.Values{"status": {"all"}}, 2, StateOK},
		{"ui label", url.Values{"status": {"pending receive sample"}}, 2, StateOK},
		{"stored value", url.Values{"status": {"Pending Receive"}}, 2, StateOK},
		{"no match", url.Values{"status": {"completed"}}, 0, StateEmpty},
		{"capability by id", url.Values{"capability": {"cap-rh"}}, 2, StateOK},
		{"capability by name", url.Values{"capability": {"rheology"}}, 2, StateOK},
		{"other capability", url.Values{"capability": {"cap-mc"}}, 0, StateEmpty},
		{"search is case insensitive", url.Values{"search": {"a1-s2"}}, 1, StateOK},
		{"search is quoted", url.Values{"search": {"HD5000S.A1"}}, 0, StateEmpty},
		{"request number", url.Values{"requestNumber": {number}}, 2, StateOK},
		{"paging", url.Values{"limit": {"1"}, "page": {"2"}}, 1, StateOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/testing-samples?"+tt.query.Encode(), tok, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp SampleListResponse
			decode(t, rec, &resp)
			assert.True(t, resp.Success)
			assert.Len(t, resp.Data, tt.rows)
			assert.Equal(t, tt.state, resp.State)
		})
	}
}

func TestListTestingSamplesJoinAndPaging(t *testing.T) {
	f := newFixture(t)
	f.submitNTR(t)

	rec := f.do(t, http.MethodGet, "/api/testing-samples?limit=1", f.requester(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SampleListResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Ann Lee", resp.Data[0].RequesterName)
	assert.Equal(t, "NTR", string(resp.Data[0].RequestType))
	assert.Equal(t, Pagination{Total: 2, Page: 1, Limit: 1, Pages: 2}, resp.Pagination)
}

func TestListTestingSamplesScopesRequesters(t *testing.T) {
	f := newFixture(t)
	own := f.submitNTR(t)
	d := ntrDraft()
	d.Requester = model.Requester{Name: "Bo Chan", Email: "bo@example.com"}
	rec := f.do(t, http.MethodPost, "/api/requests", f.token(t, "bo@example.com", "Bo Chan"), d)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tests := []struct {
		name  string
		token string
		query string
		rows  int
		only  string
	}{
		{"requester sees own samples", f.requester(t), "", 2, own},
		{"other request hidden by number", f.requester(t), "?requestNumber=NTR-2610-0002", 0, ""},
		{"stranger sees nothing", f.token(t, "eve@example.com", "Eve"), "", 0, ""},
		{"lab sees everything", f.lab(t), "", 4, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/testing-samples"+tt.query, tt.token, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp SampleListResponse
			decode(t, rec, &resp)
			require.Len(t, resp.Data, tt.rows)
			if tt.only != "" {
				for _, item := range resp.Data {
					assert.Equal(t, tt.only, item.RequestNumber)
				}
			}
		})
	}
}

func TestCheckAllReceivedScopesRequesters(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	path := "/api/testing-samples/check-all-received?requestNumber=" + number

	rec := f.do(t, http.MethodGet, path, f.token(t, "eve@example.com", "Eve"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, path, f.lab(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, body(t, rec)["totalSamples"])
}

func TestListTestingSamplesDegrades(t *testing.T) {
	f := newFixture(t)
	f.submitNTR(t)
	f.store.FailWith(errors.New("cluster unreachable"))

	rec := f.do(t, http.MethodGet, "/api/testing-samples", f.requester(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SampleListResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Data)
	assert.Equal(t, StateUnavailable, resp.State)
	assert.NotEmpty(t, resp.Message)
}

func TestPatchReconcilesRequestAndAgreesWithCheck(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	samples := f.samples(t, number)
	require.Len(t, samples, 2)
	lab := f.lab(t)

	check := func() map[string]interface{} {
		rec := f.do(t, http.MethodGet, "/api/testing-samples/check-all-received?requestNumber="+number, lab, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		return body(t, rec)
	}

	rec := f.do(t, http.MethodPatch, "/api/testing-samples", lab, PatchSampleRequest{
		TestingListID: samples[0].TestingListID,
		Status:        "in-progress",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := body(t, rec)
	assert.Equal(t, false, first["allReceived"])
	assert.Equal(t, check()["allReceived"], first["allReceived"])
	assert.Equal(t, 1.0, check()["receivedSamples"])

	req, err := f.store.GetRequest(t.Context(), number)
	require.NoError(t, err)
	assert.Equal(t, status.PendingReceive, req.Status)

	rec = f.do(t, http.MethodPatch, "/api/testing-samples", lab, PatchSampleRequest{
		TestingListID: samples[1].TestingListID,
		Status:        "in-progress",
		Note:          "arrived cold",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	second := body(t, rec)
	assert.Equal(t, true, second["allReceived"])
	assert.Equal(t, check()["allReceived"], second["allReceived"])

	data := second["data"].(map[string]interface{})
	assert.Equal(t, "Lab Tech", data["receivedBy"])
	assert.Equal(t, "arrived cold", data["note"])
	assert.NotEmpty(t, data["receiveDate"])

	req, err = f.store.GetRequest(t.Context(), number)
	require.NoError(t, err)
	assert.Equal(t, status.InProgress, req.Status)
}

func TestPatchValidation(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	id := f.samples(t, number)[0].TestingListID

	tests := []struct {
		name  string
		token string
		body  interface{}
		code  int
	}{
		{"missing status", f.lab(t), PatchSampleRequest{TestingListID: id}, http.StatusBadRequest},
		{"missing id", f.lab(t), PatchSampleRequest{Status: "completed"}, http.StatusBadRequest},
		{"unknown status", f.lab(t), PatchSampleRequest{TestingListID: id, Status: "shipped"}, http.StatusBadRequest},
		{"unknown sample", f.lab(t), PatchSampleRequest{TestingListID: "nope", Status: "completed"}, http.StatusNotFound},
		{"requester cannot patch", f.requester(t), PatchSampleRequest{TestingListID: id, Status: "completed"}, http.StatusForbidden},
		{"no token", "", PatchSampleRequest{TestingListID: id, Status: "completed"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPatch, "/api/testing-samples", tt.token, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Equal(t, false, body(t, rec)["success"])
		})
	}
}

func TestPatchStoreFailure(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	id := f.samples(t, number)[0].TestingListID
	f.store.FailWith(errors.New("timeout"))

	rec := f.do(t, http.MethodPatch, "/api/testing-samples", f.lab(t), PatchSampleRequest{TestingListID: id, Status: "in-progress"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body(t, rec)["error"])
}

func TestPatchCompletesRequest(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	lab := f.lab(t)

	for _, s := range f.samples(t, number) {
		for _, to := range []string{"in-progress", "Pending Entry Results", "completed"} {
			rec := f.do(t, http.MethodPatch, "/api/testing-samples", lab, PatchSampleRequest{TestingListID: s.TestingListID, Status: to})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}
	}

	req, err := f.store.GetRequest(t.Context(), number)
	require.NoError(t, err)
	assert.Equal(t, status.Completed, req.Status)

	for _, s := range f.samples(t, number) {
		assert.Equal(t, "Lab Tech", s.EntryResultBy)
		assert.Equal(t, "Lab Tech", s.OperationCompleteBy)
		require.NotNil(t, s.EntryResultDate)
	}
}

func TestCheckAllReceived(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	tok := f.requester(t)

	rec := f.do(t, http.MethodGet, "/api/testing-samples/check-all-received", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/testing-samples/check-all-received?requestNumber="+number, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := body(t, rec)
	assert.Equal(t, false, resp["allReceived"])
	assert.Equal(t, 2.0, resp["totalSamples"])
	assert.Equal(t, 2.0, resp["pendingSamples"])

	rec = f.do(t, http.MethodGet, "/api/testing-samples/check-all-received?requestNumber=NTR-0000-0000", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body(t, rec)["allReceived"])
}

func TestReceiveSamples(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	samples := f.samples(t, number)

	rec := f.do(t, http.MethodPost, "/api/testing-samples/receive", f.lab(t), ReceiveRequest{
		RequestNumber:  "NTR-2610-9999",
		TestingListIDs: []string{samples[0].TestingListID},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/testing-samples/receive", f.lab(t), ReceiveRequest{
		RequestNumber:  number,
		TestingListIDs: []string{samples[0].TestingListID, samples[1].TestingListID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body(t, rec)["allReceived"])

	req, err := f.store.GetRequest(t.Context(), number)
	require.NoError(t, err)
	assert.Equal(t, status.InProgress, req.Status)
}

func TestReceiveRefusesSamplesPastTheDesk(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	samples := f.samples(t, number)
	lab := f.lab(t)

	for _, s := range samples {
		rec := f.do(t, http.MethodPatch, "/api/testing-samples", lab, PatchSampleRequest{TestingListID: s.TestingListID, Status: "completed"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodPost, "/api/testing-samples/receive", lab, ReceiveRequest{
		RequestNumber:  number,
		TestingListIDs: []string{samples[1].TestingListID},
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	s, err := f.store.GetSample(t.Context(), samples[1].TestingListID)
	require.NoError(t, err)
	assert.Equal(t, status.Completed, s.SampleStatus)
	assert.Nil(t, s.ReceiveDate)

	req, err := f.store.GetRequest(t.Context(), number)
	require.NoError(t, err)
	assert.Equal(t, status.Completed, req.Status)
}

func TestReceiveChecksEverySampleBeforeWriting(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	samples := f.samples(t, number)
	lab := f.lab(t)

	rec := f.do(t, http.MethodPatch, "/api/testing-samples", lab, PatchSampleRequest{TestingListID: samples[0].TestingListID, Status: "terminated"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []struct {
		name string
		ids  []string
		code int
	}{
		{"terminated sample last", []string{samples[1].TestingListID, samples[0].TestingListID}, http.StatusConflict},
		{"listed twice", []string{samples[1].TestingListID, samples[1].TestingListID}, http.StatusBadRequest},
		{"unknown sample last", []string{samples[1].TestingListID, "missing"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/testing-samples/receive", lab, ReceiveRequest{
				RequestNumber:  number,
				TestingListIDs: tt.ids,
			})
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())

			s, err := f.store.GetSample(t.Context(), samples[1].TestingListID)
			require.NoError(t, err)
			assert.Equal(t, status.PendingReceive, s.SampleStatus)
			assert.Nil(t, s.ReceiveDate)
		})
	}
}

func TestPatchRefusesBackwardMove(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	id := f.samples(t, number)[0].TestingListID
	lab := f.lab(t)

	rec := f.do(t, http.MethodPatch, "/api/testing-samples", lab, PatchSampleRequest{TestingListID: id, Status: "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPatch, "/api/testing-samples", lab, PatchSampleRequest{TestingListID: id, Status: "Pending Receive"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	s, err := f.store.GetSample(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, status.Completed, s.SampleStatus)
}

func TestExportTestingSamples(t *testing.T) {
	f := newFixture(t)
	f.submitNTR(t)

	rec := f.do(t, http.MethodGet, "/api/testing-samples/export", f.lab(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "testing-samples-20261014.xlsx")

	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(report.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestUploadSampleFile(t *testing.T) {
	f := newFixture(t)
	number := f.submitNTR(t)
	id := f.samples(t, number)[0].TestingListID

	rec := f.upload(t, "/api/testing-samples/"+id+"/files", f.lab(t), "chart.pdf", []byte("%PDF-1.4"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	s, err := f.store.GetSample(t.Context(), id)
	require.NoError(t, err)
	require.Len(t, s.Attachments, 1)
	assert.Equal(t, []byte("%PDF-1.4"), f.files.Bytes(s.Attachments[0].Key))

	rec = f.upload(t, "/api/testing-samples/missing/files", f.lab(t), "chart.pdf", []byte("x"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
