package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"stealthcompany.com/labportal/internal/model"
	"stealthcompany.com/labportal/internal/status"
)

func TestSamplesWorkbook(t *testing.T) {
	received := time.Date(2026, 10, 13, 10, 30, 0, 0, time.UTC)
	rows := []model.SampleListItem{
		{
			TestingSample: model.TestingSample{
				RequestNumber: "NTR-2610-0001",
				SampleName:    "HD5000S-A1-S1",
				MethodCode:    "RH-MFI",
				SampleStatus:  status.InProgress,
				ReceiveDate:   &received,
				ReceivedBy:    "Lab Tech",
			},
			RequesterName: "Ann Lee",
			RequestType:   model.RequestTypeNTR,
		},
	}

	b, err := Samples(rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, SampleHeader, got[0])
	assert.Equal(t, "NTR-2610-0001", got[1][0])
	assert.Equal(t, "Ann Lee", got[1][2])
	assert.Equal(t, "in-progress", got[1][8])
	assert.Equal(t, "2026-10-13 10:30", got[1][9])
}

func TestSamplesWorkbookEmpty(t *testing.T) {
	b, err := Samples(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
