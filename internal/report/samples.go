// Package report renders testing sample listings as xlsx workbooks.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"stealthcompany.com/labportal/internal/model"
)

// SheetName is the name of the single sheet in an export
const SheetName = "Testing Samples"

const dateLayout = "2006-01-02 15:04"

// SampleHeader is the column order of the export
var SampleHeader = []string{
	"Request Number",
	"Request Type",
	"Requester",
	"Sample ID",
	"Sample Name",
	"Method Code",
	"Equipment",
	"Capability",
	"Status",
	"Received",
	"Received By",
	"Operation Complete",
	"Entry Result",
	"Note",
}

var columnWidths = []float64{16, 10, 20, 14, 24, 14, 20, 16, 20, 18, 18, 18, 18, 30}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func sampleRow(s model.SampleListItem) []interface{} {
	return []interface{}{
		s.RequestNumber,
		string(s.RequestType),
		s.RequesterName,
		s.SampleID,
		s.SampleName,
		s.MethodCode,
		s.EquipmentName,
		s.CapabilityName,
		s.SampleStatus.String(),
		formatTime(s.ReceiveDate),
		s.ReceivedBy,
		formatTime(s.OperationCompleteDate),
		formatTime(s.EntryResultDate),
		s.Note,
	}
}

// Samples writes the rows to a new workbook and returns its bytes
func Samples(rows []model.SampleListItem) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]interface{}, len(SampleHeader))
	for i, h := range SampleHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(SampleHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for i, w := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetName, col, col, w); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, s := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := sampleRow(s)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
