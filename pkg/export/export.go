package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/arnavshah/ward-census-api/pkg/models"
	"github.com/xuri/excelize/v2"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned for formats other than csv and xlsx
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat reads a format name, defaulting to csv
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the MIME type served for the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// FileName builds the download name for a summary over [start, end]
func FileName(start, end string, f Format) string {
	return fmt.Sprintf("census_%s_%s.%s", start, end, f)
}

// Write renders the summary in the given format
func Write(w io.Writer, s *models.WardSetSummary, f Format) error {
	switch f {
	case FormatCSV:
		return WriteSummaryCSV(w, s)
	case FormatXLSX:
		return WriteSummaryXLSX(w, s)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

var summaryHeaders = []string{
	"ward_id", "ward_name",
	"patient_census", "nurse_manager_count", "rn_count", "pn_count", "wc_count",
	"available_beds", "unavailable_beds", "planned_discharge",
	"new_admit", "transfer_in", "refer_in",
	"discharge", "transfer_out", "refer_out", "deaths",
	"admit_total", "discharge_total",
}

func counts(s models.Snapshot, f models.Flows, admitTotal, dischargeTotal int) []int {
	return []int{
		s.PatientCensus, s.NurseManagerCount, s.RNCount, s.PNCount, s.WCCount,
		s.AvailableBeds, s.UnavailableBeds, s.PlannedDischarge,
		f.NewAdmit, f.TransferIn, f.ReferIn,
		f.Discharge, f.TransferOut, f.ReferOut, f.Deaths,
		admitTotal, dischargeTotal,
	}
}

type tableRow struct {
	id     string
	name   string
	values []int
}

// tableRows lists the ward rows followed by the grand total
func tableRows(s *models.WardSetSummary) []tableRow {
	rows := make([]tableRow, 0, len(s.Rows)+1)
	for _, r := range s.Rows {
		rows = append(rows, tableRow{r.WardID, r.WardName, counts(r.Snapshot, r.Flows, r.AdmitTotal, r.DischargeTotal)})
	}
	g := s.GrandTotal
	rows = append(rows, tableRow{g.WardID, g.WardName, counts(g.Snapshot, g.Flows, g.AdmitTotal, g.DischargeTotal)})
	return rows
}

// WriteSummaryCSV writes one line per ward and a final grand total line
func WriteSummaryCSV(w io.Writer, s *models.WardSetSummary) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(summaryHeaders); err != nil {
		return err
	}

	for _, row := range tableRows(s) {
		record := make([]string, 0, len(summaryHeaders))
		record = append(record, row.id, row.name)
		for _, v := range row.values {
			record = append(record, strconv.Itoa(v))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

const sheetName = "Census"

// WriteSummaryXLSX writes the summary as a single-sheet workbook with a
// frozen header row and a bold grand total row
func WriteSummaryXLSX(w io.Writer, s *models.WardSetSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Border: []excelize.Border{{Type: "top", Color: "000000", Style: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create total style: %w", err)
	}

	for col, header := range summaryHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(summaryHeaders))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(sheetName, "B", "B", 24); err != nil {
		return err
	}

	rows := tableRows(s)
	for i, row := range rows {
		r := i + 2
		if err := setCell(f, 1, r, row.id); err != nil {
			return err
		}
		if err := setCell(f, 2, r, row.name); err != nil {
			return err
		}
		for j, v := range row.values {
			if err := setCell(f, j+3, r, v); err != nil {
				return err
			}
		}
	}

	totalRow := strconv.Itoa(len(rows) + 1)
	if err := f.SetCellStyle(sheetName, "A"+totalRow, lastCol+totalRow, totalStyle); err != nil {
		return fmt.Errorf("failed to set total style: %w", err)
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	return nil
}
