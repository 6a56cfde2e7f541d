package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rpattn/clinicleads/internal/csvschema"
	"github.com/rpattn/clinicleads/internal/domain"

	"github.com/xuri/excelize/v2"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
	sheetName  = "Export"
)

// Format is the download encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts the query spellings of a Format, defaulting to CSV.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType is the MIME type sent with a download.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv;charset=utf-8"
}

// FileName builds the download name, e.g. appointments-2024-03-05.csv.
func FileName(pipeline domain.Pipeline, format Format, now time.Time) string {
	if format == "" {
		format = FormatCSV
	}
	return fmt.Sprintf("%s-%s.%s", pipeline, now.Format(dateLayout), format)
}

// Rows flattens records into cells following the canonical column order.
// The first row is the header.
func Rows(records []domain.ListedRecord, loc *time.Location) [][]string {
	if loc == nil {
		loc = time.Local
	}
	columns := csvschema.Canonical.Columns
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, csvschema.Canonical.Labels())

	for _, record := range records {
		row := make([]string, len(columns))
		for idx, column := range columns {
			row[idx] = cell(record, column.Key, loc)
		}
		rows = append(rows, row)
	}
	return rows
}

func cell(record domain.ListedRecord, key string, loc *time.Location) string {
	switch key {
	case csvschema.KeyPatientName:
		return record.Patient.Name
	case csvschema.KeyPatientEmail:
		return record.Patient.Email
	case csvschema.KeyPatientPhone:
		return record.Patient.PhoneNumber
	case csvschema.KeyDate:
		if record.Date == nil || record.Date.IsZero() {
			return ""
		}
		return record.Date.In(loc).Format(dateLayout)
	case csvschema.KeyTime:
		if record.Date == nil || record.Date.IsZero() {
			return ""
		}
		return record.Date.In(loc).Format(timeLayout)
	case csvschema.KeyTreatment:
		return record.Service
	case csvschema.KeyStatus:
		return record.Status
	case csvschema.KeySource:
		return record.Source
	case csvschema.KeyNotes:
		return record.Notes
	default:
		return ""
	}
}

// Serialize writes records as RFC 4180 CSV. Output is deterministic for a
// given input and location.
func Serialize(w io.Writer, records []domain.ListedRecord, loc *time.Location) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(Rows(records, loc)); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// SerializeXLSX writes records to a single-sheet workbook.
func SerializeXLSX(w io.Writer, records []domain.ListedRecord, loc *time.Location) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	stream, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("failed to open sheet writer: %w", err)
	}
	for idx, row := range Rows(records, loc) {
		cells := make([]any, len(row))
		for i, value := range row {
			cells[i] = value
		}
		axis, err := excelize.CoordinatesToCellName(1, idx+1)
		if err != nil {
			return err
		}
		if err := stream.SetRow(axis, cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", idx+1, err)
		}
	}
	if err := stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}
