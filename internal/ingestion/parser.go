package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rpattn/clinicleads/internal/csvschema"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned when the upload carries no rows at all.
	ErrEmptyFile = errors.New("file is empty")
	// ErrMissingHeader is returned when the header row names none of the known columns.
	ErrMissingHeader = errors.New("header row could not be detected")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// ParseOptions controls how raw file content is split into rows.
type ParseOptions struct {
	Header         bool
	SkipEmptyLines bool
}

// DefaultParseOptions expects a header row and drops blank lines.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{Header: true, SkipEmptyLines: true}
}

// RawRow is one data line keyed by canonical column key (or a sanitized
// header for unknown columns).
type RawRow struct {
	Line   int               `json:"line"`
	Values map[string]string `json:"values"`
}

// Get returns the trimmed cell for a column, or "" when absent.
func (r RawRow) Get(key string) string {
	return strings.TrimSpace(r.Values[key])
}

// ParseError reports a malformed line. Parsing continues past it.
type ParseError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ParseResult holds the rows in file order plus any line level errors.
type ParseResult struct {
	Headers []string     `json:"headers"`
	Rows    []RawRow     `json:"rows"`
	Errors  []ParseError `json:"errors"`
}

// Parse turns an uploaded payload into raw rows. The returned error is
// reserved for problems that make the whole file unusable.
func Parse(fileName string, payload []byte, opts ParseOptions) (ParseResult, error) {
	if len(bytes.TrimSpace(bytes.TrimPrefix(payload, byteOrderMark))) == 0 {
		return ParseResult{}, ErrEmptyFile
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".txt", "":
		return parseCSV(payload, opts)
	case ".xlsx":
		return parseExcel(payload, opts)
	default:
		return ParseResult{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, opts ParseOptions) (ParseResult, error) {
	csvReader := csv.NewReader(decodeText(payload))
	csvReader.TrimLeadingSpace = true
	// Zero pins the column count to the first record; later mismatches are reported per line.
	csvReader.FieldsPerRecord = 0

	result := ParseResult{Rows: []RawRow{}, Errors: []ParseError{}}
	var headers []string

	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// Without a header there is no way to key the rows that follow.
				if headers == nil && opts.Header {
					return ParseResult{}, fmt.Errorf("%w: line %d: %v", ErrMissingHeader, parseErr.StartLine, parseErr.Err)
				}
				result.Errors = append(result.Errors, ParseError{
					Line:    parseErr.StartLine,
					Message: parseErr.Err.Error(),
				})
				continue
			}
			return ParseResult{}, fmt.Errorf("failed to read csv: %w", err)
		}

		line, _ := csvReader.FieldPos(0)

		if headers == nil {
			if opts.Header {
				headers, err = resolveHeaders(record)
				if err != nil {
					return ParseResult{}, err
				}
				continue
			}
			headers = positionalHeaders(len(record))
		}

		if opts.SkipEmptyLines && isBlank(record) {
			continue
		}
		result.Rows = append(result.Rows, buildRow(line, headers, record))
	}

	if headers == nil {
		if len(result.Errors) > 0 {
			return result, nil
		}
		return ParseResult{}, ErrEmptyFile
	}
	result.Headers = headers
	return result, nil
}

// decodeText normalises CSV bytes to UTF-8. A BOM selects UTF-8 or UTF-16;
// without one, invalid UTF-8 is read as Windows-1252 (Excel's "CSV" export).
func decodeText(payload []byte) io.Reader {
	fallback := encoding.Nop.NewDecoder()
	if !utf8.Valid(payload) {
		fallback = charmap.Windows1252.NewDecoder()
	}
	return transform.NewReader(bytes.NewReader(payload), unicode.BOMOverride(fallback))
}

func parseExcel(payload []byte, opts ParseOptions) (ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return ParseResult{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ParseResult{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return ParseResult{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	result := ParseResult{Rows: []RawRow{}, Errors: []ParseError{}}
	var headers []string
	for idx, row := range rows {
		if headers == nil {
			// Spreadsheets often lead with blank rows; the header is the first non-empty one.
			if isBlank(row) {
				continue
			}
			if opts.Header {
				headers, err = resolveHeaders(row)
				if err != nil {
					return ParseResult{}, err
				}
				continue
			}
			headers = positionalHeaders(len(row))
		}
		if opts.SkipEmptyLines && isBlank(row) {
			continue
		}
		if width := usedWidth(row); width > len(headers) {
			result.Errors = append(result.Errors, ParseError{
				Line:    idx + 1,
				Message: fmt.Sprintf("%v: expected %d, got %d", csv.ErrFieldCount, len(headers), width),
			})
			continue
		}
		result.Rows = append(result.Rows, buildRow(idx+1, headers, padRow(row, len(headers))))
	}

	if headers == nil {
		return ParseResult{}, ErrEmptyFile
	}
	result.Headers = headers
	return result, nil
}

// resolveHeaders maps header cells to canonical keys; unknown columns keep a
// sanitized name so they stay visible in previews.
func resolveHeaders(raw []string) ([]string, error) {
	headers := sanitizeHeaders(raw)
	known := 0
	for idx, value := range raw {
		if key, ok := csvschema.Canonical.Resolve(value); ok {
			headers[idx] = key
			known++
		}
	}
	if known == 0 {
		return nil, ErrMissingHeader
	}
	return headers, nil
}

// positionalHeaders names header-less columns after the canonical column order.
func positionalHeaders(width int) []string {
	keys := csvschema.Canonical.Keys()
	headers := make([]string, width)
	for idx := range headers {
		if idx < len(keys) {
			headers[idx] = keys[idx]
		} else {
			headers[idx] = fmt.Sprintf("column_%d", idx+1)
		}
	}
	return headers
}

func buildRow(line int, headers []string, record []string) RawRow {
	values := make(map[string]string, len(headers))
	for idx, header := range headers {
		if idx < len(record) {
			values[header] = strings.TrimSpace(record[idx])
		} else {
			values[header] = ""
		}
	}
	return RawRow{Line: line, Values: values}
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

// usedWidth is the row length up to its last non-blank cell.
func usedWidth(row []string) int {
	for idx := len(row) - 1; idx >= 0; idx-- {
		if strings.TrimSpace(row[idx]) != "" {
			return idx + 1
		}
	}
	return 0
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
