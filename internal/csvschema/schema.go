// Package csvschema defines the column layout shared by CSV import, export
// and the downloadable templates.
package csvschema

import (
	"strings"
	"unicode"
)

// Canonical column keys.
const (
	KeyPatientName  = "patientName"
	KeyPatientEmail = "patientEmail"
	KeyPatientPhone = "patientPhone"
	KeyDate         = "date"
	KeyTime         = "time"
	KeyTreatment    = "treatment"
	KeyStatus       = "status"
	KeySource       = "source"
	KeyNotes        = "notes"
)

// Column pairs the machine key used on import with the label written on export.
type Column struct {
	Key   string
	Label string
}

// Schema is an ordered, versioned list of columns.
type Schema struct {
	Version int
	Columns []Column
}

// Canonical is the single schema used by both pipelines in both directions.
var Canonical = Schema{
	Version: 2,
	Columns: []Column{
		{Key: KeyPatientName, Label: "Patient Name"},
		{Key: KeyPatientEmail, Label: "Email"},
		{Key: KeyPatientPhone, Label: "Mobile"},
		{Key: KeyDate, Label: "Date"},
		{Key: KeyTime, Label: "Time"},
		{Key: KeyTreatment, Label: "Service"},
		{Key: KeyStatus, Label: "Status"},
		{Key: KeySource, Label: "Source"},
		{Key: KeyNotes, Label: "Notes"},
	},
}

// aliases are header spellings seen in older files.
var aliases = map[string]string{
	"name":        KeyPatientName,
	"email":       KeyPatientEmail,
	"phone":       KeyPatientPhone,
	"phonenumber": KeyPatientPhone,
	"mobile":      KeyPatientPhone,
	"service":     KeyTreatment,
}

// Keys returns the column keys in order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s.Columns))
	for i, column := range s.Columns {
		keys[i] = column.Key
	}
	return keys
}

// Labels returns the export header row.
func (s Schema) Labels() []string {
	labels := make([]string, len(s.Columns))
	for i, column := range s.Columns {
		labels[i] = column.Label
	}
	return labels
}

// Resolve maps a header cell onto a canonical key. Matching ignores case,
// spaces, underscores and dashes, and accepts either the key or the label.
func (s Schema) Resolve(header string) (string, bool) {
	needle := normalize(header)
	if needle == "" {
		return "", false
	}
	for _, column := range s.Columns {
		if normalize(column.Key) == needle || normalize(column.Label) == needle {
			return column.Key, true
		}
	}
	if key, ok := aliases[needle]; ok {
		return key, true
	}
	return "", false
}

func normalize(value string) string {
	var builder strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r == ' ' || r == '_' || r == '-' || r == '.':
			continue
		case r == '\ufeff':
			continue
		default:
			builder.WriteRune(unicode.ToLower(r))
		}
	}
	return builder.String()
}
