package ingestion

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/clinicleads/internal/csvschema"
	"github.com/rpattn/clinicleads/internal/domain"
)

var (
	// ErrMissingRequiredField marks a row lacking a mandatory column value.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrInvalidDate marks a row whose date (or time) cannot be composed.
	ErrInvalidDate = errors.New("invalid/missing date")
)

const (
	dateLayout = "2006-01-02"
	// Date-only rows land at midday so a timezone shift never moves them to another day.
	defaultHour = 12
)

var timeLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM"}

// ResolutionMode selects how service and status values are interpreted.
type ResolutionMode string

const (
	// ResolutionSelector matches values against the clinic catalog.
	ResolutionSelector ResolutionMode = "selector"
	// ResolutionFreeText passes values through untouched.
	ResolutionFreeText ResolutionMode = "freeText"
)

// DatePolicy decides what happens to rows with an absent or malformed date.
type DatePolicy string

const (
	DatePolicyReject         DatePolicy = "reject"
	DatePolicyDefaultToToday DatePolicy = "defaultToToday"
)

// ParseDatePolicy accepts the config spellings of a DatePolicy.
func ParseDatePolicy(raw string) (DatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "reject":
		return DatePolicyReject, nil
	case "defaulttotoday", "default_to_today", "today":
		return DatePolicyDefaultToToday, nil
	default:
		return "", fmt.Errorf("unknown date policy %q", raw)
	}
}

// PipelineConfig captures the per-pipeline mapping rules.
type PipelineConfig struct {
	Pipeline       domain.Pipeline
	RequiredFields []string
	DefaultService string
	DefaultStatus  string
	DefaultSource  string
	Resolution     ResolutionMode
	OnInvalidDate  DatePolicy
	Location       *time.Location
}

// DefaultPipelineConfig returns the rules used for a pipeline unless overridden.
func DefaultPipelineConfig(pipeline domain.Pipeline) PipelineConfig {
	cfg := PipelineConfig{
		Pipeline:       pipeline,
		RequiredFields: []string{csvschema.KeyPatientName, csvschema.KeyPatientPhone},
		DefaultSource:  "WEBSITE",
		OnInvalidDate:  DatePolicyReject,
		Location:       time.Local,
	}
	switch pipeline {
	case domain.PipelineInquiries:
		cfg.DefaultService = "General Inquiry"
		cfg.DefaultStatus = "Enquiry"
		cfg.Resolution = ResolutionFreeText
	default:
		cfg.DefaultService = "General Checkup"
		cfg.DefaultStatus = "Scheduled"
		cfg.Resolution = ResolutionSelector
	}
	return cfg
}

// Outcome is the classification of one raw row: a record when valid, the
// rejection reason otherwise.
type Outcome struct {
	Row    RawRow         `json:"row"`
	Record *domain.Record `json:"record,omitempty"`
	Err    error          `json:"-"`
}

// Valid reports whether the row produced a record.
func (o Outcome) Valid() bool {
	return o.Err == nil && o.Record != nil
}

// Reason is the human readable rejection, empty for valid rows.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Mapper converts raw rows into domain records for a single pipeline.
type Mapper struct {
	cfg     PipelineConfig
	catalog domain.Catalog
	now     func() time.Time
}

// NewMapper builds a mapper. The catalog is only consulted in selector mode.
func NewMapper(cfg PipelineConfig, catalog domain.Catalog, now func() time.Time) *Mapper {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.OnInvalidDate == "" {
		cfg.OnInvalidDate = DatePolicyReject
	}
	if now == nil {
		now = time.Now
	}
	return &Mapper{cfg: cfg, catalog: catalog, now: now}
}

// Map classifies every row, preserving order. It never stops early.
func (m *Mapper) Map(rows []RawRow) []Outcome {
	outcomes := make([]Outcome, len(rows))
	for idx, row := range rows {
		outcomes[idx] = m.MapRow(row)
	}
	return outcomes
}

// MapRow classifies a single row.
func (m *Mapper) MapRow(row RawRow) Outcome {
	for _, field := range m.cfg.RequiredFields {
		if row.Get(field) == "" {
			return Outcome{Row: row, Err: fmt.Errorf("%w: %s", ErrMissingRequiredField, field)}
		}
	}

	record := domain.Record{
		Patient: domain.Patient{
			Name:        row.Get(csvschema.KeyPatientName),
			Email:       row.Get(csvschema.KeyPatientEmail),
			PhoneNumber: row.Get(csvschema.KeyPatientPhone),
		},
		Service: row.Get(csvschema.KeyTreatment),
		Status:  row.Get(csvschema.KeyStatus),
		Source:  row.Get(csvschema.KeySource),
		Notes:   row.Get(csvschema.KeyNotes),
	}

	if record.Service == "" {
		record.Service = m.cfg.DefaultService
	}
	if record.Status == "" {
		record.Status = m.cfg.DefaultStatus
	}
	if record.Source == "" {
		record.Source = m.cfg.DefaultSource
	}

	if m.cfg.Resolution == ResolutionSelector {
		if entry, ok := m.catalog.FindTreatment(record.Service); ok {
			record.Service = entry.Name
			record.ServiceID = entry.ID
		}
		if entry, ok := m.catalog.FindStatus(record.Status); ok {
			record.Status = entry.Name
			record.StatusID = entry.ID
		}
	}

	date, err := m.composeDate(row.Get(csvschema.KeyDate), row.Get(csvschema.KeyTime))
	if err != nil {
		return Outcome{Row: row, Err: err}
	}
	record.Date = date

	return Outcome{Row: row, Record: &record}
}

func (m *Mapper) composeDate(rawDate, rawTime string) (time.Time, error) {
	loc := m.cfg.Location
	lenient := m.cfg.OnInvalidDate == DatePolicyDefaultToToday

	if rawDate == "" {
		if lenient {
			return m.now().In(loc), nil
		}
		return time.Time{}, ErrInvalidDate
	}

	day, err := time.ParseInLocation(dateLayout, rawDate, loc)
	if err != nil {
		if lenient {
			return m.now().In(loc), nil
		}
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidDate, rawDate)
	}

	hour, minute := defaultHour, 0
	if rawTime != "" {
		clock, ok := parseClock(rawTime)
		switch {
		case ok:
			hour, minute = clock.Hour(), clock.Minute()
		case !lenient:
			return time.Time{}, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidDate, rawTime)
		}
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}

func parseClock(raw string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if clock, err := time.Parse(layout, raw); err == nil {
			return clock, true
		}
	}
	return time.Time{}, false
}
