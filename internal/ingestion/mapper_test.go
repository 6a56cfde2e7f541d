package ingestion

import (
	"errors"
	"testing"
	"time"

	"github.com/rpattn/clinicleads/internal/csvschema"
	"github.com/rpattn/clinicleads/internal/domain"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC)
}

func appointmentRow(overrides map[string]string) RawRow {
	values := map[string]string{
		csvschema.KeyPatientName:  "John Doe",
		csvschema.KeyPatientEmail: "john@example.com",
		csvschema.KeyPatientPhone: "1234567890",
		csvschema.KeyDate:         "2023-12-31",
		csvschema.KeyTime:         "10:00",
		csvschema.KeyTreatment:    "General Checkup",
		csvschema.KeyStatus:       "Scheduled",
		csvschema.KeySource:       "WEBSITE",
		csvschema.KeyNotes:        "First visit",
	}
	for key, value := range overrides {
		values[key] = value
	}
	return RawRow{Line: 2, Values: values}
}

func utcConfig(pipeline domain.Pipeline) PipelineConfig {
	cfg := DefaultPipelineConfig(pipeline)
	cfg.Location = time.UTC
	return cfg
}

func TestMapperComposesDateAndTime(t *testing.T) {
	mapper := NewMapper(utcConfig(domain.PipelineAppointments), domain.Catalog{}, fixedClock)

	outcome := mapper.MapRow(appointmentRow(nil))
	if !outcome.Valid() {
		t.Fatalf("expected valid row, got %s", outcome.Reason())
	}

	record := outcome.Record
	want := time.Date(2023, 12, 31, 10, 0, 0, 0, time.UTC)
	if !record.Date.Equal(want) {
		t.Fatalf("expected %s, got %s", want, record.Date)
	}
	if record.Patient.Name != "John Doe" || record.Patient.PhoneNumber != "1234567890" {
		t.Fatalf("unexpected patient: %+v", record.Patient)
	}
	if record.Notes != "First visit" || record.Source != "WEBSITE" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestMapperRejectsMissingPhone(t *testing.T) {
	mapper := NewMapper(utcConfig(domain.PipelineAppointments), domain.Catalog{}, fixedClock)

	outcome := mapper.MapRow(appointmentRow(map[string]string{csvschema.KeyPatientPhone: "  "}))
	if outcome.Valid() {
		t.Fatalf("expected invalid row")
	}
	if !errors.Is(outcome.Err, ErrMissingRequiredField) {
		t.Fatalf("expected missing required field, got %v", outcome.Err)
	}
}

func TestMapperRejectsWrongDateFormat(t *testing.T) {
	mapper := NewMapper(utcConfig(domain.PipelineAppointments), domain.Catalog{}, fixedClock)

	for _, raw := range []string{"31-12-2023", "", "2023-02-30"} {
		outcome := mapper.MapRow(appointmentRow(map[string]string{csvschema.KeyDate: raw}))
		if !errors.Is(outcome.Err, ErrInvalidDate) {
			t.Fatalf("date %q: expected invalid date, got %v", raw, outcome.Err)
		}
	}

	outcome := mapper.MapRow(appointmentRow(map[string]string{csvschema.KeyTime: "25:99"}))
	if !errors.Is(outcome.Err, ErrInvalidDate) {
		t.Fatalf("expected invalid time to reject the row, got %v", outcome.Err)
	}
}

func TestMapperDefaultToTodayPolicy(t *testing.T) {
	cfg := utcConfig(domain.PipelineInquiries)
	cfg.OnInvalidDate = DatePolicyDefaultToToday
	mapper := NewMapper(cfg, domain.Catalog{}, fixedClock)

	outcome := mapper.MapRow(appointmentRow(map[string]string{csvschema.KeyDate: "31-12-2023"}))
	if !outcome.Valid() {
		t.Fatalf("expected lenient policy to accept the row, got %s", outcome.Reason())
	}
	if !outcome.Record.Date.Equal(fixedClock()) {
		t.Fatalf("expected today, got %s", outcome.Record.Date)
	}

	outcome = mapper.MapRow(appointmentRow(map[string]string{csvschema.KeyTime: "later"}))
	want := time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC)
	if !outcome.Valid() || !outcome.Record.Date.Equal(want) {
		t.Fatalf("expected noon fallback, got %+v", outcome)
	}
}

func TestMapperDateOnlyRowsLandAtNoon(t *testing.T) {
	mapper := NewMapper(utcConfig(domain.PipelineAppointments), domain.Catalog{}, fixedClock)

	outcome := mapper.MapRow(appointmentRow(map[string]string{csvschema.KeyTime: ""}))
	want := time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC)
	if !outcome.Valid() || !outcome.Record.Date.Equal(want) {
		t.Fatalf("expected %s, got %+v", want, outcome)
	}

	outcome = mapper.MapRow(appointmentRow(map[string]string{csvschema.KeyTime: "2:15 PM"}))
	want = time.Date(2023, 12, 31, 14, 15, 0, 0, time.UTC)
	if !outcome.Valid() || !outcome.Record.Date.Equal(want) {
		t.Fatalf("expected %s, got %+v", want, outcome)
	}
}

func TestMapperAppliesDefaults(t *testing.T) {
	mapper := NewMapper(utcConfig(domain.PipelineInquiries), domain.Catalog{}, fixedClock)

	outcome := mapper.MapRow(appointmentRow(map[string]string{
		csvschema.KeyTreatment: "",
		csvschema.KeyStatus:    "",
		csvschema.KeySource:    "",
	}))
	if !outcome.Valid() {
		t.Fatalf("expected valid row, got %s", outcome.Reason())
	}
	if outcome.Record.Service != "General Inquiry" || outcome.Record.Status != "Enquiry" || outcome.Record.Source != "WEBSITE" {
		t.Fatalf("unexpected defaults: %+v", outcome.Record)
	}
}

func TestMapperSelectorModeResolvesCatalog(t *testing.T) {
	catalog := domain.Catalog{
		Treatments: []domain.CatalogEntry{{ID: "t-1", Name: "General Checkup"}},
		Statuses:   []domain.CatalogEntry{{ID: "s-1", Name: "Scheduled"}},
	}
	mapper := NewMapper(utcConfig(domain.PipelineAppointments), catalog, fixedClock)

	outcome := mapper.MapRow(appointmentRow(map[string]string{
		csvschema.KeyTreatment: " general checkup ",
		csvschema.KeyStatus:    "Unknown",
	}))
	if !outcome.Valid() {
		t.Fatalf("expected valid row, got %s", outcome.Reason())
	}
	if outcome.Record.ServiceID != "t-1" || outcome.Record.Service != "General Checkup" {
		t.Fatalf("expected resolved treatment, got %+v", outcome.Record)
	}
	if outcome.Record.StatusID != "" || outcome.Record.Status != "Unknown" {
		t.Fatalf("expected unmatched status to keep its name, got %+v", outcome.Record)
	}
}

func TestMapperKeepsOneOutcomePerRow(t *testing.T) {
	mapper := NewMapper(utcConfig(domain.PipelineAppointments), domain.Catalog{}, fixedClock)
	rows := []RawRow{
		appointmentRow(nil),
		appointmentRow(map[string]string{csvschema.KeyPatientName: ""}),
		appointmentRow(map[string]string{csvschema.KeyDate: "bad"}),
	}

	outcomes := mapper.Map(rows)
	if len(outcomes) != len(rows) {
		t.Fatalf("expected %d outcomes, got %d", len(rows), len(outcomes))
	}
	if !outcomes[0].Valid() || outcomes[1].Valid() || outcomes[2].Valid() {
		t.Fatalf("unexpected classification: %+v", outcomes)
	}
}

func TestParseDatePolicy(t *testing.T) {
	if policy, err := ParseDatePolicy("defaultToToday"); err != nil || policy != DatePolicyDefaultToToday {
		t.Fatalf("unexpected policy %q (%v)", policy, err)
	}
	if policy, err := ParseDatePolicy(""); err != nil || policy != DatePolicyReject {
		t.Fatalf("unexpected policy %q (%v)", policy, err)
	}
	if _, err := ParseDatePolicy("sometimes"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
