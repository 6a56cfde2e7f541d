package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/clinicleads/internal/auth"
	"github.com/rpattn/clinicleads/internal/domain"
	"github.com/rpattn/clinicleads/internal/report"

	"github.com/google/uuid"
)

const importCSV = `patientName,patientEmail,patientPhone,date,time,treatment,status,source,notes
John Doe,john@example.com,1234567890,2023-12-31,10:00,General Checkup,Scheduled,WEBSITE,First visit
No Phone,nophone@example.com,,2023-12-31,10:00,General Checkup,Scheduled,WEBSITE,
Bad Date,bad@example.com,555,31-12-2023,10:00,General Checkup,Scheduled,WEBSITE,
`

func TestServiceImportSubmitsOnlyValidRows(t *testing.T) {
	submitter := &stubSubmitter{}
	catalogs := &stubCatalog{catalog: domain.Catalog{
		Treatments: []domain.CatalogEntry{{ID: "t-1", Name: "General Checkup"}},
	}}
	logRepo := &stubLogRepo{}
	clinicID := uuid.New()
	ctx := auth.ContextWithClinicID(context.Background(), clinicID)

	service := NewService(catalogs, submitter, WithImportLog(logRepo), WithClock(fixedClock))

	summary, err := service.Import(ctx, Request{
		Pipeline: domain.PipelineAppointments,
		FileName: "appointments.csv",
		Data:     strings.NewReader(importCSV),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}

	if summary.TotalRows != 3 || summary.ValidRows != 1 || summary.InvalidRows != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(submitter.records) != 1 || submitter.records[0].Patient.Name != "John Doe" {
		t.Fatalf("expected only John Doe to be submitted, got %+v", submitter.records)
	}
	if submitter.records[0].ServiceID != "t-1" {
		t.Fatalf("expected catalog id on submitted record, got %+v", submitter.records[0])
	}
	if summary.Result.SuccessCount != 1 || summary.Result.FailedCount != 0 {
		t.Fatalf("unexpected result: %+v", summary.Result)
	}

	levels := map[report.Level]string{}
	for _, n := range summary.Report.Notifications {
		levels[n.Level] = n.Message
	}
	if levels[report.LevelSuccess] != "Successfully created 1 appointment" {
		t.Fatalf("unexpected success notification %q", levels[report.LevelSuccess])
	}
	if levels[report.LevelError] != "2 appointments could not be imported. Check the CSV format." {
		t.Fatalf("unexpected error notification %q", levels[report.LevelError])
	}
	if len(summary.Report.Details) != 2 || summary.Report.Details[0].Row != 3 {
		t.Fatalf("unexpected details: %+v", summary.Report.Details)
	}
	if !strings.Contains(summary.Report.Details[0].Message, ErrMissingRequiredField.Error()) {
		t.Fatalf("expected missing field detail, got %q", summary.Report.Details[0].Message)
	}

	if len(logRepo.runs) != 1 {
		t.Fatalf("expected import run to be recorded")
	}
	if logRepo.runs[0].ClinicID != clinicID || logRepo.runs[0].InvalidRows != 2 {
		t.Fatalf("unexpected run: %+v", logRepo.runs[0])
	}
	if len(logRepo.entries) != 2 || logRepo.entries[0].Stage != domain.ImportStageValidation {
		t.Fatalf("unexpected log entries: %+v", logRepo.entries)
	}
}

func TestServiceImportWithNoValidRowsSkipsSubmission(t *testing.T) {
	submitter := &stubSubmitter{}
	service := NewService(&stubCatalog{}, submitter, WithClock(fixedClock))

	data := "patientName,patientPhone,date\n,,\nNo Phone,,2024-01-01\n"
	summary, err := service.Import(context.Background(), Request{
		Pipeline: domain.PipelineInquiries,
		FileName: "inquiries.csv",
		Data:     strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if submitter.calls != 0 {
		t.Fatalf("expected no submission, got %d calls", submitter.calls)
	}
	if summary.TotalRows != 1 || summary.InvalidRows != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Report.Notifications) != 1 || summary.Report.Notifications[0].Level != report.LevelError {
		t.Fatalf("unexpected notifications: %+v", summary.Report.Notifications)
	}
}

func TestServiceImportHeaderOnlyFileWarns(t *testing.T) {
	service := NewService(&stubCatalog{}, &stubSubmitter{})

	summary, err := service.Import(context.Background(), Request{
		Pipeline: domain.PipelineAppointments,
		FileName: "appointments.csv",
		Data:     strings.NewReader("patientName,patientPhone\n"),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if len(summary.Report.Notifications) != 1 {
		t.Fatalf("expected one notification, got %+v", summary.Report.Notifications)
	}
	got := summary.Report.Notifications[0]
	if got.Level != report.LevelWarning || got.Message != "No valid appointments found in the file" {
		t.Fatalf("unexpected notification: %+v", got)
	}
}

func TestServiceImportRejectsOversizedUpload(t *testing.T) {
	submitter := &stubSubmitter{}
	service := NewService(&stubCatalog{}, submitter, WithMaxUploadBytes(16))

	_, err := service.Import(context.Background(), Request{
		Pipeline: domain.PipelineAppointments,
		FileName: "appointments.csv",
		Data:     strings.NewReader(importCSV),
	})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if submitter.calls != 0 {
		t.Fatalf("expected no submission")
	}
}

func TestServiceImportSurfacesCatalogFailure(t *testing.T) {
	catalogs := &stubCatalog{err: errors.New("catalog down")}
	service := NewService(catalogs, &stubSubmitter{})

	_, err := service.Import(context.Background(), Request{
		Pipeline: domain.PipelineAppointments,
		FileName: "appointments.csv",
		Data:     strings.NewReader(importCSV),
	})
	if err == nil || !strings.Contains(err.Error(), "catalog down") {
		t.Fatalf("expected catalog error, got %v", err)
	}
}

func TestServiceImportToleratesAuditFailure(t *testing.T) {
	logRepo := &stubLogRepo{err: errors.New("db offline")}
	service := NewService(&stubCatalog{}, &stubSubmitter{}, WithImportLog(logRepo))

	summary, err := service.Import(context.Background(), Request{
		Pipeline: domain.PipelineAppointments,
		FileName: "appointments.csv",
		Data:     strings.NewReader(importCSV),
	})
	if err != nil {
		t.Fatalf("audit failure must not fail the import: %v", err)
	}
	if summary.Result.SuccessCount != 1 {
		t.Fatalf("unexpected result: %+v", summary.Result)
	}
}

func TestServiceImportArchivesUpload(t *testing.T) {
	archiver := &stubArchiver{}
	service := NewService(&stubCatalog{}, &stubSubmitter{}, WithArchive(archiver), WithClock(fixedClock))

	summary, err := service.Import(context.Background(), Request{
		Pipeline: domain.PipelineAppointments,
		FileName: "appointments.csv",
		Data:     strings.NewReader(importCSV),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	want := "imports/global/appointments/" + summary.RunID.String() + "/appointments.csv"
	if summary.ArchiveKey != want || archiver.key != want {
		t.Fatalf("expected archive key %q, got %q / %q", want, summary.ArchiveKey, archiver.key)
	}
	if string(archiver.payload) != importCSV || archiver.contentType != "text/csv" {
		t.Fatalf("unexpected archived upload %q (%s)", archiver.payload, archiver.contentType)
	}

	archiver.err = errors.New("bucket unavailable")
	summary, err = service.Import(context.Background(), Request{
		Pipeline: domain.PipelineAppointments,
		FileName: "appointments.csv",
		Data:     strings.NewReader(importCSV),
	})
	if err != nil {
		t.Fatalf("archive failure must not abort the import: %v", err)
	}
	if summary.ArchiveKey != "" || summary.Result.SuccessCount != 1 {
		t.Fatalf("unexpected summary after archive failure: %+v", summary)
	}
}

func TestServicePreviewDoesNotSubmit(t *testing.T) {
	submitter := &stubSubmitter{}
	service := NewService(&stubCatalog{}, submitter, WithClock(fixedClock))

	preview, err := service.Preview(context.Background(), Request{
		Pipeline: domain.PipelineAppointments,
		FileName: "appointments.csv",
		Data:     strings.NewReader(importCSV),
	}, 2)
	if err != nil {
		t.Fatalf("preview returned error: %v", err)
	}
	if submitter.calls != 0 {
		t.Fatalf("preview must not submit")
	}
	if preview.TotalRows != 3 || preview.ValidRows != 1 || preview.InvalidRows != 2 {
		t.Fatalf("unexpected preview counts: %+v", preview)
	}
	if len(preview.Rows) != 2 {
		t.Fatalf("expected preview limited to 2 rows, got %d", len(preview.Rows))
	}
	if preview.Rows[1].Error == "" {
		t.Fatalf("expected validation error on second row")
	}
}

func TestServiceListEntriesRequiresRunID(t *testing.T) {
	service := NewService(&stubCatalog{}, &stubSubmitter{}, WithImportLog(&stubLogRepo{}))
	if _, err := service.ListEntries(context.Background(), uuid.Nil, 10, 0); err == nil {
		t.Fatalf("expected error for nil run id")
	}
}

func TestServiceListEntriesIsScopedToClinic(t *testing.T) {
	logRepo := &stubLogRepo{}
	service := NewService(&stubCatalog{}, &stubSubmitter{}, WithImportLog(logRepo), WithClock(fixedClock))
	owner := auth.ContextWithClinicID(context.Background(), uuid.New())

	summary, err := service.Import(owner, Request{
		Pipeline: domain.PipelineAppointments,
		FileName: "appointments.csv",
		Data:     strings.NewReader(importCSV),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}

	entries, err := service.ListEntries(owner, summary.RunID, 10, 0)
	if err != nil || len(entries) != 2 {
		t.Fatalf("expected owner to see 2 entries, got %+v (%v)", entries, err)
	}

	other := auth.ContextWithClinicID(context.Background(), uuid.New())
	for name, ctx := range map[string]context.Context{"other clinic": other, "no clinic": context.Background()} {
		entries, err := service.ListEntries(ctx, summary.RunID, 10, 0)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if len(entries) != 0 {
			t.Fatalf("%s: expected no entries, got %+v", name, entries)
		}
	}
}

type stubSubmitter struct {
	calls   int
	records []domain.Record
}

func (s *stubSubmitter) Run(_ context.Context, _ domain.Pipeline, records []domain.Record) domain.ImportResult {
	s.calls++
	s.records = append(s.records, records...)
	return domain.ImportResult{SuccessCount: len(records), ErrorMessages: []string{}}
}

type stubCatalog struct {
	catalog domain.Catalog
	err     error
}

func (s *stubCatalog) LoadCatalog(context.Context) (domain.Catalog, error) {
	return s.catalog, s.err
}

type stubLogRepo struct {
	runs    []domain.ImportRun
	entries []domain.ImportLogEntry
	err     error
}

func (s *stubLogRepo) RecordRun(_ context.Context, run domain.ImportRun, entries []domain.ImportLogEntry) (domain.ImportRun, error) {
	if s.err != nil {
		return domain.ImportRun{}, s.err
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.CreatedAt = time.Now()
	s.runs = append(s.runs, run)
	s.entries = append(s.entries, entries...)
	return run, nil
}

func (s *stubLogRepo) ListRuns(_ context.Context, clinicID uuid.UUID, _, _ int) ([]domain.ImportRun, error) {
	var runs []domain.ImportRun
	for _, run := range s.runs {
		if run.ClinicID == clinicID {
			runs = append(runs, run)
		}
	}
	return runs, nil
}

func (s *stubLogRepo) ListEntries(_ context.Context, clinicID, runID uuid.UUID, _, _ int) ([]domain.ImportLogEntry, error) {
	owned := false
	for _, run := range s.runs {
		if run.ID == runID && run.ClinicID == clinicID {
			owned = true
		}
	}
	var entries []domain.ImportLogEntry
	for _, entry := range s.entries {
		if owned && entry.RunID == runID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

type stubArchiver struct {
	key         string
	payload     []byte
	contentType string
	err         error
}

func (s *stubArchiver) Archive(_ context.Context, key string, payload []byte, contentType string) error {
	if s.err != nil {
		return s.err
	}
	s.key = key
	s.payload = payload
	s.contentType = contentType
	return nil
}
