package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rpattn/clinicleads/internal/archive"
	"github.com/rpattn/clinicleads/internal/auth"
	"github.com/rpattn/clinicleads/internal/domain"
	"github.com/rpattn/clinicleads/internal/logger"
	"github.com/rpattn/clinicleads/internal/report"
	"github.com/rpattn/clinicleads/internal/repository"

	"github.com/google/uuid"
)

// ErrFileTooLarge is returned when an upload exceeds the configured limit.
var ErrFileTooLarge = errors.New("file exceeds the maximum upload size")

const defaultMaxUploadBytes = 5 << 20

// CatalogLoader fetches the clinic's treatment and status lists.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) (domain.Catalog, error)
}

// Submitter sends validated records and folds every failure into the result.
type Submitter interface {
	Run(ctx context.Context, pipeline domain.Pipeline, records []domain.Record) domain.ImportResult
}

// Archiver keeps a copy of the original upload.
type Archiver interface {
	Archive(ctx context.Context, key string, payload []byte, contentType string) error
}

// Service runs the CSV import pipeline.
type Service struct {
	catalogs       CatalogLoader
	submitter      Submitter
	logRepo        repository.ImportLogRepository
	archiver       Archiver
	pipelines      map[domain.Pipeline]PipelineConfig
	parseOptions   ParseOptions
	maxUploadBytes int64
	now            func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithPipelineConfig overrides the mapping rules of one pipeline.
func WithPipelineConfig(cfg PipelineConfig) Option {
	return func(s *Service) {
		s.pipelines[cfg.Pipeline] = cfg
	}
}

// WithMaxUploadBytes bounds the accepted payload size.
func WithMaxUploadBytes(limit int64) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxUploadBytes = limit
		}
	}
}

// WithParseOptions overrides the header and blank line handling.
func WithParseOptions(opts ParseOptions) Option {
	return func(s *Service) {
		s.parseOptions = opts
	}
}

// WithImportLog records every run in the audit log.
func WithImportLog(repo repository.ImportLogRepository) Option {
	return func(s *Service) {
		s.logRepo = repo
	}
}

// WithArchive stores every imported file before its rows are submitted.
func WithArchive(a Archiver) Option {
	return func(s *Service) {
		s.archiver = a
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new ingestion service.
func NewService(catalogs CatalogLoader, submitter Submitter, opts ...Option) *Service {
	s := &Service{
		catalogs:  catalogs,
		submitter: submitter,
		pipelines: map[domain.Pipeline]PipelineConfig{
			domain.PipelineAppointments: DefaultPipelineConfig(domain.PipelineAppointments),
			domain.PipelineInquiries:    DefaultPipelineConfig(domain.PipelineInquiries),
		},
		parseOptions:   DefaultParseOptions(),
		maxUploadBytes: defaultMaxUploadBytes,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request describes the ingestion input.
type Request struct {
	Pipeline domain.Pipeline
	FileName string
	Data     io.Reader
}

// Summary returns ingestion level metrics alongside the dashboard report.
type Summary struct {
	RunID       uuid.UUID           `json:"runId"`
	ArchiveKey  string              `json:"archiveKey,omitempty"`
	Pipeline    domain.Pipeline     `json:"pipeline"`
	TotalRows   int                 `json:"totalRows"`
	ValidRows   int                 `json:"validRows"`
	InvalidRows int                 `json:"invalidRows"`
	ParseErrors []ParseError        `json:"parseErrors"`
	Result      domain.ImportResult `json:"result"`
	Report      report.Report       `json:"report"`
}

// PreviewRow captures one row and its validation feedback.
type PreviewRow struct {
	RowNumber int               `json:"rowNumber"`
	Values    map[string]string `json:"values"`
	Record    *domain.Record    `json:"record,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// PreviewResult classifies rows without submitting anything.
type PreviewResult struct {
	Pipeline    domain.Pipeline `json:"pipeline"`
	Headers     []string        `json:"headers"`
	TotalRows   int             `json:"totalRows"`
	ValidRows   int             `json:"validRows"`
	InvalidRows int             `json:"invalidRows"`
	ParseErrors []ParseError    `json:"parseErrors"`
	Rows        []PreviewRow    `json:"rows"`
}

// Import parses, validates and submits an uploaded file. Row level problems
// end up in the summary; the error return is for failures that abort the run.
func (s *Service) Import(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{
		Pipeline:    req.Pipeline,
		ParseErrors: []ParseError{},
		Result:      domain.ImportResult{ErrorMessages: []string{}},
	}

	payload, parsed, outcomes, err := s.classify(ctx, req)
	if err != nil {
		return summary, err
	}

	summary.RunID = uuid.New()
	summary.ArchiveKey = s.archive(ctx, req, summary.RunID, payload)
	summary.ParseErrors = parsed.Errors
	summary.TotalRows = len(parsed.Rows)

	var details []report.Detail
	for _, parseErr := range parsed.Errors {
		details = append(details, report.Detail{
			Stage:   domain.ImportStageParse,
			Row:     parseErr.Line,
			Message: parseErr.Message,
		})
	}

	records := make([]domain.Record, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Valid() {
			records = append(records, *outcome.Record)
			continue
		}
		details = append(details, report.Detail{
			Stage:   domain.ImportStageValidation,
			Row:     outcome.Row.Line,
			Message: outcome.Reason(),
		})
	}
	summary.ValidRows = len(records)
	summary.InvalidRows = summary.TotalRows - summary.ValidRows

	if len(records) > 0 {
		summary.Result = s.submitter.Run(ctx, req.Pipeline, records)
	}

	rejected := summary.InvalidRows + len(parsed.Errors)
	summary.Report = report.Build(req.Pipeline, summary.Result, rejected, details)

	logger.Info(ctx, "import completed",
		"run_id", summary.RunID,
		"pipeline", req.Pipeline,
		"file", req.FileName,
		"rows", summary.TotalRows,
		"invalid", summary.InvalidRows,
		"parse_errors", len(parsed.Errors),
		"created", summary.Result.SuccessCount,
		"failed", summary.Result.FailedCount,
	)

	s.recordRun(ctx, req, summary)
	return summary, nil
}

// Preview runs parsing and validation without submitting anything.
func (s *Service) Preview(ctx context.Context, req Request, limit int) (PreviewResult, error) {
	result := PreviewResult{
		Pipeline:    req.Pipeline,
		Headers:     []string{},
		ParseErrors: []ParseError{},
		Rows:        []PreviewRow{},
	}

	_, parsed, outcomes, err := s.classify(ctx, req)
	if err != nil {
		return result, err
	}

	if limit <= 0 {
		limit = 10
	}

	result.Headers = parsed.Headers
	result.ParseErrors = parsed.Errors
	result.TotalRows = len(parsed.Rows)
	for idx, outcome := range outcomes {
		if outcome.Valid() {
			result.ValidRows++
		} else {
			result.InvalidRows++
		}
		if idx < limit {
			result.Rows = append(result.Rows, PreviewRow{
				RowNumber: outcome.Row.Line,
				Values:    outcome.Row.Values,
				Record:    outcome.Record,
				Error:     outcome.Reason(),
			})
		}
	}
	return result, nil
}

// classify reads, parses and maps the upload. Only whole-file problems are errors.
func (s *Service) classify(ctx context.Context, req Request) ([]byte, ParseResult, []Outcome, error) {
	cfg, ok := s.pipelines[req.Pipeline]
	if !ok {
		return nil, ParseResult{}, nil, fmt.Errorf("unknown pipeline %q", req.Pipeline)
	}
	if req.Data == nil {
		return nil, ParseResult{}, nil, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(io.LimitReader(req.Data, s.maxUploadBytes+1))
	if err != nil {
		return nil, ParseResult{}, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(payload)) > s.maxUploadBytes {
		return nil, ParseResult{}, nil, fmt.Errorf("%w (%d bytes)", ErrFileTooLarge, s.maxUploadBytes)
	}

	parsed, err := Parse(req.FileName, payload, s.parseOptions)
	if err != nil {
		return nil, ParseResult{}, nil, err
	}

	var catalog domain.Catalog
	if cfg.Resolution == ResolutionSelector && s.catalogs != nil && len(parsed.Rows) > 0 {
		catalog, err = s.catalogs.LoadCatalog(ctx)
		if err != nil {
			return nil, ParseResult{}, nil, fmt.Errorf("failed to load clinic catalog: %w", err)
		}
	}

	mapper := NewMapper(cfg, catalog, s.now)
	return payload, parsed, mapper.Map(parsed.Rows), nil
}

// archive returns the object key, or "" when archiving is off or failed.
func (s *Service) archive(ctx context.Context, req Request, runID uuid.UUID, payload []byte) string {
	if s.archiver == nil {
		return ""
	}
	clinicID, _ := auth.ClinicIDFromContext(ctx)
	key := archive.ObjectKey(clinicID, req.Pipeline, runID, req.FileName)
	if err := s.archiver.Archive(ctx, key, payload, archive.ContentType(req.FileName)); err != nil {
		logger.Warn(ctx, "failed to archive upload", "run_id", runID, "error", err)
		return ""
	}
	return key
}

func (s *Service) recordRun(ctx context.Context, req Request, summary Summary) {
	if s.logRepo == nil {
		return
	}

	run := domain.ImportRun{
		ID:           summary.RunID,
		Pipeline:     req.Pipeline,
		FileName:     strings.TrimSpace(req.FileName),
		TotalRows:    summary.TotalRows,
		InvalidRows:  summary.InvalidRows,
		SuccessCount: summary.Result.SuccessCount,
		FailedCount:  summary.Result.FailedCount,
		CreatedAt:    s.now().UTC(),
	}
	if clinicID, ok := auth.ClinicIDFromContext(ctx); ok {
		run.ClinicID = clinicID
	}

	entries := make([]domain.ImportLogEntry, 0, len(summary.Report.Details))
	for _, detail := range summary.Report.Details {
		entry := domain.ImportLogEntry{
			RunID:        summary.RunID,
			Stage:        detail.Stage,
			ErrorMessage: detail.Message,
		}
		if detail.Row > 0 {
			row := detail.Row
			entry.RowNumber = &row
		}
		entries = append(entries, entry)
	}

	if _, err := s.logRepo.RecordRun(ctx, run, entries); err != nil {
		logger.Warn(ctx, "failed to record import run", "run_id", summary.RunID, "error", err)
	}
}

// ListRuns returns audit log runs for the caller's clinic.
func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]domain.ImportRun, error) {
	if s.logRepo == nil {
		return nil, errors.New("import log is not configured")
	}
	clinicID, _ := auth.ClinicIDFromContext(ctx)
	return s.logRepo.ListRuns(ctx, clinicID, limit, offset)
}

// ListEntries returns the row errors recorded for a run of the caller's clinic.
func (s *Service) ListEntries(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.ImportLogEntry, error) {
	if s.logRepo == nil {
		return nil, errors.New("import log is not configured")
	}
	if runID == uuid.Nil {
		return nil, errors.New("run id is required")
	}
	clinicID, _ := auth.ClinicIDFromContext(ctx)
	return s.logRepo.ListEntries(ctx, clinicID, runID, limit, offset)
}
