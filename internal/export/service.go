package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/clinicleads/internal/domain"
	"github.com/rpattn/clinicleads/internal/logger"
)

// Pager returns one page of records, usually through the record cache.
type Pager interface {
	Page(ctx context.Context, pipeline domain.Pipeline, filter domain.RecordFilter) (domain.RecordPage, error)
}

// Service collects every record matching a filter and serializes it.
type Service struct {
	pager    Pager
	pageSize int
	maxPages int
	location *time.Location
	now      func() time.Time
}

type Option func(*Service)

func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithMaxPages bounds how many pages a single export may fetch.
func WithMaxPages(pages int) Option {
	return func(s *Service) {
		if pages > 0 {
			s.maxPages = pages
		}
	}
}

// WithLocation sets the timezone dates and times are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(pager Pager, opts ...Option) *Service {
	service := &Service{
		pager:    pager,
		pageSize: 100,
		maxPages: 500,
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Request selects what to export.
type Request struct {
	Pipeline domain.Pipeline
	Filter   domain.RecordFilter
	Format   Format
}

// File is a rendered export ready for download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
	Records     int
}

// Records pages through the list endpoint until every matching record is collected.
func (s *Service) Records(ctx context.Context, pipeline domain.Pipeline, filter domain.RecordFilter) ([]domain.ListedRecord, error) {
	if s.pager == nil {
		return nil, errors.New("record source is not configured")
	}

	records := []domain.ListedRecord{}
	for page := 1; page <= s.maxPages; page++ {
		result, err := s.pager.Page(ctx, pipeline, filter.WithPage(page, s.pageSize))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
		records = append(records, result.Records...)

		if len(result.Records) < s.pageSize {
			return records, nil
		}
		if result.Total > 0 && len(records) >= result.Total {
			return records, nil
		}
	}

	logger.Warn(ctx, "export truncated", "pipeline", pipeline, "pages", s.maxPages, "records", len(records))
	return records, nil
}

// Export fetches and serializes the records for a request.
func (s *Service) Export(ctx context.Context, req Request) (File, error) {
	format := req.Format
	if format == "" {
		format = FormatCSV
	}

	records, err := s.Records(ctx, req.Pipeline, req.Filter)
	if err != nil {
		return File{}, err
	}

	var buf bytes.Buffer
	switch format {
	case FormatCSV:
		err = Serialize(&buf, records, s.location)
	case FormatXLSX:
		err = SerializeXLSX(&buf, records, s.location)
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return File{}, err
	}

	logger.Info(ctx, "export generated",
		"pipeline", req.Pipeline,
		"format", format,
		"records", len(records),
		"bytes", buf.Len(),
	)

	return File{
		Name:        FileName(req.Pipeline, format, s.now().In(s.location)),
		ContentType: format.ContentType(),
		Data:        buf.Bytes(),
		Records:     len(records),
	}, nil
}
