package repository

import (
	"context"

	"github.com/rpattn/clinicleads/internal/domain"

	"github.com/google/uuid"
)

// ImportLogRepository stores import runs and their row errors for auditing.
type ImportLogRepository interface {
	RecordRun(ctx context.Context, run domain.ImportRun, entries []domain.ImportLogEntry) (domain.ImportRun, error)
	ListRuns(ctx context.Context, clinicID uuid.UUID, limit int, offset int) ([]domain.ImportRun, error)
	// ListEntries returns nothing for a run that belongs to another clinic.
	ListEntries(ctx context.Context, clinicID uuid.UUID, runID uuid.UUID, limit int, offset int) ([]domain.ImportLogEntry, error)
}
