package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportStage names where in the pipeline a row was rejected.
type ImportStage string

const (
	ImportStageParse      ImportStage = "PARSE"
	ImportStageValidation ImportStage = "VALIDATION"
	ImportStageSubmission ImportStage = "SUBMISSION"
)

// ImportRun is the audit record of one import request.
type ImportRun struct {
	ID           uuid.UUID `json:"id"`
	ClinicID     uuid.UUID `json:"clinic_id"`
	Pipeline     Pipeline  `json:"pipeline"`
	FileName     string    `json:"file_name"`
	TotalRows    int       `json:"total_rows"`
	InvalidRows  int       `json:"invalid_rows"`
	SuccessCount int       `json:"success_count"`
	FailedCount  int       `json:"failed_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// ImportLogEntry captures a row level issue recorded during an import run.
type ImportLogEntry struct {
	ID           uuid.UUID   `json:"id"`
	RunID        uuid.UUID   `json:"run_id"`
	Stage        ImportStage `json:"stage"`
	RowNumber    *int        `json:"row_number,omitempty"`
	ErrorMessage string      `json:"error_message"`
	CreatedAt    time.Time   `json:"created_at"`
}
