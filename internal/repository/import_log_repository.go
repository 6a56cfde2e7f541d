package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/clinicleads/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type importLogRepository struct {
	pool *pgxpool.Pool
}

// NewImportLogRepository wires a repository backed by pgxpool.
func NewImportLogRepository(pool *pgxpool.Pool) ImportLogRepository {
	return &importLogRepository{pool: pool}
}

func (r *importLogRepository) RecordRun(ctx context.Context, run domain.ImportRun, entries []domain.ImportLogEntry) (domain.ImportRun, error) {
	if r.pool == nil {
		return domain.ImportRun{}, fmt.Errorf("import log repository not initialized")
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var clinicID any
	if run.ClinicID != uuid.Nil {
		clinicID = run.ClinicID
	}

	_, err = tx.Exec(
		ctx,
		`INSERT INTO import_runs (id, clinic_id, pipeline, file_name, total_rows, invalid_rows, success_count, failed_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID,
		clinicID,
		string(run.Pipeline),
		run.FileName,
		run.TotalRows,
		run.InvalidRows,
		run.SuccessCount,
		run.FailedCount,
		run.CreatedAt,
	)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to record import run: %w", err)
	}

	if len(entries) > 0 {
		batch := &pgx.Batch{}
		for _, entry := range entries {
			var rowNumber any
			if entry.RowNumber != nil {
				rowNumber = *entry.RowNumber
			}
			batch.Queue(
				`INSERT INTO import_log_entries (run_id, stage, row_number, error_message)
				 VALUES ($1, $2, $3, $4)`,
				run.ID,
				string(entry.Stage),
				rowNumber,
				entry.ErrorMessage,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return domain.ImportRun{}, fmt.Errorf("failed to record import log entries: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to commit import run: %w", err)
	}
	return run, nil
}

func (r *importLogRepository) ListRuns(ctx context.Context, clinicID uuid.UUID, limit int, offset int) ([]domain.ImportRun, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("import log repository not initialized")
	}
	limit, offset = normalizePage(limit, offset)

	var clinic any
	if clinicID != uuid.Nil {
		clinic = clinicID
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, clinic_id, pipeline, file_name, total_rows, invalid_rows, success_count, failed_count, created_at
		 FROM import_runs
		 WHERE clinic_id IS NOT DISTINCT FROM $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		clinic,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.ImportRun{}
	for rows.Next() {
		var (
			run       domain.ImportRun
			clinicCol pgtype.UUID
			pipeline  string
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&run.ID,
			&clinicCol,
			&pipeline,
			&run.FileName,
			&run.TotalRows,
			&run.InvalidRows,
			&run.SuccessCount,
			&run.FailedCount,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", scanErr)
		}
		if clinicCol.Valid {
			run.ClinicID = uuid.UUID(clinicCol.Bytes)
		}
		run.Pipeline = domain.Pipeline(pipeline)
		if createdAt.Valid {
			run.CreatedAt = createdAt.Time
		}
		runs = append(runs, run)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import runs: %w", rowsErr)
	}
	return runs, nil
}

func (r *importLogRepository) ListEntries(ctx context.Context, clinicID uuid.UUID, runID uuid.UUID, limit int, offset int) ([]domain.ImportLogEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("import log repository not initialized")
	}
	limit, offset = normalizePage(limit, offset)

	var clinic any
	if clinicID != uuid.Nil {
		clinic = clinicID
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT e.id, e.run_id, e.stage, e.row_number, e.error_message, e.created_at
		 FROM import_log_entries e
		 JOIN import_runs r ON r.id = e.run_id
		 WHERE e.run_id = $1 AND r.clinic_id IS NOT DISTINCT FROM $2
		 ORDER BY e.row_number NULLS LAST, e.created_at
		 LIMIT $3 OFFSET $4`,
		runID,
		clinic,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import log entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.ImportLogEntry{}
	for rows.Next() {
		var (
			entry     domain.ImportLogEntry
			stage     string
			rowNumber pgtype.Int4
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&stage,
			&rowNumber,
			&entry.ErrorMessage,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan import log entry: %w", scanErr)
		}
		entry.Stage = domain.ImportStage(stage)
		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			entry.RowNumber = &value
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}
		entries = append(entries, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import log entries: %w", rowsErr)
	}
	return entries, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
