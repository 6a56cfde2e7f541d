package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rpattn/clinicleads/internal/db"
	"github.com/rpattn/clinicleads/internal/domain"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPort = 15434

func setupTestDB(t *testing.T) *db.Connection {
	t.Helper()
	if testing.Short() {
		t.Skip("embedded postgres skipped in short mode")
	}

	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		Username("test").
		Password("test").
		Database("test").
		Port(testPort).
		RuntimePath(t.TempDir()).
		StartTimeout(60 * time.Second))

	// Binaries are downloaded on first start; without network there is nothing to test against.
	if err := pg.Start(); err != nil {
		t.Skipf("start embedded postgres: %v", err)
	}
	t.Cleanup(func() { _ = pg.Stop() })

	cfg := db.Config{
		Enabled:  true,
		Host:     "localhost",
		Port:     testPort,
		User:     "test",
		Password: "test",
		DBName:   "test",
		SSLMode:  "disable",
	}
	require.NoError(t, db.RunMigrations(cfg))
	// Applying twice is a no-op.
	require.NoError(t, db.RunMigrations(cfg))

	conn, err := db.NewConnection(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestImportLogRepositoryAgainstPostgres(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewImportLogRepository(conn.Pool)
	ctx := context.Background()

	clinicID := uuid.New()
	row := 4
	older := domain.ImportRun{
		ClinicID:     clinicID,
		Pipeline:     domain.PipelineAppointments,
		FileName:     "week1.csv",
		TotalRows:    10,
		InvalidRows:  1,
		SuccessCount: 6,
		FailedCount:  3,
		CreatedAt:    time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
	}
	older, err := repo.RecordRun(ctx, older, []domain.ImportLogEntry{
		{Stage: domain.ImportStageSubmission, ErrorMessage: "Patient 2: phone number already exists"},
		{Stage: domain.ImportStageValidation, RowNumber: &row, ErrorMessage: "missing required field: patientPhone"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, older.ID)

	newer, err := repo.RecordRun(ctx, domain.ImportRun{
		ClinicID:  clinicID,
		Pipeline:  domain.PipelineInquiries,
		FileName:  "week2.csv",
		CreatedAt: time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC),
	}, nil)
	require.NoError(t, err)

	_, err = repo.RecordRun(ctx, domain.ImportRun{Pipeline: domain.PipelineInquiries, FileName: "global.csv"}, nil)
	require.NoError(t, err)

	runs, err := repo.ListRuns(ctx, clinicID, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)
	assert.Equal(t, 6, runs[1].SuccessCount)
	assert.Equal(t, clinicID, runs[1].ClinicID)

	global, err := repo.ListRuns(ctx, uuid.Nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, "global.csv", global[0].FileName)

	entries, err := repo.ListEntries(ctx, clinicID, older.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].RowNumber)
	assert.Equal(t, 4, *entries[0].RowNumber)
	assert.Equal(t, domain.ImportStageValidation, entries[0].Stage)
	assert.Nil(t, entries[1].RowNumber)
	assert.Equal(t, domain.ImportStageSubmission, entries[1].Stage)

	// Another clinic, or a caller without one, cannot read the run by id.
	foreign, err := repo.ListEntries(ctx, uuid.New(), older.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, foreign)

	unscoped, err := repo.ListEntries(ctx, uuid.Nil, older.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, unscoped)
}
