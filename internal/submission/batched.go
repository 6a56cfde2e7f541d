package submission

import (
	"context"
	"fmt"

	"github.com/rpattn/clinicleads/internal/domain"
	"github.com/rpattn/clinicleads/internal/logger"
)

// Batched sends all records in one call. The API reports an aggregate
// created count, so individual failures are not visible.
type Batched struct {
	creator Creator
}

// Submit implements Strategy.
func (b *Batched) Submit(ctx context.Context, pipeline domain.Pipeline, records []domain.Record) domain.ImportResult {
	result := domain.ImportResult{ErrorMessages: []string{}}
	total := len(records)

	created, err := b.submitAll(ctx, pipeline, records)
	if err != nil {
		result.FailedCount = total
		result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("batch rejected: %v", err))
		logger.Warn(ctx, "batch submission failed", "pipeline", pipeline, "records", total, "error", err)
		return result
	}

	if created < 0 {
		created = 0
	}
	if created > total {
		created = total
	}
	result.SuccessCount = created
	result.FailedCount = total - created
	if result.FailedCount > 0 {
		result.ErrorMessages = append(result.ErrorMessages,
			fmt.Sprintf("%d of %d %s were not created by the server", result.FailedCount, total, pipeline.Noun(total)))
	}
	return result
}

func (b *Batched) submitAll(ctx context.Context, pipeline domain.Pipeline, records []domain.Record) (created int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return b.creator.CreateRecords(ctx, pipeline, records)
}
