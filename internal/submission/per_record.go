package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/clinicleads/internal/domain"
	"github.com/rpattn/clinicleads/internal/logger"
)

// PerRecord submits records one at a time, in order, awaiting each call.
type PerRecord struct {
	creator Creator
}

// Submit implements Strategy. Cancellation is checked between records; the
// remainder is counted as failed.
func (p *PerRecord) Submit(ctx context.Context, pipeline domain.Pipeline, records []domain.Record) domain.ImportResult {
	result := domain.ImportResult{ErrorMessages: []string{}}

	for idx, record := range records {
		if err := ctx.Err(); err != nil {
			remaining := len(records) - idx
			result.FailedCount += remaining
			result.ErrorMessages = append(result.ErrorMessages,
				fmt.Sprintf("import cancelled: %d %s not submitted", remaining, pipeline.Noun(remaining)))
			logger.Warn(ctx, "submission cancelled", "pipeline", pipeline, "remaining", remaining)
			break
		}

		if err := p.submitOne(ctx, pipeline, record); err != nil {
			result.FailedCount++
			result.ErrorMessages = append(result.ErrorMessages, describeFailure(record, err))
			logger.Debug(ctx, "record rejected", "pipeline", pipeline, "index", idx, "error", err)
			continue
		}
		result.SuccessCount++
	}

	return result
}

func (p *PerRecord) submitOne(ctx context.Context, pipeline domain.Pipeline, record domain.Record) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.creator.CreateRecord(ctx, pipeline, record)
}

func describeFailure(record domain.Record, err error) string {
	message := err.Error()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		message = "request cancelled"
	}
	if record.Patient.Name == "" {
		return message
	}
	return fmt.Sprintf("%s: %s", record.Patient.Name, message)
}
