// Package submission sends validated records to the clinic API and tallies
// the outcome.
package submission

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/clinicleads/internal/domain"
)

// Mode selects how records are sent to the API.
type Mode string

const (
	// ModePerRecord issues one call per record and tracks each outcome.
	ModePerRecord Mode = "per_record"
	// ModeBatched sends every record in a single call.
	ModeBatched Mode = "batched"
)

// ParseMode accepts the config spellings of a Mode.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "per_record", "per-record", "perrecord":
		return ModePerRecord, nil
	case "batched", "batch":
		return ModeBatched, nil
	default:
		return "", fmt.Errorf("unknown submission mode %q", raw)
	}
}

// Creator is the subset of the clinic API used for submission.
type Creator interface {
	CreateRecord(ctx context.Context, pipeline domain.Pipeline, record domain.Record) error
	CreateRecords(ctx context.Context, pipeline domain.Pipeline, records []domain.Record) (int, error)
}

// Strategy submits records and always reports every record as either
// succeeded or failed. Implementations must not return early with records
// unaccounted for.
type Strategy interface {
	Submit(ctx context.Context, pipeline domain.Pipeline, records []domain.Record) domain.ImportResult
}

// NewStrategy returns the strategy for a mode.
func NewStrategy(mode Mode, creator Creator) (Strategy, error) {
	switch mode {
	case ModePerRecord, "":
		return &PerRecord{creator: creator}, nil
	case ModeBatched:
		return &Batched{creator: creator}, nil
	default:
		return nil, fmt.Errorf("unknown submission mode %q", mode)
	}
}

// Invalidator refreshes cached record lists after new records land.
type Invalidator interface {
	Invalidate(ctx context.Context, pipeline domain.Pipeline)
}

// Driver runs a strategy and invalidates the record list when anything was created.
type Driver struct {
	strategy    Strategy
	invalidator Invalidator
}

// NewDriver wires a strategy to an optional invalidator.
func NewDriver(strategy Strategy, invalidator Invalidator) *Driver {
	return &Driver{strategy: strategy, invalidator: invalidator}
}

// Run submits the records. Errors are folded into the result, never returned.
func (d *Driver) Run(ctx context.Context, pipeline domain.Pipeline, records []domain.Record) domain.ImportResult {
	if len(records) == 0 {
		return domain.ImportResult{ErrorMessages: []string{}}
	}
	result := d.strategy.Submit(ctx, pipeline, records)
	if result.ErrorMessages == nil {
		result.ErrorMessages = []string{}
	}
	if result.SuccessCount > 0 && d.invalidator != nil {
		d.invalidator.Invalidate(ctx, pipeline)
	}
	return result
}
