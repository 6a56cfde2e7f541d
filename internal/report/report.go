// Package report turns import counts into the notifications and detail list
// shown on the dashboard.
package report

import (
	"fmt"

	"github.com/rpattn/clinicleads/internal/domain"
)

// Level is the notification severity.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a short toast message.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Detail is one line of the persistent error list.
type Detail struct {
	Stage   domain.ImportStage `json:"stage"`
	Row     int                `json:"row,omitempty"`
	Message string             `json:"message"`
}

func (d Detail) String() string {
	if d.Row > 0 {
		return fmt.Sprintf("Row %d: %s", d.Row, d.Message)
	}
	return d.Message
}

// Report is what the dashboard renders after an import run.
type Report struct {
	Notifications []Notification `json:"notifications"`
	Details       []Detail       `json:"details"`
}

// Build assembles the report. rejected counts rows dropped before submission
// (parse and validation failures); details lists every reason in order. The
// success and failure notifications are not exclusive.
func Build(pipeline domain.Pipeline, result domain.ImportResult, rejected int, details []Detail) Report {
	report := Report{
		Notifications: []Notification{},
		Details:       []Detail{},
	}
	report.Details = append(report.Details, details...)
	for _, message := range result.ErrorMessages {
		report.Details = append(report.Details, Detail{Stage: domain.ImportStageSubmission, Message: message})
	}

	failed := result.FailedCount + rejected
	if result.SuccessCount == 0 && failed == 0 {
		report.Notifications = append(report.Notifications, Notification{
			Level:   LevelWarning,
			Message: fmt.Sprintf("No valid %s found in the file", pipeline.Noun(0)),
		})
		return report
	}

	if result.SuccessCount > 0 {
		report.Notifications = append(report.Notifications, Notification{
			Level:   LevelSuccess,
			Message: fmt.Sprintf("Successfully created %d %s", result.SuccessCount, pipeline.Noun(result.SuccessCount)),
		})
	}
	if failed > 0 {
		report.Notifications = append(report.Notifications, Notification{
			Level:   LevelError,
			Message: fmt.Sprintf("%d %s could not be imported. Check the CSV format.", failed, pipeline.Noun(failed)),
		})
	}
	return report
}
