package domain

import (
	"fmt"
	"strings"
	"time"
)

// Pipeline identifies which kind of patient interaction a batch of rows describes.
type Pipeline string

const (
	PipelineAppointments Pipeline = "appointments"
	PipelineInquiries    Pipeline = "inquiries"
)

// ParsePipeline resolves a path segment or config value to a known pipeline.
func ParsePipeline(raw string) (Pipeline, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "appointments", "appointment":
		return PipelineAppointments, nil
	case "inquiries", "inquiry", "enquiries", "enquiry":
		return PipelineInquiries, nil
	default:
		return "", fmt.Errorf("unknown pipeline %q", raw)
	}
}

// Noun returns the human readable record name, pluralised when count != 1.
func (p Pipeline) Noun(count int) string {
	switch p {
	case PipelineAppointments:
		if count == 1 {
			return "appointment"
		}
		return "appointments"
	case PipelineInquiries:
		if count == 1 {
			return "inquiry"
		}
		return "inquiries"
	default:
		if count == 1 {
			return "record"
		}
		return "records"
	}
}

// Patient carries the contact details attached to every record.
type Patient struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

// Record is the normalized, validated representation of one imported row,
// ready to be sent to the clinic API.
type Record struct {
	Patient   Patient   `json:"patient"`
	Service   string    `json:"service"`
	ServiceID string    `json:"serviceId,omitempty"`
	Status    string    `json:"status"`
	StatusID  string    `json:"statusId,omitempty"`
	Source    string    `json:"source"`
	Date      time.Time `json:"date"`
	Notes     string    `json:"notes"`
}

// ListedRecord is a persisted record as returned by the clinic API list endpoint.
type ListedRecord struct {
	ID        string     `json:"id"`
	Patient   Patient    `json:"patient"`
	Service   string     `json:"service"`
	Status    string     `json:"status"`
	Source    string     `json:"source"`
	Date      *time.Time `json:"date,omitempty"`
	Notes     string     `json:"notes"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// RecordPage is one page of the record list.
type RecordPage struct {
	Records  []ListedRecord `json:"data"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// ImportResult aggregates the outcome of submitting records.
// SuccessCount + FailedCount always equals the number of records attempted.
type ImportResult struct {
	SuccessCount  int      `json:"successCount"`
	FailedCount   int      `json:"failedCount"`
	ErrorMessages []string `json:"errorMessages"`
}

// Attempted returns the number of records the result accounts for.
func (r ImportResult) Attempted() int {
	return r.SuccessCount + r.FailedCount
}
