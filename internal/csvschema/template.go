package csvschema

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/rpattn/clinicleads/internal/domain"
)

var templateRows = map[domain.Pipeline][][]string{
	domain.PipelineAppointments: {
		{"John Doe", "john@example.com", "1234567890", "2023-12-31", "10:00", "General Checkup", "Scheduled", "WEBSITE", "First visit"},
		{"Jane Smith", "jane@example.com", "0987654321", "2024-01-15", "14:30", "Teeth Cleaning", "Scheduled", "REFERRAL", ""},
	},
	domain.PipelineInquiries: {
		{"John Doe", "john@example.com", "1234567890", "2023-12-31", "", "General Inquiry", "Enquiry", "WEBSITE", "Asked about pricing"},
		{"Jane Smith", "jane@example.com", "0987654321", "2024-01-15", "", "Teeth Whitening", "Enquiry", "INSTAGRAM", "Prefers evening calls"},
	},
}

// Template returns the example CSV offered for download for a pipeline.
func Template(pipeline domain.Pipeline) (string, error) {
	rows, ok := templateRows[pipeline]
	if !ok {
		return "", fmt.Errorf("no template for pipeline %q", pipeline)
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(Canonical.Keys()); err != nil {
		return "", fmt.Errorf("failed to write template header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("failed to write template rows: %w", err)
	}
	return b.String(), nil
}

// TemplateFileName is the download name for a pipeline template.
func TemplateFileName(pipeline domain.Pipeline) string {
	return fmt.Sprintf("%s-template.csv", pipeline)
}
