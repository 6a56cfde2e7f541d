// Package apiclient talks to the clinic REST API that owns persistence.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rpattn/clinicleads/internal/auth"
	"github.com/rpattn/clinicleads/internal/domain"
)

const maxErrorBody = 64 << 10

// Config holds the remote API settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is a thin JSON client for the clinic API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// APIError is a non-2xx response from the clinic API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient creates a client. A zero timeout falls back to 30 seconds.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:   strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type createManyRequest struct {
	Records []domain.Record `json:"records"`
}

type createManyResponse struct {
	CreatedCount *int     `json:"createdCount"`
	Count        *int     `json:"count"`
	IDs          []string `json:"ids"`
}

type catalogResponse struct {
	Data []domain.CatalogEntry `json:"data"`
}

// CreateRecord creates a single appointment or inquiry.
func (c *Client) CreateRecord(ctx context.Context, pipeline domain.Pipeline, record domain.Record) error {
	return c.do(ctx, http.MethodPost, "/"+string(pipeline), record, nil)
}

// CreateRecords creates many records in one call and returns how many the
// server reports as created.
func (c *Client) CreateRecords(ctx context.Context, pipeline domain.Pipeline, records []domain.Record) (int, error) {
	var resp createManyResponse
	if err := c.do(ctx, http.MethodPost, "/"+string(pipeline)+"/bulk", createManyRequest{Records: records}, &resp); err != nil {
		return 0, err
	}
	switch {
	case resp.CreatedCount != nil:
		return *resp.CreatedCount, nil
	case resp.Count != nil:
		return *resp.Count, nil
	case resp.IDs != nil:
		return len(resp.IDs), nil
	default:
		// An empty 2xx body means the server accepted the whole batch.
		return len(records), nil
	}
}

// ListRecords fetches one page of records matching the filter.
func (c *Client) ListRecords(ctx context.Context, pipeline domain.Pipeline, filter domain.RecordFilter) (domain.RecordPage, error) {
	path := "/" + string(pipeline)
	if query := filter.Values().Encode(); query != "" {
		path += "?" + query
	}
	var page domain.RecordPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return domain.RecordPage{}, err
	}
	if page.Records == nil {
		page.Records = []domain.ListedRecord{}
	}
	return page, nil
}

// ListTreatments returns the clinic's configured treatments.
func (c *Client) ListTreatments(ctx context.Context) ([]domain.CatalogEntry, error) {
	var resp catalogResponse
	if err := c.do(ctx, http.MethodGet, "/treatments", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListStatuses returns the clinic's configured statuses.
func (c *Client) ListStatuses(ctx context.Context) ([]domain.CatalogEntry, error) {
	var resp catalogResponse
	if err := c.do(ctx, http.MethodGet, "/statuses", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// LoadCatalog fetches treatments and statuses together.
func (c *Client) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	treatments, err := c.ListTreatments(ctx)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("load treatments: %w", err)
	}
	statuses, err := c.ListStatuses(ctx)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("load statuses: %w", err)
	}
	return domain.Catalog{Treatments: treatments, Statuses: statuses}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c.baseURL == "" {
		return errors.New("clinic API base URL is not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokenFor(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if clinicID, ok := auth.ClinicIDFromContext(ctx); ok {
		req.Header.Set("X-Clinic-ID", clinicID.String())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Message: extractMessage(resp.StatusCode, raw)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) tokenFor(ctx context.Context) string {
	if token, ok := auth.APITokenFromContext(ctx); ok {
		return token
	}
	return c.token
}

type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

// extractMessage pulls a readable message out of the API's structured error
// body, falling back to a generic line when the body is not understood.
func extractMessage(status int, raw []byte) string {
	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(payload.Error); msg != "" {
			return msg
		}
		var parts []string
		for _, item := range payload.Errors {
			msg := strings.TrimSpace(item.Message)
			if msg == "" {
				continue
			}
			if item.Field != "" {
				msg = item.Field + ": " + msg
			}
			parts = append(parts, msg)
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}
