package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/clinicleads/internal/domain"
	"github.com/rpattn/clinicleads/internal/logger"

	"github.com/google/uuid"
)

// Handler exposes imports and the import log under /imports/.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with the import endpoints.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/imports"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	if parts[0] == "logs" {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		switch len(parts) {
		case 1:
			h.handleListRuns(w, r)
		case 2:
			h.handleListEntries(w, r, parts[1])
		default:
			http.NotFound(w, r)
		}
		return
	}

	pipeline, err := domain.ParsePipeline(parts[0])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch {
	case len(parts) == 1:
		h.handleImport(w, r, pipeline)
	case len(parts) == 2 && parts[1] == "preview":
		h.handlePreview(w, r, pipeline)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request, pipeline domain.Pipeline) {
	req, cleanup, ok := h.readUpload(w, r, pipeline)
	if !ok {
		return
	}
	defer cleanup()

	summary, err := h.service.Import(r.Context(), req)
	if err != nil {
		h.writeImportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request, pipeline domain.Pipeline) {
	req, cleanup, ok := h.readUpload(w, r, pipeline)
	if !ok {
		return
	}
	defer cleanup()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	preview, err := h.service.Preview(r.Context(), req, limit)
	if err != nil {
		h.writeImportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, pipeline domain.Pipeline) (Request, func(), bool) {
	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.service.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(h.service.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, ErrFileTooLarge.Error(), http.StatusRequestEntityTooLarge)
			return Request{}, nil, false
		}
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return Request{}, nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return Request{}, nil, false
	}

	req := Request{
		Pipeline: pipeline,
		FileName: header.Filename,
		Data:     file,
	}
	return req, func() { _ = file.Close() }, true
}

func (h *Handler) writeImportError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrEmptyFile),
		errors.Is(err, ErrMissingHeader):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error(r.Context(), "import failed", "path", r.URL.Path, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	runs, err := h.service.ListRuns(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if runs == nil {
		runs = []domain.ImportRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request, rawID string) {
	runID, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid run id: %v", err), http.StatusBadRequest)
		return
	}
	limit, offset := pageParams(r)
	entries, err := h.service.ListEntries(r.Context(), runID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if entries == nil {
		entries = []domain.ImportLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func pageParams(r *http.Request) (int, int) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
