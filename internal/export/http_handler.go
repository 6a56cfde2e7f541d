package export

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/clinicleads/internal/csvschema"
	"github.com/rpattn/clinicleads/internal/domain"
	"github.com/rpattn/clinicleads/internal/logger"
)

// Handler serves /exports/{pipeline} downloads.
type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pipeline, err := domain.ParsePipeline(lastSegment(r.URL.Path))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	query := r.URL.Query()
	format, err := ParseFormat(query.Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	filter := domain.RecordFilterFromValues(query)
	// from/to are accepted as shorthands for the date range.
	if filter.StartDate == "" {
		filter.StartDate = strings.TrimSpace(query.Get("from"))
	}
	if filter.EndDate == "" {
		filter.EndDate = strings.TrimSpace(query.Get("to"))
	}

	file, err := h.service.Export(r.Context(), Request{
		Pipeline: pipeline,
		Filter:   filter,
		Format:   format,
	})
	if err != nil {
		logger.Error(r.Context(), "export failed", "pipeline", pipeline, "error", err)
		http.Error(w, fmt.Sprintf("export failed: %v", err), http.StatusBadGateway)
		return
	}

	writeDownload(w, file.Name, file.ContentType, file.Data)
}

// TemplateHandler serves /templates/{pipeline}.
type TemplateHandler struct{}

func NewTemplateHandler() http.Handler {
	return TemplateHandler{}
}

func (TemplateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pipeline, err := domain.ParsePipeline(lastSegment(r.URL.Path))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	body, err := csvschema.Template(pipeline)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeDownload(w, csvschema.TemplateFileName(pipeline), FormatCSV.ContentType(), []byte(body))
}

func writeDownload(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func lastSegment(path string) string {
	path = strings.TrimSuffix(path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
