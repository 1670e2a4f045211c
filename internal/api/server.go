package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fmuoria/resume-screener/internal/agent"
	"github.com/fmuoria/resume-screener/internal/dataset"
	"github.com/fmuoria/resume-screener/internal/export"
	"github.com/fmuoria/resume-screener/internal/logger"
	"github.com/fmuoria/resume-screener/internal/models"
)

const (
	maxUploadSize = 32 << 20 // 32 MB
	maxBodySize   = 1 << 20

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Server handles HTTP requests
type Server struct {
	agent *agent.Agent
}

// NewServer creates a new API server
func NewServer(agent *agent.Agent) *Server {
	return &Server{
		agent: agent,
	}
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /evaluate", s.handleEvaluate)
	mux.HandleFunc("DELETE /uploads", s.handleClearUploads)
	mux.HandleFunc("GET /dataset", s.handleDataset)
	mux.HandleFunc("GET /dataset/options", s.handleOptions)
	mux.HandleFunc("GET /dataset/export", s.handleExport)
	mux.HandleFunc("POST /dataset/score", s.handleScore)
	mux.HandleFunc("GET /dataset/status", s.handleStatus)
	mux.HandleFunc("POST /dataset/reload", s.handleReload)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("/", s.handleNotFound)

	return Chain(mux, RequestID, AccessLog, Recover)
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"service": "Resume Screener",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"POST /evaluate":       "Evaluate an uploaded résumé against a job description",
			"DELETE /uploads":      "Delete stored résumé uploads",
			"GET /dataset":         "Filtered candidate summary (job_title and/or recruiter)",
			"GET /dataset/options": "Distinct job titles and recruiters",
			"GET /dataset/export":  "Download filtered rows as csv or xlsx",
			"POST /dataset/score":  "Score filtered candidates against their job postings",
			"GET /dataset/status":  "Summary cache status",
			"POST /dataset/reload": "Rebuild the summary from the source files",
			"GET /health":          "Health check",
		},
	})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, errNotFound(fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path)))
}

// handleEvaluate reads a multipart résumé upload and evaluates it
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, r, errBadRequest(fmt.Sprintf("failed to parse form: %v", err)))
		return
	}

	req := models.EvaluateRequest{JobDescription: r.FormValue("job_description")}

	file, header, err := r.FormFile("resume")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// reported below as missing input
	case err != nil:
		respondError(w, r, errBadRequest(fmt.Sprintf("failed to read resume: %v", err)))
		return
	default:
		defer file.Close()
		req.FileName = header.Filename
		if req.Data, err = io.ReadAll(file); err != nil {
			respondError(w, r, errBadRequest(fmt.Sprintf("failed to read resume: %v", err)))
			return
		}
	}

	resp, err := s.agent.EvaluateUpload(r.Context(), req)
	if err != nil {
		respondError(w, r, classify(err))
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearUploads(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.ClearUploads(r.Context()); err != nil {
		respondError(w, r, classify(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func filterFrom(r *http.Request) dataset.Filter {
	q := r.URL.Query()
	return dataset.Filter{
		JobTitle:  strings.TrimSpace(q.Get("job_title")),
		Recruiter: strings.TrimSpace(q.Get("recruiter")),
	}
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	filter := filterFrom(r)
	rows, err := s.agent.Dataset(r.Context(), filter)
	if err != nil {
		respondError(w, r, classify(err))
		return
	}
	respondJSON(w, http.StatusOK, agent.DatasetResponse(filter, rows))
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.agent.FilterOptions(r.Context())
	if err != nil {
		respondError(w, r, classify(err))
		return
	}
	respondJSON(w, http.StatusOK, opts)
}

// handleExport downloads the filtered rows; csv unless format=xlsx
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		respondError(w, r, errBadRequest(fmt.Sprintf("format must be csv or xlsx, got %q", format)))
		return
	}

	filter := filterFrom(r)
	rows, err := s.agent.Dataset(r.Context(), filter)
	if err != nil {
		respondError(w, r, classify(err))
		return
	}

	var buf bytes.Buffer
	if format == "xlsx" {
		err = export.WriteXLSX(&buf, export.Report{Filter: filter, Rows: rows})
	} else {
		err = export.WriteCSV(&buf, rows)
	}
	if err != nil {
		respondError(w, r, classify(err))
		return
	}

	if format == "xlsx" {
		respondFile(w, r, xlsxContentType, export.XLSXFileName, buf.Bytes())
	} else {
		respondFile(w, r, "text/csv; charset=utf-8", export.CSVFileName, buf.Bytes())
	}
}

// handleScore scores the filtered rows. With format=xlsx the ranked results
// are returned as a workbook instead of JSON.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req models.ScoreRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, errBadRequest(fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if req.Limit < 0 {
		respondError(w, r, errBadRequest("limit must not be negative"))
		return
	}

	rows, resp, err := s.agent.ScoreReport(r.Context(), req)
	if err != nil {
		respondError(w, r, classify(err))
		return
	}

	if strings.ToLower(r.URL.Query().Get("format")) != "xlsx" {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	filter := dataset.Filter{JobTitle: req.JobTitle, Recruiter: req.Recruiter}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, export.Report{Filter: filter, Rows: rows, Scores: &resp}); err != nil {
		respondError(w, r, classify(err))
		return
	}
	respondFile(w, r, xlsxContentType, export.XLSXFileName, buf.Bytes())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.agent.Status(r.Context())
	if err != nil {
		respondError(w, r, classify(err))
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	status, err := s.agent.Reload(r.Context())
	if err != nil {
		respondError(w, r, classify(err))
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// respondError sends an error response carrying the request id
func respondError(w http.ResponseWriter, r *http.Request, apiErr *APIError) {
	apiErr.RequestID = logger.GetRequestID(r.Context())
	if apiErr.Code >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request error", "error", apiErr.Detail)
	}
	respondJSON(w, apiErr.Code, map[string]*APIError{"error": apiErr})
}

func respondFile(w http.ResponseWriter, r *http.Request, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.WarnContext(r.Context(), "failed to write download", "file", name, "error", err)
	}
}
