package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/testengine-ci/internal/engine"
	"github.com/seantiz/testengine-ci/internal/store"
)

const (
	maxBodySize      = 1 << 20  // 1 MB
	maxUploadSize    = 64 << 20 // 64 MB
	maxUploadMemory  = 8 << 20
	uploadFileField  = "file"
	listJobsGreeting = "Mock TestEngine is running"
)

type listJobsResponse struct {
	Message    string   `json:"message"`
	Executions []string `json:"executions"`
}

type uploadResponse struct {
	TestjobID string `json:"testjobId"`
}

type runResponse struct {
	Message     string `json:"message"`
	ExecutionID string `json:"executionId"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("list executions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	ids := make([]string, 0, len(list))
	for _, e := range list {
		ids = append(ids, e.ID)
	}
	s.writeJSON(w, http.StatusOK, listJobsResponse{Message: listJobsGreeting, Executions: ids})
}

// handleUploadProject accepts a multipart project upload. The file content
// is discarded; only its name is kept. A request without a file part still
// creates an execution.
func (s *Server) handleUploadProject(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		s.writeError(w, http.StatusBadRequest, "expected multipart/form-data body")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "project file too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var projectFile string
	if f, hdr, err := r.FormFile(uploadFileField); err == nil {
		projectFile = hdr.Filename
		_ = f.Close()
	}

	e, err := s.registry.Create(r.Context(), projectFile)
	if err != nil {
		s.logger.Error("create execution", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create execution")
		return
	}

	s.logger.Info("project uploaded",
		"execution_id", e.ID,
		"project_file", e.ProjectFile,
		"test_suite", r.FormValue("testSuite"),
		"job_description", r.FormValue("jobDescription"),
	)
	s.writeJSON(w, http.StatusOK, uploadResponse{TestjobID: e.ID})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	e, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeRegistryError(w, "get execution", err)
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// The body is optional and ignored.
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var ignored json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&ignored)

	if _, err := s.registry.Start(r.Context(), id); err != nil {
		s.writeRegistryError(w, "start execution", err)
		return
	}
	s.writeJSON(w, http.StatusOK, runResponse{Message: "Execution started", ExecutionID: id})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	e, err := s.registry.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeRegistryError(w, "cancel execution", err)
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeRegistryError maps registry and store errors onto HTTP responses.
func (s *Server) writeRegistryError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Execution not found")
	case errors.Is(err, engine.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
	default:
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
