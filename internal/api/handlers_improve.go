package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jbgab/klartext/internal/apply"
	"github.com/jbgab/klartext/internal/artifact"
	"github.com/jbgab/klartext/internal/document"
	"github.com/jbgab/klartext/internal/pipeline"
	"github.com/jbgab/klartext/internal/structure"
)

func (s *Server) handleImprove(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	format, err := structure.FormatForFile(filename)
	if err != nil {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	// Read file data.
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	job := pipeline.NewJob(filename, format, data)
	job.DocxMode = apply.DocxMode(s.cfg.DocxMode)
	mode := r.FormValue("mode")
	if mode == "" {
		mode = r.FormValue("docx_mode")
	}
	switch mode {
	case string(apply.ModeTracked):
		job.DocxMode = apply.ModeTracked
	case string(apply.ModeMarkup), "simple":
		job.DocxMode = apply.ModeMarkup
	}
	job.IncludeMotivations = s.cfg.IncludeMotivations
	if v := r.FormValue("motivations"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			job.IncludeMotivations = b
		}
	}
	if prompt := r.FormValue("prompt"); prompt != "" {
		job.SetCustomPrompt(prompt)
	}

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":     job.ID,
		"status":     job.Status,
		"poll_url":   fmt.Sprintf("/api/improve/%s/status", job.ID),
		"result_url": fmt.Sprintf("/api/improve/%s/result", job.ID),
	})
}

func (s *Server) handleImproveStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   snap.ID,
		"filename": snap.Filename,
		"format":   snap.Format,
		"status":   snap.Status,
		"phase":    snap.Phase,
		"report":   snap.Report,
		"errors":   snap.Errors,
	})
}

func (s *Server) handleImproveResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	switch snap.Status {
	case pipeline.StatusCompleted:
	case pipeline.StatusFailed, pipeline.StatusNoContent:
		jsonError(w, fmt.Sprintf("job ended with status %q", snap.Status), http.StatusConflict)
		return
	default:
		jsonError(w, fmt.Sprintf("job still %q", snap.Status), http.StatusConflict)
		return
	}

	data, name, err := s.orchestrator.Artifacts().Get(jobID)
	if errors.Is(err, artifact.ErrNotFound) {
		jsonError(w, "result expired", http.StatusGone)
		return
	}
	if err != nil {
		s.log.Error("artifact read failed", "job_id", jobID, "error", err)
		jsonError(w, "failed to read result", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(snap.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func contentTypeFor(format document.Format) string {
	if format == document.FormatPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
