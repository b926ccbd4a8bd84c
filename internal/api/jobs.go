package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/masimlabs/masim/internal/domain"
	"github.com/masimlabs/masim/internal/service"
)

// CreateJobRequest is the body of POST /api/v1/animations/jobs.
type CreateJobRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// CreateJob handles POST /api/v1/animations/jobs.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	job, err := h.svc.CreateJob(r.Context(), req.Message, req.UserID, req.SessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	if err := h.svc.Enqueue(job.JobID); err != nil {
		if errors.Is(err, service.ErrQueueFull) {
			Error(w, http.StatusServiceUnavailable, "job queue is full, try again later")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	JSON(w, http.StatusCreated, job)
}

// ListJobs handles GET /api/v1/animations/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListJobs(r.Context(), r.URL.Query().Get("user_id"), r.URL.Query().Get("session_id"))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

// GetJob handles GET /api/v1/animations/jobs/{jobID}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if job == nil {
		Error(w, http.StatusNotFound, "job not found")
		return
	}
	JSON(w, http.StatusOK, job)
}

// DownloadJob handles GET /api/v1/animations/jobs/{jobID}/download.
// It serves the rendered video of a completed job.
func (h *Handler) DownloadJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if job == nil {
		Error(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != domain.JobCompleted {
		Error(w, http.StatusBadRequest, "job is not completed")
		return
	}
	if job.Result == nil || job.Result.OutputPath == "" {
		Error(w, http.StatusNotFound, "job has no rendered output")
		return
	}
	if _, err := os.Stat(job.Result.OutputPath); err != nil {
		Error(w, http.StatusNotFound, "rendered output file is missing")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="output.mp4"`)
	http.ServeFile(w, r, job.Result.OutputPath)
}

// DeleteJob handles DELETE /api/v1/animations/jobs/{jobID}.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	found, err := h.svc.DeleteJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	if !found {
		Error(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
