package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/masimlabs/masim/internal/domain"
	"github.com/masimlabs/masim/internal/orchestrator"
	"github.com/masimlabs/masim/internal/service"
)

// GetSession handles GET /api/v1/sessions/{sessionID}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.GetSessionInfo(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	JSON(w, http.StatusOK, info)
}

// ListSessionJobs handles GET /api/v1/sessions/{sessionID}/jobs.
func (h *Handler) ListSessionJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListJobs(r.Context(), "", chi.URLParam(r, "sessionID"))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to list session jobs")
		return
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

// ResumeRequest is the body of POST /api/v1/sessions/{sessionID}/resume.
// An empty answer is meaningful: it approves a pending plan review.
type ResumeRequest struct {
	Answer string `json:"answer"`
}

// ResumeSession handles POST /api/v1/sessions/{sessionID}/resume.
func (h *Handler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.svc.Resume(r.Context(), chi.URLParam(r, "sessionID"), req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			Error(w, http.StatusNotFound, "session not found")
		case errors.Is(err, orchestrator.ErrNotSuspended):
			Error(w, http.StatusConflict, "session is not waiting for input")
		default:
			Error(w, http.StatusInternalServerError, "failed to resume session")
		}
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

// DeleteSession handles DELETE /api/v1/sessions/{sessionID}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
