package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/masimlabs/masim/internal/domain"
)

// JobEvents handles GET /ws/jobs/{jobID}: it streams job status snapshots
// over a WebSocket until the job reaches a terminal status.
func (h *Handler) JobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if job == nil {
		Error(w, http.StatusNotFound, "job not found")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer ws.Close(websocket.StatusInternalError, "stream aborted")

	updates, cancel := h.svc.Subscribe(jobID)
	defer cancel()

	// Send the current snapshot first so subscribers never miss a job that
	// finished before the socket opened.
	if err := writeJob(r.Context(), ws, job); err != nil {
		return
	}
	if job.Terminal() {
		ws.Close(websocket.StatusNormalClosure, "job finished")
		return
	}

	// Poll as a fallback for updates published before Subscribe registered.
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case update := <-updates:
			job = update
		case <-ticker.C:
			job, err = h.svc.GetJob(r.Context(), jobID)
			if err != nil || job == nil {
				ws.Close(websocket.StatusInternalError, "job lookup failed")
				return
			}
		case <-r.Context().Done():
			ws.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		if err := writeJob(r.Context(), ws, job); err != nil {
			return
		}
		if job.Terminal() {
			ws.Close(websocket.StatusNormalClosure, "job finished")
			return
		}
	}
}

func writeJob(ctx context.Context, ws *websocket.Conn, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
