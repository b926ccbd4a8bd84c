package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/masimlabs/masim/internal/domain"
)

func TestGetSession_NotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestGetSession_ReturnsStateAndJobs(t *testing.T) {
	r, repo := newTestRouter(t)
	ctx := context.Background()

	cp := &domain.Checkpoint{
		SessionID: "s1",
		Session:   domain.Session{SessionID: "s1", Goal: "a circle"},
		Next:      domain.StagePlanReview,
		Pending:   &domain.Interrupt{Gate: domain.StagePlanReview, Prompt: "review"},
	}
	if err := repo.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("PutCheckpoint failed: %v", err)
	}
	job := &domain.Job{JobID: "j1", SessionID: "s1", Status: domain.JobCompleted}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		SessionID string          `json:"session_id"`
		JobCount  int             `json:"job_count"`
		State     *domain.Session `json:"state"`
		Pending   *struct {
			Gate string `json:"gate"`
		} `json:"pending"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.SessionID != "s1" || resp.JobCount != 1 {
		t.Errorf("Expected session projection, got %+v", resp)
	}
	if resp.State == nil || resp.State.Goal != "a circle" {
		t.Errorf("Expected checkpointed state, got %+v", resp.State)
	}
	if resp.Pending == nil {
		t.Error("Expected pending interrupt exposed")
	}
}

func TestResumeSession_NotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/nope/resume", strings.NewReader(`{"answer": "N"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestResumeSession_ConflictWhenNotSuspended(t *testing.T) {
	r, repo := newTestRouter(t)
	ctx := context.Background()

	cp := &domain.Checkpoint{
		SessionID: "s2",
		Session:   domain.Session{SessionID: "s2"},
		Next:      domain.StageEnd,
	}
	if err := repo.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("PutCheckpoint failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s2/resume", strings.NewReader(`{"answer": "N"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestResumeSession_EmptyAnswerAccepted(t *testing.T) {
	r, repo := newTestRouter(t)
	ctx := context.Background()

	cp := &domain.Checkpoint{
		SessionID: "s3",
		Session:   domain.Session{SessionID: "s3"},
		Next:      domain.StagePlanReview,
		Pending:   &domain.Interrupt{Gate: domain.StagePlanReview, Prompt: "review"},
	}
	if err := repo.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("PutCheckpoint failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s3/resume", strings.NewReader(`{"answer": ""}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var job domain.Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if job.SessionID != "s3" {
		t.Errorf("Expected resume job bound to s3, got %s", job.SessionID)
	}
}

func TestDeleteSession(t *testing.T) {
	r, repo := newTestRouter(t)
	ctx := context.Background()

	cp := &domain.Checkpoint{
		SessionID: "s4",
		Session:   domain.Session{SessionID: "s4"},
		Next:      domain.StageEnd,
	}
	if err := repo.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("PutCheckpoint failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/s4", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/s4", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", w.Code)
	}
}
