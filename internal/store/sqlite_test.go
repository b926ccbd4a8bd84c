package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/masimlabs/masim/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close test store: %v", err)
		}
	})
	return repo
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	cp := &domain.Checkpoint{
		SessionID: "sess-1",
		Session: domain.Session{
			SessionID: "sess-1",
			Messages:  []domain.Message{{Role: "user", Content: "draw a sine wave"}},
			Goal:      "animate a sine wave",
			Plans:     []domain.PlanStep{{Title: "axes", Description: "draw axes"}},
			Codes:     []string{"code-v1"},
			Stdout:    "rendered",
			NeedsFix:  true,
			Retry:     1,
			MaxRetry:  3,
		},
		Next:      domain.StageAnalyze,
		UpdatedAt: time.Now(),
	}
	if err := repo.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("PutCheckpoint failed: %v", err)
	}

	got, err := repo.GetCheckpoint(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected checkpoint, got nil")
	}
	if got.Next != domain.StageAnalyze {
		t.Errorf("Expected next stage analyze, got %s", got.Next)
	}
	if got.Session.Goal != cp.Session.Goal {
		t.Errorf("Expected goal %q, got %q", cp.Session.Goal, got.Session.Goal)
	}
	if len(got.Session.Messages) != 1 || got.Session.Messages[0].Content != "draw a sine wave" {
		t.Errorf("Expected messages reproduced, got %v", got.Session.Messages)
	}
	if got.Session.Retry != 1 || got.Session.MaxRetry != 3 || !got.Session.NeedsFix {
		t.Errorf("Expected counters reproduced, got %+v", got.Session)
	}
	if got.Pending != nil {
		t.Errorf("Expected no pending interrupt, got %+v", got.Pending)
	}
}

func TestCheckpoint_OverwriteAndPending(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	cp := &domain.Checkpoint{
		SessionID: "sess-2",
		Session:   domain.Session{SessionID: "sess-2"},
		Next:      domain.StagePlan,
		UpdatedAt: time.Now(),
	}
	if err := repo.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("First PutCheckpoint failed: %v", err)
	}

	cp.Next = domain.StagePlanReview
	cp.Pending = &domain.Interrupt{Gate: domain.StagePlanReview, Prompt: "review the plan"}
	if err := repo.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("Overwrite PutCheckpoint failed: %v", err)
	}

	got, err := repo.GetCheckpoint(ctx, "sess-2")
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if got.Next != domain.StagePlanReview {
		t.Errorf("Expected overwritten next stage, got %s", got.Next)
	}
	if got.Pending == nil || got.Pending.Gate != domain.StagePlanReview {
		t.Errorf("Expected pending interrupt reproduced, got %+v", got.Pending)
	}
}

func TestCheckpoint_MissingReturnsNil(t *testing.T) {
	repo := newTestStore(t)

	got, err := repo.GetCheckpoint(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil checkpoint, got %+v", got)
	}
}

func TestCheckpoint_RejectsInvalidStage(t *testing.T) {
	repo := newTestStore(t)

	cp := &domain.Checkpoint{
		SessionID: "sess-bad",
		Session:   domain.Session{SessionID: "sess-bad"},
		Next:      domain.Stage("nonsense"),
	}
	if err := repo.PutCheckpoint(context.Background(), cp); err == nil {
		t.Error("Expected invalid stage to be rejected")
	}
}

func TestCheckpoint_Delete(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	cp := &domain.Checkpoint{
		SessionID: "sess-3",
		Session:   domain.Session{SessionID: "sess-3"},
		Next:      domain.StageEnd,
	}
	if err := repo.PutCheckpoint(ctx, cp); err != nil {
		t.Fatalf("PutCheckpoint failed: %v", err)
	}
	if err := repo.DeleteCheckpoint(ctx, "sess-3"); err != nil {
		t.Fatalf("DeleteCheckpoint failed: %v", err)
	}

	got, err := repo.GetCheckpoint(ctx, "sess-3")
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected checkpoint deleted, got %+v", got)
	}
}

func TestJob_CRUD(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	job := &domain.Job{
		JobID:     "job-1",
		SessionID: "sess-1",
		Status:    domain.JobPending,
		Message:   "draw a circle",
		UserID:    "user-1",
		CreatedAt: time.Now(),
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	started := time.Now()
	if err := job.Transition(domain.JobRunning, started); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	job.Result = &domain.Result{Goal: "circle", Codes: []string{"c1"}, RetryCount: 0}
	if err := repo.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	got, err := repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected job, got nil")
	}
	if got.Status != domain.JobRunning {
		t.Errorf("Expected running status, got %s", got.Status)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("Expected StartedAt %v, got %v", started, got.StartedAt)
	}
	if got.Result == nil || got.Result.Goal != "circle" {
		t.Errorf("Expected result reproduced, got %+v", got.Result)
	}

	found, err := repo.DeleteJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	if !found {
		t.Error("Expected DeleteJob to report found")
	}

	got, err = repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob after delete failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected job deleted, got %+v", got)
	}
}

func TestJob_GetMissingReturnsNil(t *testing.T) {
	repo := newTestStore(t)

	got, err := repo.GetJob(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil job, got %+v", got)
	}

	found, err := repo.DeleteJob(context.Background(), "missing")
	if err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	if found {
		t.Error("Expected DeleteJob to report not found")
	}
}

func TestJob_ListNewestFirstWithFilters(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	jobs := []*domain.Job{
		{JobID: "old", SessionID: "s1", UserID: "u1", Status: domain.JobCompleted, CreatedAt: base.Add(-2 * time.Hour)},
		{JobID: "mid", SessionID: "s2", UserID: "u1", Status: domain.JobPending, CreatedAt: base.Add(-time.Hour)},
		{JobID: "new", SessionID: "s1", UserID: "u2", Status: domain.JobPending, CreatedAt: base},
	}
	for _, j := range jobs {
		if err := repo.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob %s failed: %v", j.JobID, err)
		}
	}

	all, err := repo.ListJobs(ctx, JobFilter{})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(all))
	}
	if all[0].JobID != "new" || all[2].JobID != "old" {
		t.Errorf("Expected newest-first ordering, got %s, %s, %s", all[0].JobID, all[1].JobID, all[2].JobID)
	}

	byUser, err := repo.ListJobs(ctx, JobFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListJobs by user failed: %v", err)
	}
	if len(byUser) != 2 {
		t.Errorf("Expected 2 jobs for u1, got %d", len(byUser))
	}

	bySession, err := repo.ListJobs(ctx, JobFilter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("ListJobs by session failed: %v", err)
	}
	if len(bySession) != 2 {
		t.Errorf("Expected 2 jobs for s1, got %d", len(bySession))
	}
}
