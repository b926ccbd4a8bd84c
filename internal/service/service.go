// Package service implements the animation job facade: it creates jobs,
// binds them to sessions, drives the orchestrator on a worker pool, and
// exposes job and session state to the API layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/masimlabs/masim/internal/config"
	"github.com/masimlabs/masim/internal/domain"
	"github.com/masimlabs/masim/internal/orchestrator"
	"github.com/masimlabs/masim/internal/sandbox"
	"github.com/masimlabs/masim/internal/store"
)

// ErrQueueFull is returned when the job queue cannot accept more work.
var ErrQueueFull = errors.New("job queue is full")

// ErrSessionNotFound is returned for lookups against unknown sessions.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo is the read-only projection of a session.
type SessionInfo struct {
	SessionID string            `json:"session_id"`
	JobCount  int               `json:"job_count"`
	Jobs      []*domain.Job     `json:"jobs"`
	State     *domain.Session   `json:"state,omitempty"`
	Next      domain.Stage      `json:"next,omitempty"`
	Pending   *domain.Interrupt `json:"pending,omitempty"`
}

// Service is the animation job facade.
type Service struct {
	repo    store.Repository
	machine *orchestrator.Machine
	runner  sandbox.Runner
	cfg     *config.Config

	queue chan string

	// sessionLocks serializes orchestrator runs per session: concurrent runs
	// would race on the same checkpoint. Jobs against a busy session queue
	// behind the in-flight run.
	sessionLocks sync.Map

	broadcaster *broadcaster
}

// New creates the service. Call Start to launch the worker pool.
func New(repo store.Repository, machine *orchestrator.Machine, runner sandbox.Runner, cfg *config.Config) *Service {
	return &Service{
		repo:        repo,
		machine:     machine,
		runner:      runner,
		cfg:         cfg,
		queue:       make(chan string, cfg.QueueSize),
		broadcaster: newBroadcaster(),
	}
}

// Start launches the worker pool. Workers drain the queue first-submitted-
// first-run until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		go func(worker int) {
			for {
				select {
				case jobID := <-s.queue:
					s.runJob(ctx, jobID)
				case <-ctx.Done():
					slog.Info("Job worker shutting down", "worker", worker)
					return
				}
			}
		}(i)
	}
	slog.Info("Job workers started", "count", s.cfg.Workers)
}

// CreateJob creates a pending job bound to a session. An absent or unknown
// session id mints a fresh session; a known one continues the conversation.
func (s *Service) CreateJob(ctx context.Context, message, userID, sessionID string) (*domain.Job, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
		slog.Info("Created new session", "session_id", sessionID)
	} else {
		cp, err := s.repo.GetCheckpoint(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("validate session: %w", err)
		}
		if cp == nil {
			slog.Warn("Unknown session id provided, creating new session", "session_id", sessionID)
			sessionID = uuid.New().String()
		} else {
			slog.Info("Continuing existing session", "session_id", sessionID)
		}
	}

	job := &domain.Job{
		JobID:     uuid.New().String(),
		SessionID: sessionID,
		Status:    domain.JobPending,
		Message:   message,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	slog.Info("Created job", "job_id", job.JobID, "session_id", sessionID, "user_id", userID)
	return job, nil
}

// Enqueue submits a job to the worker pool without blocking the caller.
func (s *Service) Enqueue(jobID string) error {
	select {
	case s.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// runJob drives one orchestrator run for the job, holding the session lock
// for its duration. A run that suspends at a gate releases the lock and the
// worker; the session resumes later from a fresh job.
func (s *Service) runJob(ctx context.Context, jobID string) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil || job == nil {
		slog.Error("Worker failed to load job", "job_id", jobID, "error", err)
		return
	}

	lock := s.sessionLock(job.SessionID)
	lock.Lock()
	defer lock.Unlock()

	s.transition(ctx, job, domain.JobRunning)

	// Infrastructure unavailable before any attempt could run is fatal to
	// the job; infrastructure failures mid-loop feed the fix loop instead.
	if err := s.runner.Ping(ctx); err != nil {
		s.fail(ctx, job, fmt.Errorf("sandbox unavailable: %w", err))
		return
	}

	cp, err := s.repo.GetCheckpoint(ctx, job.SessionID)
	if err != nil {
		s.fail(ctx, job, err)
		return
	}

	var outcome orchestrator.Outcome
	if cp != nil && cp.Pending != nil {
		// The session is suspended at a gate; this job's message is the answer.
		// An empty answer (plan approval) is not conversation history.
		if job.Message != "" {
			cp.Session.Messages = append(cp.Session.Messages, domain.Message{Role: "user", Content: job.Message})
		}
		outcome, err = s.machine.Resume(ctx, cp, job.Message)
	} else {
		outcome, err = s.machine.Run(ctx, s.prepareCheckpoint(cp, job))
	}
	if err != nil {
		s.fail(ctx, job, err)
		return
	}

	job.Result = resultFromSession(&outcome.Session)
	s.transition(ctx, job, domain.JobCompleted)

	if outcome.Suspended != nil {
		slog.Info("Job completed at gate", "job_id", job.JobID, "gate", outcome.Suspended.Gate)
	} else {
		slog.Info("Job completed", "job_id", job.JobID, "retry", outcome.Session.Retry)
	}
}

// prepareCheckpoint builds the run's starting checkpoint. A continuation
// carries forward the accumulated history, plan, codes, and analysis while
// resetting the per-run fields, and re-enters at the planning stage.
func (s *Service) prepareCheckpoint(cp *domain.Checkpoint, job *domain.Job) *domain.Checkpoint {
	userMsg := domain.Message{Role: "user", Content: job.Message}

	if cp == nil {
		return &domain.Checkpoint{
			SessionID: job.SessionID,
			Session: domain.Session{
				SessionID: job.SessionID,
				Messages:  []domain.Message{userMsg},
				MaxRetry:  s.cfg.MaxRetry,
			},
			Next: domain.StageGoalExtract,
		}
	}

	sess := cp.Session
	sess.Messages = append(sess.Messages, userMsg)
	sess.Stdout = ""
	sess.Stderr = ""
	sess.OutputPath = ""
	sess.Retry = 0
	sess.NeedsFix = false
	sess.PlanFeedback = ""
	sess.HumanRequest = ""
	sess.MaxRetry = s.cfg.MaxRetry

	next := domain.StagePlan
	if sess.Goal == "" {
		next = domain.StageGoalExtract
	}
	return &domain.Checkpoint{SessionID: job.SessionID, Session: sess, Next: next}
}

// GetJob retrieves a job by id. Returns (nil, nil) when absent.
func (s *Service) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.repo.GetJob(ctx, jobID)
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Service) ListJobs(ctx context.Context, userID, sessionID string) ([]*domain.Job, error) {
	return s.repo.ListJobs(ctx, store.JobFilter{UserID: userID, SessionID: sessionID})
}

// DeleteJob removes a job and best-effort deletes its artifact file.
// Returns false when the job does not exist.
func (s *Service) DeleteJob(ctx context.Context, jobID string) (bool, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	s.removeArtifact(job)

	found, err := s.repo.DeleteJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	slog.Info("Deleted job", "job_id", jobID)
	return found, nil
}

// removeArtifact deletes the job's output file if any. Deletion failures are
// logged, never raised: the registry record always goes away.
func (s *Service) removeArtifact(job *domain.Job) {
	if job.Result == nil || job.Result.OutputPath == "" {
		return
	}
	if err := os.Remove(job.Result.OutputPath); err != nil {
		if os.IsNotExist(err) {
			slog.Info("Artifact already missing", "job_id", job.JobID, "path", job.Result.OutputPath)
		} else {
			slog.Error("Failed to delete artifact", "job_id", job.JobID, "path", job.Result.OutputPath, "error", err)
		}
		return
	}
	slog.Info("Deleted artifact", "job_id", job.JobID, "path", job.Result.OutputPath)
}

// GetSessionInfo returns the session projection: its jobs plus the
// checkpointed state. ErrSessionNotFound when neither exists.
func (s *Service) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	jobs, err := s.repo.ListJobs(ctx, store.JobFilter{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	cp, err := s.repo.GetCheckpoint(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 && cp == nil {
		return nil, ErrSessionNotFound
	}

	info := &SessionInfo{
		SessionID: sessionID,
		JobCount:  len(jobs),
		Jobs:      jobs,
	}
	if cp != nil {
		state := cp.Session
		info.State = &state
		info.Next = cp.Next
		info.Pending = cp.Pending
	}
	return info, nil
}

// GetSessionState returns the checkpointed session state, or nil when the
// session has no checkpoint.
func (s *Service) GetSessionState(ctx context.Context, sessionID string) (*domain.Session, error) {
	cp, err := s.repo.GetCheckpoint(ctx, sessionID)
	if err != nil || cp == nil {
		return nil, err
	}
	state := cp.Session
	return &state, nil
}

// Resume answers a pending gate by creating a job whose message is the
// answer. The session must have a checkpoint.
func (s *Service) Resume(ctx context.Context, sessionID, answer string) (*domain.Job, error) {
	cp, err := s.repo.GetCheckpoint(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, ErrSessionNotFound
	}
	if cp.Pending == nil {
		return nil, fmt.Errorf("%w for session %s", orchestrator.ErrNotSuspended, sessionID)
	}

	job := &domain.Job{
		JobID:     uuid.New().String(),
		SessionID: sessionID,
		Status:    domain.JobPending,
		Message:   answer,
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create resume job: %w", err)
	}
	slog.Info("Created resume job", "job_id", job.JobID, "session_id", sessionID, "gate", cp.Pending.Gate)
	return job, nil
}

// DeleteSession removes the session's checkpoint and cascades to all of its
// jobs (artifacts included). ErrSessionNotFound when nothing existed.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	jobs, err := s.repo.ListJobs(ctx, store.JobFilter{SessionID: sessionID})
	if err != nil {
		return err
	}
	cp, err := s.repo.GetCheckpoint(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(jobs) == 0 && cp == nil {
		return ErrSessionNotFound
	}

	for _, job := range jobs {
		if _, err := s.DeleteJob(ctx, job.JobID); err != nil {
			slog.Error("Failed to delete session job", "job_id", job.JobID, "error", err)
		}
	}
	if err := s.repo.DeleteCheckpoint(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("Deleted session", "session_id", sessionID, "jobs", len(jobs))
	return nil
}

// Subscribe registers for status updates of one job. The returned cancel
// func must be called when done.
func (s *Service) Subscribe(jobID string) (<-chan *domain.Job, func()) {
	return s.broadcaster.subscribe(jobID)
}

func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	lock, _ := s.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (s *Service) transition(ctx context.Context, job *domain.Job, next domain.JobStatus) {
	if err := job.Transition(next, time.Now()); err != nil {
		slog.Error("Refusing illegal job transition", "job_id", job.JobID, "error", err)
		return
	}
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		slog.Error("Failed to persist job status", "job_id", job.JobID, "status", next, "error", err)
	}
	s.broadcaster.publish(job)
}

func (s *Service) fail(ctx context.Context, job *domain.Job, err error) {
	slog.Error("Job failed", "job_id", job.JobID, "error", err)
	job.Error = err.Error()
	s.transition(ctx, job, domain.JobFailed)
}

func resultFromSession(sess *domain.Session) *domain.Result {
	return &domain.Result{
		OutputPath: sess.OutputPath,
		Goal:       sess.Goal,
		Plans:      sess.Plans,
		Codes:      sess.Codes,
		Stdout:     sess.Stdout,
		Stderr:     sess.Stderr,
		RetryCount: sess.Retry,
	}
}
