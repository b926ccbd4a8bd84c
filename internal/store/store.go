// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/masimlabs/masim/internal/domain"
)

// JobFilter narrows a job listing. Empty fields match everything.
type JobFilter struct {
	UserID    string
	SessionID string
}

// Repository defines the interface for persisting checkpoints and jobs.
type Repository interface {
	// GetCheckpoint retrieves the latest checkpoint for a session.
	// Returns (nil, nil) when the session has no checkpoint.
	GetCheckpoint(ctx context.Context, sessionID string) (*domain.Checkpoint, error)

	// PutCheckpoint durably stores a checkpoint, overwriting any previous
	// snapshot for the same session id. Idempotent.
	PutCheckpoint(ctx context.Context, cp *domain.Checkpoint) error

	// DeleteCheckpoint removes a session's checkpoint.
	DeleteCheckpoint(ctx context.Context, sessionID string) error

	// CreateJob inserts a new job record.
	CreateJob(ctx context.Context, job *domain.Job) error

	// UpdateJob overwrites the mutable fields of a job record.
	UpdateJob(ctx context.Context, job *domain.Job) error

	// GetJob retrieves a job by id. Returns (nil, nil) when absent.
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)

	// ListJobs returns jobs matching the filter, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*domain.Job, error)

	// DeleteJob removes a job record. Returns false when the job is absent.
	DeleteJob(ctx context.Context, jobID string) (bool, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
