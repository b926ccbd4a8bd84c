package domain

import (
	"fmt"
	"time"
)

// JobStatus is the caller-visible status of an animation job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// jobTransitions defines the allowed status transitions. A job only ever
// moves forward: pending -> running -> {completed, failed}.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:   {JobRunning},
	JobRunning:   {JobCompleted, JobFailed},
	JobCompleted: {},
	JobFailed:    {},
}

// CanTransitionTo reports whether moving to next is a legal status change.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Result is the final snapshot of a completed orchestrator run.
type Result struct {
	OutputPath string     `json:"output_path,omitempty"`
	Goal       string     `json:"goal"`
	Plans      []PlanStep `json:"plans"`
	Codes      []string   `json:"codes"`
	Stdout     string     `json:"stdout"`
	Stderr     string     `json:"stderr"`
	RetryCount int        `json:"retry_count"`
}

// Job is one bounded execution of the orchestration graph against a session.
type Job struct {
	JobID       string     `json:"job_id"`
	SessionID   string     `json:"session_id"`
	Status      JobStatus  `json:"status"`
	Message     string     `json:"message"`
	UserID      string     `json:"user_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Transition moves the job to the next status, stamping the matching
// timestamp. Illegal transitions are rejected.
func (j *Job) Transition(next JobStatus, at time.Time) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal job transition %s -> %s", j.Status, next)
	}
	j.Status = next
	switch next {
	case JobRunning:
		j.StartedAt = &at
	case JobCompleted, JobFailed:
		j.CompletedAt = &at
	}
	return nil
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
