package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/masimlabs/masim/internal/domain"
	"github.com/masimlabs/masim/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db           *sql.DB
	checkpointMu sync.Mutex // serializes checkpoint writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS checkpoints (
		session_id TEXT PRIMARY KEY,
		session_json TEXT NOT NULL,
		next_stage TEXT NOT NULL,
		pending_json TEXT,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT NOT NULL,
		user_id TEXT,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		result_json TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_session ON jobs(session_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves the latest checkpoint for a session.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	query := `
		SELECT session_id, session_json, next_stage, pending_json, updated_at
		FROM checkpoints WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var cp domain.Checkpoint
	var sessionJSON string
	var pendingJSON sql.NullString
	var nextStage string
	var updatedAt int64

	err := row.Scan(&cp.SessionID, &sessionJSON, &nextStage, &pendingJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint row: %w", err)
	}

	if err := json.Unmarshal([]byte(sessionJSON), &cp.Session); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if pendingJSON.Valid {
		var intr domain.Interrupt
		if err := json.Unmarshal([]byte(pendingJSON.String), &intr); err != nil {
			return nil, fmt.Errorf("decode pending interrupt: %w", err)
		}
		cp.Pending = &intr
	}

	cp.Next = domain.Stage(nextStage)
	if !cp.Next.Valid() {
		return nil, fmt.Errorf("checkpoint for %s names unknown stage %q", sessionID, nextStage)
	}
	cp.UpdatedAt = time.Unix(0, updatedAt)

	return &cp, nil
}

// PutCheckpoint durably stores a checkpoint, overwriting any previous
// snapshot for the same session. Retries with exponential backoff on
// SQLite concurrency errors.
func (s *SQLiteStore) PutCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	if !cp.Next.Valid() {
		return fmt.Errorf("refusing to persist unknown stage %q", cp.Next)
	}

	sessionJSON, err := json.Marshal(cp.Session)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	var pendingJSON interface{}
	if cp.Pending != nil {
		b, err := json.Marshal(cp.Pending)
		if err != nil {
			return fmt.Errorf("encode pending interrupt: %w", err)
		}
		pendingJSON = string(b)
	}

	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err = s.putCheckpointOnce(ctx, cp, string(sessionJSON), pendingJSON)
		if err == nil {
			return nil
		}
		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		return fmt.Errorf("put checkpoint for %s: %w", cp.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) putCheckpointOnce(ctx context.Context, cp *domain.Checkpoint, sessionJSON string, pendingJSON interface{}) error {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()

	query := `
		INSERT INTO checkpoints (session_id, session_json, next_stage, pending_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			session_json = excluded.session_json,
			next_stage = excluded.next_stage,
			pending_json = excluded.pending_json,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		cp.SessionID, sessionJSON, string(cp.Next), pendingJSON, cp.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// DeleteCheckpoint removes a session's checkpoint.
func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, sessionID string) error {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// CreateJob inserts a new job record.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (job_id, session_id, status, message, user_id, created_at, started_at, completed_at, result_json, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob overwrites the mutable fields of a job record.
func (s *SQLiteStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs SET status = ?, started_at = ?, completed_at = ?, result_json = ?, error = ?
		WHERE job_id = ?`

	var startedAt, completedAt, resultJSON interface{}
	if job.StartedAt != nil {
		startedAt = job.StartedAt.UnixNano()
	}
	if job.CompletedAt != nil {
		completedAt = job.CompletedAt.UnixNano()
	}
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("encode job result: %w", err)
		}
		resultJSON = string(b)
	}

	result, err := s.db.ExecContext(ctx, query,
		string(job.Status), startedAt, completedAt, resultJSON, nullable(job.Error), job.JobID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %s not found", job.JobID)
	}
	return nil
}

// GetJob retrieves a job by id.
func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT job_id, session_id, status, message, user_id, created_at, started_at, completed_at, result_json, error
		FROM jobs WHERE job_id = ?`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan job row: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs matching the filter, newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	query := `
		SELECT job_id, session_id, status, message, user_id, created_at, started_at, completed_at, result_json, error
		FROM jobs`

	var conds []string
	var args []interface{}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes a job record.
func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var status string
	var userID, resultJSON, errText sql.NullString
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := row.Scan(
		&job.JobID, &job.SessionID, &status, &job.Message, &userID,
		&createdAt, &startedAt, &completedAt, &resultJSON, &errText,
	)
	if err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	job.UserID = userID.String
	job.Error = errText.String
	job.CreatedAt = time.Unix(0, createdAt)
	if startedAt.Valid {
		ts := time.Unix(0, startedAt.Int64)
		job.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := time.Unix(0, completedAt.Int64)
		job.CompletedAt = &ts
	}
	if resultJSON.Valid {
		var res domain.Result
		if err := json.Unmarshal([]byte(resultJSON.String), &res); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
		job.Result = &res
	}
	return &job, nil
}

func jobArgs(job *domain.Job) ([]interface{}, error) {
	var startedAt, completedAt, resultJSON interface{}
	if job.StartedAt != nil {
		startedAt = job.StartedAt.UnixNano()
	}
	if job.CompletedAt != nil {
		completedAt = job.CompletedAt.UnixNano()
	}
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return nil, fmt.Errorf("encode job result: %w", err)
		}
		resultJSON = string(b)
	}
	return []interface{}{
		job.JobID, job.SessionID, string(job.Status), job.Message, nullable(job.UserID),
		job.CreatedAt.UnixNano(), startedAt, completedAt, resultJSON, nullable(job.Error),
	}, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
