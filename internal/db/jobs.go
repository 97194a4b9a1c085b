package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobCanceled  = "canceled"
)

// JobRecord is one row in the async job ledger.
type JobRecord struct {
	ID          string
	Stage       string
	Design      string
	Tech        string
	Version     string
	Status      string
	Error       string
	LogPath     string
	ScriptPath  string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Terminal reports whether the job can no longer change state.
func (j JobRecord) Terminal() bool {
	switch j.Status {
	case JobSucceeded, JobFailed, JobCanceled:
		return true
	}
	return false
}

// CreateJob inserts a pending job.
func (d *DB) CreateJob(ctx context.Context, job JobRecord) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO jobs (id, stage, design, tech, version, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Stage, job.Design, job.Tech, job.Version,
		JobPending, job.CreatedAt.Format(timeLayout))
	return err
}

// StartJob marks a job running.
func (d *DB) StartJob(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx, `
UPDATE jobs SET status = ?, started_at = ?
WHERE id = ? AND status = ?`,
		JobRunning, time.Now().UTC().Format(timeLayout), id, JobPending)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// FinishJob records a terminal status with the run's output locations.
func (d *DB) FinishJob(ctx context.Context, id, status, errMsg, version, logPath, scriptPath string) error {
	res, err := d.conn.ExecContext(ctx, `
UPDATE jobs SET status = ?, error = ?, version = ?, log_path = ?, script_path = ?, completed_at = ?
WHERE id = ?`,
		status, errMsg, version, logPath, scriptPath,
		time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// GetJob fetches one job by id.
func (d *DB) GetJob(ctx context.Context, id string) (JobRecord, error) {
	row := d.conn.QueryRowContext(ctx, `
SELECT id, stage, design, tech, COALESCE(version, ''), status,
       COALESCE(error, ''), COALESCE(log_path, ''), COALESCE(script_path, ''),
       created_at, COALESCE(started_at, ''), COALESCE(completed_at, '')
FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns the most recent jobs, newest first.
func (d *DB) ListJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, stage, design, tech, COALESCE(version, ''), status,
       COALESCE(error, ''), COALESCE(log_path, ''), COALESCE(script_path, ''),
       created_at, COALESCE(started_at, ''), COALESCE(completed_at, '')
FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (JobRecord, error) {
	var job JobRecord
	var created, started, completed string
	err := row.Scan(&job.ID, &job.Stage, &job.Design, &job.Tech, &job.Version,
		&job.Status, &job.Error, &job.LogPath, &job.ScriptPath,
		&created, &started, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return JobRecord{}, fmt.Errorf("job not found")
	}
	if err != nil {
		return JobRecord{}, err
	}
	job.CreatedAt, _ = time.Parse(timeLayout, created)
	if started != "" {
		job.StartedAt, _ = time.Parse(timeLayout, started)
	}
	if completed != "" {
		job.CompletedAt, _ = time.Parse(timeLayout, completed)
	}
	return job, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s not updated", id)
	}
	return nil
}
