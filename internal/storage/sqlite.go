// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docanalysis/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS contents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		source_path TEXT NOT NULL,
		path TEXT NOT NULL,
		procedures_completed TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_contents_created_at ON contents(created_at);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		content_id TEXT NOT NULL,
		procedure TEXT NOT NULL,
		status TEXT NOT NULL,
		percent_complete INTEGER NOT NULL DEFAULT 0,
		params TEXT,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		FOREIGN KEY (content_id) REFERENCES contents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_content_id ON jobs(content_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

	CREATE TABLE IF NOT EXISTS job_reports (
		job_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (job_id, seq),
		FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateContent inserts a content record with no completed procedures.
func (s *SQLiteStorage) CreateContent(ctx context.Context, c *models.ContentRecord) error {
	procs, err := c.Procedures.Encode()
	if err != nil {
		return err
	}

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contents (id, name, source_path, path, procedures_completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.SourcePath, c.Path, procs, c.CreatedAt, c.UpdatedAt,
	)
	if isConstraint(err) {
		return fmt.Errorf("content %s (%s): %w", c.ID, c.Name, ErrExists)
	}
	return err
}

// GetContent returns a content record by ID.
func (s *SQLiteStorage) GetContent(ctx context.Context, id string) (*models.ContentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_path, path, procedures_completed, created_at, updated_at
		 FROM contents WHERE id = ?`, id,
	)
	c, err := scanContent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	return c, err
}

// ListContent returns content records, newest first, with offset and limit.
func (s *SQLiteStorage) ListContent(ctx context.Context, offset, limit int) ([]*models.ContentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, source_path, path, procedures_completed, created_at, updated_at
		 FROM contents ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ContentRecord
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContent(row scanner) (*models.ContentRecord, error) {
	var c models.ContentRecord
	var procs string
	if err := row.Scan(&c.ID, &c.Name, &c.SourcePath, &c.Path, &procs, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	p, err := models.DecodeProcedureResults(procs)
	if err != nil {
		return nil, err
	}
	c.Procedures = p
	return &c, nil
}

// CreateJob inserts a job. Status defaults to queued.
func (s *SQLiteStorage) CreateJob(ctx context.Context, job *models.Job) error {
	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	job.CreatedAt = time.Now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, content_id, procedure, status, percent_complete, params, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ContentID, job.Procedure, job.Status, job.PercentComplete, string(paramsJSON), job.CreatedAt,
	)
	if isConstraint(err) {
		return fmt.Errorf("job %s for content %s: %w", job.ID, job.ContentID, ErrNotFound)
	}
	return err
}

// GetJob returns a job by ID including its report log.
func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_id, procedure, status, percent_complete, params, error, created_at, started_at, completed_at
		 FROM jobs WHERE id = ?`, id,
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT message FROM job_reports WHERE job_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, err
		}
		job.Reports = append(job.Reports, msg)
	}
	return job, rows.Err()
}

// ListJobs returns the jobs of a content record, oldest first. Reports are not loaded.
func (s *SQLiteStorage) ListJobs(ctx context.Context, contentID string) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content_id, procedure, status, percent_complete, params, error, created_at, started_at, completed_at
		 FROM jobs WHERE content_id = ? ORDER BY created_at, id`, contentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row scanner) (*models.Job, error) {
	var job models.Job
	var params sql.NullString
	var started, completed sql.NullTime
	if err := row.Scan(&job.ID, &job.ContentID, &job.Procedure, &job.Status, &job.PercentComplete,
		&params, &job.Error, &job.CreatedAt, &started, &completed); err != nil {
		return nil, err
	}
	if params.Valid && params.String != "" && params.String != "null" {
		if err := json.Unmarshal([]byte(params.String), &job.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

// StartJob moves a queued job to running.
func (s *SQLiteStorage) StartJob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		models.JobStatusRunning, time.Now(), id, models.JobStatusQueued,
	)
	if err != nil {
		return false, err
	}
	return s.applied(ctx, res, id)
}

// SetJobProgress raises the completion percentage of a running job. Lower
// values than the stored one are ignored.
func (s *SQLiteStorage) SetJobProgress(ctx context.Context, id string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET percent_complete = MAX(percent_complete, ?) WHERE id = ? AND status = ?`,
		percent, id, models.JobStatusRunning,
	)
	if err != nil {
		return err
	}
	_, err = s.applied(ctx, res, id)
	return err
}

// AppendJobReport appends a line to the job's report log.
func (s *SQLiteStorage) AppendJobReport(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_reports (job_id, seq, message, created_at)
		 SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ? FROM job_reports WHERE job_id = ?`,
		id, message, time.Now(), id,
	)
	if isConstraint(err) {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return err
}

// CompleteJob writes fragment into the content record's procedure results
// and marks the job complete, atomically.
func (s *SQLiteStorage) CompleteJob(ctx context.Context, id string, fragment models.ResultFragment) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var contentID string
	var status models.JobStatus
	err = tx.QueryRowContext(ctx, `SELECT content_id, status FROM jobs WHERE id = ?`, id).Scan(&contentID, &status)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, err
	}
	if status.Terminal() {
		return false, nil
	}

	var procs string
	err = tx.QueryRowContext(ctx, `SELECT procedures_completed FROM contents WHERE id = ?`, contentID).Scan(&procs)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("content %s: %w", contentID, ErrNotFound)
	}
	if err != nil {
		return false, err
	}
	results, err := models.DecodeProcedureResults(procs)
	if err != nil {
		return false, err
	}
	if err := results.Set(fragment); err != nil {
		return false, err
	}
	encoded, err := results.Encode()
	if err != nil {
		return false, err
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE contents SET procedures_completed = ?, updated_at = ? WHERE id = ?`,
		encoded, now, contentID,
	); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, percent_complete = 100, completed_at = ? WHERE id = ?`,
		models.JobStatusComplete, now, id,
	); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// FailJob marks a non-terminal job as errored with message.
func (s *SQLiteStorage) FailJob(ctx context.Context, id, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status IN (?, ?)`,
		models.JobStatusError, message, time.Now(), id, models.JobStatusQueued, models.JobStatusRunning,
	)
	if err != nil {
		return false, err
	}
	return s.applied(ctx, res, id)
}

// applied reports whether res changed a row, distinguishing a missing job
// from one whose state made the update a no-op.
func (s *SQLiteStorage) applied(ctx context.Context, res sql.Result, id string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return false, err
}

// CountContent returns the total number of content records.
func (s *SQLiteStorage) CountContent(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contents`).Scan(&count)
	return count, err
}

// CountJobs returns the number of jobs with status, or all jobs when status is empty.
func (s *SQLiteStorage) CountJobs(ctx context.Context, status models.JobStatus) (int64, error) {
	var count int64
	var err error
	if status == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = ?`, status).Scan(&count)
	}
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
