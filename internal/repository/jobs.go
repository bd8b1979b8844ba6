package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/karelmartinek-a11y/kajovospend/constants"
	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
)

type JobRepository interface {
	// Enqueue creates a QUEUED job for a path unless one is already queued or
	// running for it. Returns the job and whether a new one was created.
	Enqueue(ctx context.Context, path string) (*entity.Job, bool, error)
	// ClaimNext atomically flips the oldest QUEUED job to RUNNING and returns
	// it, or ErrNotFound when the queue is empty.
	ClaimNext(ctx context.Context) (*entity.Job, error)
	// Finish records a terminal status exactly once; later calls on the same
	// job are no-ops.
	Finish(ctx context.Context, id int64, status constants.JobStatus, jobErr string) error
	SetSHA256(ctx context.Context, id int64, sha string) error
	QueueSize(ctx context.Context) (int, error)
	// FailStuck marks RUNNING jobs older than the timeout as ERROR and
	// returns how many were swept.
	FailStuck(ctx context.Context, olderThan time.Duration) (int, error)
}

type jobRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewJobRepository(db *sql.DB, logger *slog.Logger) JobRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &jobRepository{db: db, logger: logger}
}

func (r *jobRepository) Enqueue(ctx context.Context, path string) (*entity.Job, bool, error) {
	var existingID int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM import_jobs
		WHERE path = ? AND status IN ('QUEUED', 'RUNNING')
		LIMIT 1`, path).Scan(&existingID)
	switch {
	case err == nil:
		return &entity.Job{ID: existingID, Path: path}, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("checking pending jobs: %w", err)
	}

	traceID := uuid.NewString()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO import_jobs (path, status, trace_id) VALUES (?, 'QUEUED', ?)`,
		path, traceID)
	if err != nil {
		return nil, false, fmt.Errorf("enqueueing %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, err
	}
	return &entity.Job{ID: id, Path: path, Status: constants.JobStatusQueued, TraceID: traceID}, true, nil
}

func (r *jobRepository) ClaimNext(ctx context.Context) (*entity.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting claim tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, path, sha256, trace_id, created_at
		FROM import_jobs WHERE status = 'QUEUED'
		ORDER BY created_at, id LIMIT 1`)
	var j entity.Job
	err = row.Scan(&j.ID, &j.Path, &j.SHA256, &j.TraceID, &j.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning queued job: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE import_jobs SET status = 'RUNNING', started_at = ?
		WHERE id = ? AND status = 'QUEUED'`, now, j.ID)
	if err != nil {
		return nil, fmt.Errorf("claiming job %d: %w", j.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	j.Status = constants.JobStatusRunning
	j.StartedAt = &now
	return &j, nil
}

func (r *jobRepository) Finish(ctx context.Context, id int64, status constants.JobStatus, jobErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE import_jobs SET status = ?, error = ?, finished_at = ?
		WHERE id = ? AND status = 'RUNNING'`,
		string(status), jobErr, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing job %d: %w", id, err)
	}
	return nil
}

func (r *jobRepository) SetSHA256(ctx context.Context, id int64, sha string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE import_jobs SET sha256 = ? WHERE id = ?`, sha, id)
	if err != nil {
		return fmt.Errorf("setting job sha256: %w", err)
	}
	return nil
}

func (r *jobRepository) QueueSize(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM import_jobs WHERE status = 'QUEUED'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting queue: %w", err)
	}
	return n, nil
}

func (r *jobRepository) FailStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_jobs SET status = 'ERROR', error = 'stuck_timeout', finished_at = ?
		WHERE status = 'RUNNING' AND started_at < ?`,
		time.Now().UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping stuck jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn("stuck jobs swept", "count", n, "older_than", olderThan.String())
	}
	return int(n), nil
}
