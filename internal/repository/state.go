package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
)

type StateRepository interface {
	Load(ctx context.Context) (entity.ServiceState, error)
	Save(ctx context.Context, s entity.ServiceState) error
}

type stateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStateRepository(db *sql.DB, logger *slog.Logger) StateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &stateRepository{db: db, logger: logger}
}

func (r *stateRepository) Load(ctx context.Context) (entity.ServiceState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT running, last_success, last_error, last_error_at, queue_size,
		       last_seen, inflight, max_workers, phase, heartbeat_at
		FROM service_state WHERE id = 1`)
	var s entity.ServiceState
	err := row.Scan(&s.Running, &s.LastSuccess, &s.LastError, &s.LastErrorAt,
		&s.QueueSize, &s.LastSeen, &s.Inflight, &s.MaxWorkers, &s.Phase, &s.HeartbeatAt)
	if err != nil {
		return entity.ServiceState{}, fmt.Errorf("loading service state: %w", err)
	}
	return s, nil
}

func (r *stateRepository) Save(ctx context.Context, s entity.ServiceState) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE service_state SET
			running = ?, last_success = ?, last_error = ?, last_error_at = ?,
			queue_size = ?, last_seen = ?, inflight = ?, max_workers = ?,
			phase = ?, heartbeat_at = ?
		WHERE id = 1`,
		s.Running, s.LastSuccess, s.LastError, s.LastErrorAt,
		s.QueueSize, s.LastSeen, s.Inflight, s.MaxWorkers, s.Phase, s.HeartbeatAt)
	if err != nil {
		return fmt.Errorf("saving service state: %w", err)
	}
	return nil
}
