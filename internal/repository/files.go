package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karelmartinek-a11y/kajovospend/constants"
	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
)

type FileRepository interface {
	// Insert creates a SourceFile row. A known sha256 returns ErrDuplicateHash
	// and creates nothing.
	Insert(ctx context.Context, f *entity.SourceFile) (int64, error)
	FindBySHA256(ctx context.Context, sha string) (*entity.SourceFile, error)
	// Finish records the terminal status, current path and error of one run.
	Finish(ctx context.Context, id int64, status constants.FileStatus, currentPath, lastErr string) error
	UpdatePages(ctx context.Context, id int64, pages int) error
}

type fileRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewFileRepository(db *sql.DB, logger *slog.Logger) FileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &fileRepository{db: db, logger: logger}
}

func (r *fileRepository) Insert(ctx context.Context, f *entity.SourceFile) (int64, error) {
	// no pre-check: the UNIQUE index on sha256 is the duplicate guard, so
	// two concurrent inserts of the same content race safely here
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO files (sha256, original_name, mime_type, pages, current_path, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.SHA256, f.OriginalName, f.MimeType, f.Pages, f.CurrentPath, string(f.Status))
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("sha256 %s: %w", f.SHA256, ErrDuplicateHash)
	}
	if err != nil {
		return 0, fmt.Errorf("inserting file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	f.ID = id
	return id, nil
}

func (r *fileRepository) FindBySHA256(ctx context.Context, sha string) (*entity.SourceFile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, sha256, original_name, mime_type, pages, current_path, status, last_error, created_at, processed_at
		FROM files WHERE sha256 = ?`, sha)
	return scanFile(row)
}

func (r *fileRepository) Finish(ctx context.Context, id int64, status constants.FileStatus, currentPath, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE files SET status = ?, current_path = ?, last_error = ?, processed_at = ?
		WHERE id = ?`,
		string(status), currentPath, lastErr, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing file %d: %w", id, err)
	}
	return nil
}

func (r *fileRepository) UpdatePages(ctx context.Context, id int64, pages int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE files SET pages = ? WHERE id = ?`, pages, id)
	if err != nil {
		return fmt.Errorf("updating file pages: %w", err)
	}
	return nil
}

func scanFile(row *sql.Row) (*entity.SourceFile, error) {
	var f entity.SourceFile
	var status string
	err := row.Scan(&f.ID, &f.SHA256, &f.OriginalName, &f.MimeType, &f.Pages,
		&f.CurrentPath, &status, &f.LastError, &f.CreatedAt, &f.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning file: %w", err)
	}
	f.Status = constants.FileStatus(status)
	return &f, nil
}
