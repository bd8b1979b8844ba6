// Package repository is the SQLite persistence layer. All repositories share
// one *sql.DB and speak plain SQL; schema migration runs at open time.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrDuplicateHash means a file with the same content hash already exists.
	ErrDuplicateHash = errors.New("repository: duplicate content hash")
	// ErrNotFound is the generic no-rows sentinel.
	ErrNotFound = errors.New("repository: not found")
)

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) &&
		(se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS files (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    sha256        TEXT    NOT NULL UNIQUE,
    original_name TEXT    NOT NULL,
    mime_type     TEXT    NOT NULL DEFAULT '',
    pages         INTEGER NOT NULL DEFAULT 0,
    current_path  TEXT    NOT NULL,
    status        TEXT    NOT NULL DEFAULT 'NEW',
    last_error    TEXT    NOT NULL DEFAULT '',
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    processed_at  TIMESTAMP
);

CREATE TABLE IF NOT EXISTS suppliers (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    ico           TEXT NOT NULL,
    ico_norm      TEXT NOT NULL UNIQUE,
    name          TEXT NOT NULL DEFAULT '',
    dic           TEXT NOT NULL DEFAULT '',
    legal_form    TEXT NOT NULL DEFAULT '',
    address       TEXT NOT NULL DEFAULT '',
    street        TEXT NOT NULL DEFAULT '',
    street_no     TEXT NOT NULL DEFAULT '',
    city          TEXT NOT NULL DEFAULT '',
    zip_code      TEXT NOT NULL DEFAULT '',
    is_vat_payer  BOOLEAN,
    registry_sync TIMESTAMP
);

CREATE TABLE IF NOT EXISTS documents (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id           INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    supplier_id       INTEGER REFERENCES suppliers(id) ON DELETE SET NULL,
    supplier_ico      TEXT NOT NULL DEFAULT '',
    doc_number        TEXT NOT NULL DEFAULT '',
    bank_account      TEXT NOT NULL DEFAULT '',
    issue_date        DATE,
    currency          TEXT NOT NULL DEFAULT 'CZK',
    total_with_vat    REAL,
    total_without_vat REAL,
    total_vat_amount  REAL,
    vat_breakdown     TEXT NOT NULL DEFAULT '[]',
    doc_type          TEXT NOT NULL DEFAULT 'invoice',
    page_from         INTEGER NOT NULL DEFAULT 1,
    page_to           INTEGER NOT NULL DEFAULT 1,
    confidence        REAL NOT NULL DEFAULT 0,
    method            TEXT NOT NULL DEFAULT 'offline',
    text_quality      REAL NOT NULL DEFAULT 0,
    requires_review   BOOLEAN NOT NULL DEFAULT 0,
    review_reasons    TEXT NOT NULL DEFAULT '[]',
    full_text         TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_identity
    ON documents (supplier_ico, doc_number, issue_date);
CREATE INDEX IF NOT EXISTS idx_documents_file ON documents (file_id);

CREATE TABLE IF NOT EXISTS items (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    line_no     INTEGER NOT NULL,
    name        TEXT NOT NULL,
    quantity    REAL NOT NULL DEFAULT 1,
    unit_net    REAL NOT NULL DEFAULT 0,
    unit_gross  REAL NOT NULL DEFAULT 0,
    line_net    REAL NOT NULL DEFAULT 0,
    line_gross  REAL NOT NULL DEFAULT 0,
    vat_rate    REAL NOT NULL DEFAULT 21,
    vat_amount  REAL NOT NULL DEFAULT 0,
    vat_code    TEXT NOT NULL DEFAULT 'STANDARD',
    item_code   TEXT NOT NULL DEFAULT '',
    ean         TEXT NOT NULL DEFAULT '',
    UNIQUE (document_id, line_no)
);

CREATE TABLE IF NOT EXISTS document_page_audit (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id    INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    file_id        INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    page_no        INTEGER NOT NULL,
    chosen_mode    TEXT NOT NULL,
    chosen_score   REAL NOT NULL DEFAULT 0,
    embedded_score REAL NOT NULL DEFAULT 0,
    ocr_score      REAL NOT NULL DEFAULT 0,
    embedded_len   INTEGER NOT NULL DEFAULT 0,
    ocr_len        INTEGER NOT NULL DEFAULT 0,
    ocr_conf       REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS import_jobs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    path        TEXT NOT NULL,
    sha256      TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'QUEUED',
    error       TEXT NOT NULL DEFAULT '',
    trace_id    TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    started_at  TIMESTAMP,
    finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_import_jobs_status ON import_jobs (status, created_at);

CREATE TABLE IF NOT EXISTS service_state (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    running      BOOLEAN NOT NULL DEFAULT 0,
    last_success TIMESTAMP,
    last_error   TEXT NOT NULL DEFAULT '',
    last_error_at TIMESTAMP,
    queue_size   INTEGER NOT NULL DEFAULT 0,
    last_seen    TIMESTAMP,
    inflight     INTEGER NOT NULL DEFAULT 0,
    max_workers  INTEGER NOT NULL DEFAULT 0,
    phase        TEXT NOT NULL DEFAULT 'idle',
    heartbeat_at TIMESTAMP
);
INSERT OR IGNORE INTO service_state (id) VALUES (1);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    document_id UNINDEXED,
    supplier_name,
    doc_number,
    content
);
`

// Open opens (creating if needed) the SQLite database and applies the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return db, nil
}
