package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DDL is written to run unchanged on PostgreSQL and SQLite: TEXT ids,
// TIMESTAMP columns, app-side defaults and explicit cascade deletes in
// the stores instead of engine-specific clauses.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id          TEXT PRIMARY KEY,
		year        INTEGER NOT NULL,
		filename    TEXT NOT NULL,
		storage_ref TEXT NOT NULL,
		archived    BOOLEAN NOT NULL,
		uploaded_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pages (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		page_number INTEGER NOT NULL,
		text_raw    TEXT NOT NULL,
		UNIQUE (document_id, page_number)
	)`,
	`CREATE TABLE IF NOT EXISTS sections (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		title_path  TEXT NOT NULL,
		page_start  INTEGER NOT NULL,
		page_end    INTEGER NOT NULL,
		level       INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS budget_items (
		id                   TEXT PRIMARY KEY,
		document_id          TEXT NOT NULL REFERENCES documents(id),
		year                 INTEGER NOT NULL,
		side                 TEXT NOT NULL,
		category             TEXT NOT NULL,
		description_original TEXT NOT NULL,
		value                DOUBLE PRECISION,
		unit                 TEXT NOT NULL,
		page_number          INTEGER NOT NULL,
		evidence_text        TEXT NOT NULL,
		explanation          TEXT NOT NULL,
		created_at           TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS import_jobs (
		id            TEXT PRIMARY KEY,
		document_id   TEXT NOT NULL REFERENCES documents(id),
		status        TEXT NOT NULL,
		progress      INTEGER NOT NULL,
		error_message TEXT,
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pages_doc ON pages (document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sections_doc ON sections (document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_items_doc_side_cat ON budget_items (document_id, side, category)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_doc ON import_jobs (document_id)`,
	// The single-active-job invariant lives in the schema, not just in the
	// insert guard: under READ COMMITTED two concurrent creates can each
	// pass a NOT EXISTS check, but only one can satisfy this index.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_one_active ON import_jobs (document_id)
		WHERE status IN ('PENDING', 'RUNNING')`,
}

// Migrate applies the schema. Statements are idempotent so calling this
// at every startup is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
