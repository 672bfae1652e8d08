package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openorcamento/budgetlens/internal/common"
	"github.com/openorcamento/budgetlens/internal/entity"
)

type DocumentRepository interface {
	Create(ctx context.Context, year int, filename, storageRef string) (*entity.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	List(ctx context.Context) ([]*entity.Document, error)
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
	// ResetExtraction deletes all sections and budget items for the
	// document in one transaction, ahead of a re-import.
	ResetExtraction(ctx context.Context, id uuid.UUID) error
	// Purge removes the document and everything it owns.
	Purge(ctx context.Context, id uuid.UUID) error
}

type documentRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewDocumentRepository(db *sql.DB, log *slog.Logger) DocumentRepository {
	return &documentRepo{db: db, log: log}
}

func (r *documentRepo) Create(ctx context.Context, year int, filename, storageRef string) (*entity.Document, error) {
	doc := &entity.Document{
		ID:         uuid.New(),
		Year:       year,
		Filename:   filename,
		StorageRef: storageRef,
		UploadedAt: time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, year, filename, storage_ref, archived, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID.String(), doc.Year, doc.Filename, doc.StorageRef, false, doc.UploadedAt,
	)
	if err != nil {
		r.log.Error("document create failed", "filename", filename, "err", err)
		return nil, dbErr(err)
	}
	r.log.Info("document created", "document_id", doc.ID, "year", year, "filename", filename)
	return doc, nil
}

func (r *documentRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, year, filename, storage_ref, archived, uploaded_at
		 FROM documents WHERE id = $1`, id.String())
	return scanDocument(row)
}

func (r *documentRepo) List(ctx context.Context) ([]*entity.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, year, filename, storage_ref, archived, uploaded_at
		 FROM documents ORDER BY year DESC, uploaded_at DESC, id`)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *documentRepo) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET archived = $1 WHERE id = $2`, archived, id.String())
	if err != nil {
		return dbErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	r.log.Info("document archived flag set", "document_id", id, "archived", archived)
	return nil
}

func (r *documentRepo) ResetExtraction(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM budget_items WHERE document_id = $1`,
		`DELETE FROM sections WHERE document_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id.String()); err != nil {
			return dbErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return dbErr(err)
	}
	r.log.Info("document extraction reset", "document_id", id)
	return nil
}

func (r *documentRepo) Purge(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err)
	}
	defer tx.Rollback()

	// Children first; the schema has no ON DELETE CASCADE so the order
	// matters.
	for _, stmt := range []string{
		`DELETE FROM budget_items WHERE document_id = $1`,
		`DELETE FROM sections WHERE document_id = $1`,
		`DELETE FROM pages WHERE document_id = $1`,
		`DELETE FROM import_jobs WHERE document_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id.String()); err != nil {
			return dbErr(err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id.String())
	if err != nil {
		return dbErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return dbErr(err)
	}
	r.log.Warn("document purged", "document_id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*entity.Document, error) {
	var (
		doc entity.Document
		id  string
	)
	err := row.Scan(&id, &doc.Year, &doc.Filename, &doc.StorageRef, &doc.Archived, &doc.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, dbErr(err)
	}
	doc.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: bad document id %q: %v", common.ErrDatabase, id, err)
	}
	return &doc, nil
}
