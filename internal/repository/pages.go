package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openorcamento/budgetlens/internal/common"
	"github.com/openorcamento/budgetlens/internal/entity"
	"github.com/openorcamento/budgetlens/internal/extract"
)

type PageRepository interface {
	// ReplaceForDocument swaps the document's page set in one
	// transaction. Re-imports re-extract text, so prior pages go too.
	ReplaceForDocument(ctx context.Context, documentID uuid.UUID, pages []extract.PageText) ([]*entity.Page, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.Page, error)
	GetByNumber(ctx context.Context, documentID uuid.UUID, pageNumber int) (*entity.Page, error)
}

type pageRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewPageRepository(db *sql.DB, log *slog.Logger) PageRepository {
	return &pageRepo{db: db, log: log}
}

func (r *pageRepo) ReplaceForDocument(ctx context.Context, documentID uuid.UUID, pages []extract.PageText) ([]*entity.Page, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbErr(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE document_id = $1`, documentID.String()); err != nil {
		return nil, dbErr(err)
	}

	out := make([]*entity.Page, 0, len(pages))
	for _, p := range pages {
		row := &entity.Page{
			ID:         uuid.New(),
			DocumentID: documentID,
			PageNumber: p.Number,
			TextRaw:    p.Text,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pages (id, document_id, page_number, text_raw) VALUES ($1, $2, $3, $4)`,
			row.ID.String(), documentID.String(), row.PageNumber, row.TextRaw,
		); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, row)
	}

	if err := tx.Commit(); err != nil {
		return nil, dbErr(err)
	}
	r.log.Info("pages replaced", "document_id", documentID, "pages", len(out))
	return out, nil
}

func (r *pageRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.Page, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, page_number, text_raw
		 FROM pages WHERE document_id = $1 ORDER BY page_number`, documentID.String())
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []*entity.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pageRepo) GetByNumber(ctx context.Context, documentID uuid.UUID, pageNumber int) (*entity.Page, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, document_id, page_number, text_raw
		 FROM pages WHERE document_id = $1 AND page_number = $2`,
		documentID.String(), pageNumber)
	return scanPage(row)
}

func scanPage(row rowScanner) (*entity.Page, error) {
	var (
		p         entity.Page
		id, docID string
	)
	err := row.Scan(&id, &docID, &p.PageNumber, &p.TextRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, dbErr(err)
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, dbErr(err)
	}
	if p.DocumentID, err = uuid.Parse(docID); err != nil {
		return nil, dbErr(err)
	}
	return &p, nil
}
