package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openorcamento/budgetlens/internal/entity"
	"github.com/openorcamento/budgetlens/internal/sections"
)

type SectionRepository interface {
	// InsertForDocument persists the detected outline. Prior sections are
	// cleared beforehand by DocumentRepository.ResetExtraction.
	InsertForDocument(ctx context.Context, documentID uuid.UUID, detected []sections.Section) ([]*entity.Section, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.Section, error)
}

type sectionRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSectionRepository(db *sql.DB, log *slog.Logger) SectionRepository {
	return &sectionRepo{db: db, log: log}
}

func (r *sectionRepo) InsertForDocument(ctx context.Context, documentID uuid.UUID, detected []sections.Section) ([]*entity.Section, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbErr(err)
	}
	defer tx.Rollback()

	out := make([]*entity.Section, 0, len(detected))
	for _, s := range detected {
		row := &entity.Section{
			ID:         uuid.New(),
			DocumentID: documentID,
			TitlePath:  s.TitlePath(),
			PageStart:  s.PageStart,
			PageEnd:    s.PageEnd,
			Level:      s.Level,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sections (id, document_id, title_path, page_start, page_end, level)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			row.ID.String(), documentID.String(), row.TitlePath, row.PageStart, row.PageEnd, row.Level,
		); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, row)
	}

	if err := tx.Commit(); err != nil {
		return nil, dbErr(err)
	}
	r.log.Info("sections persisted", "document_id", documentID, "sections", len(out))
	return out, nil
}

func (r *sectionRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.Section, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, title_path, page_start, page_end, level
		 FROM sections WHERE document_id = $1 ORDER BY page_start, id`, documentID.String())
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []*entity.Section
	for rows.Next() {
		var (
			s         entity.Section
			id, docID string
		)
		if err := rows.Scan(&id, &docID, &s.TitlePath, &s.PageStart, &s.PageEnd, &s.Level); err != nil {
			return nil, dbErr(err)
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, dbErr(err)
		}
		if s.DocumentID, err = uuid.Parse(docID); err != nil {
			return nil, dbErr(err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
