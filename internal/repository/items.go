package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openorcamento/budgetlens/constants"
	"github.com/openorcamento/budgetlens/internal/common"
	"github.com/openorcamento/budgetlens/internal/entity"
)

// Sort keys for ListByCategory.
const (
	SortByValue       = "value"       // value descending, nulls last
	SortByPage        = "page"        // page number ascending
	SortByDescription = "description" // original description, lexicographic
)

// CategoryTotal is one aggregation row: totals for a (side, category)
// pair within a document.
type CategoryTotal struct {
	Side      constants.Side
	Category  constants.Category
	Total     float64 // sum of non-null values, EUR
	ItemCount int     // includes null-value items
}

type ItemRepository interface {
	// InsertBatch appends validated items. The orchestrator calls this
	// per section so partial progress survives a crash.
	InsertBatch(ctx context.Context, items []*entity.BudgetItem) error
	// ReplaceForDocument swaps the document's whole item set atomically.
	ReplaceForDocument(ctx context.Context, documentID uuid.UUID, items []*entity.BudgetItem) error
	Get(ctx context.Context, id uuid.UUID) (*entity.BudgetItem, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.BudgetItem, error)
	ListByCategory(ctx context.Context, documentID uuid.UUID, category string, sortKey string) ([]*entity.BudgetItem, error)
	// TotalsByCategory groups persisted items by side and category.
	// Null values count toward ItemCount but add 0 to Total.
	TotalsByCategory(ctx context.Context, documentID uuid.UUID) ([]CategoryTotal, error)
}

type itemRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewItemRepository(db *sql.DB, log *slog.Logger) ItemRepository {
	return &itemRepo{db: db, log: log}
}

const insertItemSQL = `INSERT INTO budget_items
	(id, document_id, year, side, category, description_original, value, unit, page_number, evidence_text, explanation, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (r *itemRepo) InsertBatch(ctx context.Context, items []*entity.BudgetItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err)
	}
	defer tx.Rollback()

	if err := insertItems(ctx, tx, items); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbErr(err)
	}
	r.log.Info("budget items inserted", "document_id", items[0].DocumentID, "items", len(items))
	return nil
}

func (r *itemRepo) ReplaceForDocument(ctx context.Context, documentID uuid.UUID, items []*entity.BudgetItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM budget_items WHERE document_id = $1`, documentID.String()); err != nil {
		return dbErr(err)
	}
	if err := insertItems(ctx, tx, items); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbErr(err)
	}
	r.log.Info("budget items replaced", "document_id", documentID, "items", len(items))
	return nil
}

func insertItems(ctx context.Context, tx *sql.Tx, items []*entity.BudgetItem) error {
	now := time.Now().UTC()
	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		var value sql.NullFloat64
		if it.Value != nil {
			value = sql.NullFloat64{Float64: *it.Value, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, insertItemSQL,
			it.ID.String(), it.DocumentID.String(), it.Year,
			string(it.Side), string(it.Category), it.DescriptionOriginal,
			value, string(it.Unit), it.PageNumber, it.EvidenceText, it.Explanation, it.CreatedAt,
		); err != nil {
			return dbErr(err)
		}
	}
	return nil
}

const selectItemSQL = `SELECT id, document_id, year, side, category, description_original,
	value, unit, page_number, evidence_text, explanation, created_at FROM budget_items`

func (r *itemRepo) Get(ctx context.Context, id uuid.UUID) (*entity.BudgetItem, error) {
	row := r.db.QueryRowContext(ctx, selectItemSQL+` WHERE id = $1`, id.String())
	return scanItem(row)
}

func (r *itemRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.BudgetItem, error) {
	rows, err := r.db.QueryContext(ctx,
		selectItemSQL+` WHERE document_id = $1 ORDER BY page_number, id`, documentID.String())
	if err != nil {
		return nil, dbErr(err)
	}
	return collectItems(rows)
}

func (r *itemRepo) ListByCategory(ctx context.Context, documentID uuid.UUID, category string, sortKey string) ([]*entity.BudgetItem, error) {
	var order string
	switch sortKey {
	case SortByPage:
		order = `page_number ASC, id`
	case SortByDescription:
		order = `description_original ASC, id`
	case SortByValue, "":
		// (value IS NULL) sorts null values after real ones in both
		// engines.
		order = `(value IS NULL) ASC, value DESC, id`
	default:
		return nil, common.WrapError(common.ErrInvalidInput, "unknown sort key "+sortKey)
	}

	rows, err := r.db.QueryContext(ctx,
		selectItemSQL+` WHERE document_id = $1 AND category = $2 ORDER BY `+order,
		documentID.String(), category)
	if err != nil {
		return nil, dbErr(err)
	}
	return collectItems(rows)
}

func (r *itemRepo) TotalsByCategory(ctx context.Context, documentID uuid.UUID) ([]CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT side, category, COALESCE(SUM(COALESCE(value, 0)), 0), COUNT(*)
		 FROM budget_items WHERE document_id = $1
		 GROUP BY side, category ORDER BY side, category`, documentID.String())
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var (
			t              CategoryTotal
			side, category string
		)
		if err := rows.Scan(&side, &category, &t.Total, &t.ItemCount); err != nil {
			return nil, dbErr(err)
		}
		t.Side = constants.Side(side)
		t.Category = constants.Category(category)
		out = append(out, t)
	}
	return out, rows.Err()
}

func collectItems(rows *sql.Rows) ([]*entity.BudgetItem, error) {
	defer rows.Close()
	var out []*entity.BudgetItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanItem(row rowScanner) (*entity.BudgetItem, error) {
	var (
		it                          entity.BudgetItem
		id, docID, side, cat, unit  string
		value                       sql.NullFloat64
	)
	err := row.Scan(&id, &docID, &it.Year, &side, &cat, &it.DescriptionOriginal,
		&value, &unit, &it.PageNumber, &it.EvidenceText, &it.Explanation, &it.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, dbErr(err)
	}
	if it.ID, err = uuid.Parse(id); err != nil {
		return nil, dbErr(err)
	}
	if it.DocumentID, err = uuid.Parse(docID); err != nil {
		return nil, dbErr(err)
	}
	it.Side = constants.Side(side)
	it.Category = constants.Category(cat)
	it.Unit = constants.Unit(unit)
	if value.Valid {
		v := value.Float64
		it.Value = &v
	}
	return &it, nil
}
