// Package aggregate computes read-time summaries over persisted budget
// items. No model output is ever consulted here: totals come from stored
// values only, recomputed on every call so readers always see the latest
// persisted state, partial or complete.
package aggregate

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openorcamento/budgetlens/constants"
	"github.com/openorcamento/budgetlens/internal/repository"
)

// CategorySummary is one taxonomy bucket of the summary.
type CategorySummary struct {
	Side      constants.Side     `json:"side"`
	Category  constants.Category `json:"category"`
	Total     float64            `json:"total"`      // EUR, null values add 0
	ItemCount int                `json:"item_count"` // includes null-value items
	Share     float64            `json:"share"`      // percent of the side's total, 0-100
}

// Summary is the aggregated view of one document.
type Summary struct {
	DocumentID   uuid.UUID         `json:"document_id"`
	RevenueTotal float64           `json:"revenue_total"`
	ExpenseTotal float64           `json:"expense_total"`
	ItemCount    int               `json:"item_count"`
	Categories   []CategorySummary `json:"categories"`
}

type Service struct {
	items  repository.ItemRepository
	logger *slog.Logger
}

func NewService(items repository.ItemRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{items: items, logger: logger}
}

// Summarize groups the document's persisted items by side and category.
func (s *Service) Summarize(ctx context.Context, documentID uuid.UUID) (*Summary, error) {
	totals, err := s.items.TotalsByCategory(ctx, documentID)
	if err != nil {
		return nil, err
	}

	out := &Summary{DocumentID: documentID, Categories: make([]CategorySummary, 0, len(totals))}
	for _, t := range totals {
		switch t.Side {
		case constants.SideRevenue:
			out.RevenueTotal += t.Total
		case constants.SideExpense:
			out.ExpenseTotal += t.Total
		}
		out.ItemCount += t.ItemCount
		out.Categories = append(out.Categories, CategorySummary{
			Side:      t.Side,
			Category:  t.Category,
			Total:     t.Total,
			ItemCount: t.ItemCount,
		})
	}

	for i := range out.Categories {
		c := &out.Categories[i]
		sideTotal := out.ExpenseTotal
		if c.Side == constants.SideRevenue {
			sideTotal = out.RevenueTotal
		}
		if sideTotal > 0 {
			c.Share = c.Total / sideTotal * 100
		}
	}

	s.logger.Debug("summary computed",
		"document_id", documentID,
		"revenue_total", out.RevenueTotal,
		"expense_total", out.ExpenseTotal,
		"categories", len(out.Categories),
	)
	return out, nil
}
