package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/openorcamento/budgetlens/internal/aggregate"
	"github.com/openorcamento/budgetlens/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes
// for document exports.
type Service struct {
	items      repository.ItemRepository
	aggregator *aggregate.Service
	logger     *slog.Logger
}

func NewService(items repository.ItemRepository, aggregator *aggregate.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{items: items, aggregator: aggregator, logger: logger}
}

// ExportDocumentXLSX returns a workbook with two sheets: every persisted
// budget item, and the per-category summary.
func (s *Service) ExportDocumentXLSX(ctx context.Context, documentID uuid.UUID) ([]byte, error) {
	start := time.Now()

	items, err := s.items.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	summary, err := s.aggregator.Summarize(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}

	f := excelize.NewFile()

	const itemsSheet = "Budget Items"
	if index, _ := f.GetSheetIndex(itemsSheet); index == -1 {
		if _, err := f.NewSheet(itemsSheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(itemsSheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Side",
		"Category",
		"Description",
		"Value (EUR)",
		"Unit",
		"Page",
		"Evidence",
		"Explanation",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemsSheet, cell, h)
	}

	row := 2
	for _, it := range items {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(itemsSheet, cell, v)
		}
		write(1, string(it.Side))
		write(2, string(it.Category))
		write(3, it.DescriptionOriginal)
		if it.Value != nil {
			write(4, *it.Value)
		} else {
			write(4, "")
		}
		write(5, string(it.Unit))
		write(6, it.PageNumber)
		write(7, it.EvidenceText)
		write(8, it.Explanation)
		row++
	}

	const summarySheet = "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	sumHeaders := []string{"Side", "Category", "Total (EUR)", "Items", "Share %"}
	for i, h := range sumHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(summarySheet, cell, h)
	}
	row = 2
	for _, c := range summary.Categories {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(summarySheet, cell, v)
		}
		write(1, string(c.Side))
		write(2, string(c.Category))
		write(3, c.Total)
		write(4, c.ItemCount)
		write(5, c.Share)
		row++
	}
	totalsRow := func(label string, v float64) {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(summarySheet, cell, label)
		cell, _ = excelize.CoordinatesToCellName(3, row)
		_ = f.SetCellValue(summarySheet, cell, v)
		row++
	}
	row++ // blank spacer
	totalsRow("Revenue total", summary.RevenueTotal)
	totalsRow("Expense total", summary.ExpenseTotal)

	// Drop the default sheet excelize creates.
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_id", documentID,
		"items", len(items),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
