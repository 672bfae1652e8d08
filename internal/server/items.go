package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openorcamento/budgetlens/constants"
	"github.com/openorcamento/budgetlens/internal/common"
	"github.com/openorcamento/budgetlens/internal/entity"
	"github.com/openorcamento/budgetlens/internal/repository"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.aggregator.Summarize(r.Context(), doc.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleItemsByCategory(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	category := chi.URLParam(r, "category")
	if !constants.ValidCategory(constants.SideRevenue, category) &&
		!constants.ValidCategory(constants.SideExpense, category) {
		s.writeError(w, r, badRequest("unknown category "+category))
		return
	}

	sortKey := r.URL.Query().Get("sort_by")
	switch sortKey {
	case "", "value":
		sortKey = repository.SortByValue
	case "page_number", "page":
		sortKey = repository.SortByPage
	case "description":
		sortKey = repository.SortByDescription
	default:
		s.writeError(w, r, badRequest("unknown sort_by "+sortKey))
		return
	}

	items, err := s.items.ListByCategory(r.Context(), doc.ID, category, sortKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*entity.BudgetItem{}
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "itemID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.items.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// An archived parent hides its items.
	doc, err := s.docs.Get(r.Context(), item.DocumentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if doc.Archived {
		s.writeError(w, r, common.ErrNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	xlsx, err := s.exporter.ExportDocumentXLSX(r.Context(), doc.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="budget-`+strconv.Itoa(doc.Year)+`.xlsx"`)
	_, _ = w.Write(xlsx)
}
