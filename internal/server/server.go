// Package server is the HTTP surface: thin glue over the stores, the
// aggregator and the job queue. All extraction faults surface
// asynchronously through job status, never through these handlers.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openorcamento/budgetlens/internal/aggregate"
	"github.com/openorcamento/budgetlens/internal/async"
	"github.com/openorcamento/budgetlens/internal/export"
	"github.com/openorcamento/budgetlens/internal/repository"
	"github.com/openorcamento/budgetlens/internal/storage"
)

type Server struct {
	logger *slog.Logger

	store      storage.BlobStore
	docs       repository.DocumentRepository
	pages      repository.PageRepository
	items      repository.ItemRepository
	jobs       repository.JobRepository
	aggregator *aggregate.Service
	exporter   *export.Service
	queue      async.Queue

	maxUploadBytes int64
}

func New(
	logger *slog.Logger,
	store storage.BlobStore,
	docs repository.DocumentRepository,
	pages repository.PageRepository,
	items repository.ItemRepository,
	jobs repository.JobRepository,
	aggregator *aggregate.Service,
	exporter *export.Service,
	queue async.Queue,
	maxUploadBytes int64,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 100 << 20
	}
	return &Server{
		logger:         logger,
		store:          store,
		docs:           docs,
		pages:          pages,
		items:          items,
		jobs:           jobs,
		aggregator:     aggregator,
		exporter:       exporter,
		queue:          queue,
		maxUploadBytes: maxUploadBytes,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/upload", s.handleUpload)
			r.Get("/", s.handleListDocuments)

			r.Route("/{documentID}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Get("/summary", s.handleSummary)
				r.Get("/categories/{category}", s.handleItemsByCategory)
				r.Get("/pdf", s.handleServePDF)
				r.Get("/pages/{pageNumber}", s.handleGetPage)
				r.Get("/import-jobs", s.handleJobHistory)
				r.Get("/export", s.handleExport)
				r.Post("/reimport", s.handleReimport)
				r.Patch("/archive", s.handleArchive)
				r.Delete("/purge", s.handlePurge)
			})
		})
		r.Get("/items/{itemID}", s.handleGetItem)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
