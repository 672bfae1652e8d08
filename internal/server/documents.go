package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openorcamento/budgetlens/internal/async"
	"github.com/openorcamento/budgetlens/internal/common"
	"github.com/openorcamento/budgetlens/internal/entity"
)

func parseID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("invalid id " + raw)
	}
	return id, nil
}

// loadDocument fetches a document for a read path. Archived documents
// are invisible to readers: they 404 exactly like missing ones.
func (s *Server) loadDocument(r *http.Request) (*entity.Document, error) {
	id, err := parseID(r, "documentID")
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if doc.Archived {
		return nil, common.ErrNotFound
	}
	return doc, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 1900 || year > 3000 {
		s.writeError(w, r, badRequest("year query parameter is required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, badRequest("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	ref, err := s.store.WriteBytes(file)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("store upload: %w", err))
		return
	}

	doc, err := s.docs.Create(r.Context(), year, header.Filename, ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.jobs.Create(r.Context(), doc.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = s.queue.Enqueue(r.Context(), async.Job{
		JobID:       job.ID,
		DocumentID:  doc.ID,
		SubmittedAt: time.Now(),
	})

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"document": doc,
		"job":      job,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"

	docs, err := s.docs.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]*entity.Document, 0, len(docs))
	for _, d := range docs {
		if d.Archived && !includeArchived {
			continue
		}
		out = append(out, d)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleServePDF(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	blob, err := s.store.ReadBytes(doc.StorageRef)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+doc.Filename+`"`)
	if _, err := io.Copy(w, blob); err != nil {
		s.logger.Warn("pdf stream interrupted", "document_id", doc.ID, "error", err)
	}
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "pageNumber"))
	if err != nil || n < 1 {
		s.writeError(w, r, badRequest("invalid page number"))
		return
	}
	page, err := s.pages.GetByNumber(r.Context(), doc.ID, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	history, err := s.jobs.ListByDocument(r.Context(), doc.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleReimport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// The job create is the atomic active-job guard, so it must come
	// first: a 409 leaves the current extraction data untouched, and a
	// running sibling's rows are never deleted out from under it.
	job, err := s.jobs.Create(r.Context(), doc.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Stale items vanish immediately; the pipeline resets again before
	// inserting the new generation.
	if err := s.docs.ResetExtraction(r.Context(), doc.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = s.queue.Enqueue(r.Context(), async.Job{
		JobID:       job.ID,
		DocumentID:  doc.ID,
		SubmittedAt: time.Now(),
	})
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "documentID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	archived := r.URL.Query().Get("archived") != "false"

	if err := s.docs.SetArchived(r.Context(), id, archived); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "archived": archived})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "documentID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.docs.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Blob first: a dangling row is recoverable, an orphaned blob with
	// no row is not.
	if err := s.store.Remove(doc.StorageRef); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.docs.Purge(r.Context(), id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
