package server_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/openorcamento/budgetlens/constants"
	"github.com/openorcamento/budgetlens/internal/aggregate"
	"github.com/openorcamento/budgetlens/internal/async"
	"github.com/openorcamento/budgetlens/internal/entity"
	"github.com/openorcamento/budgetlens/internal/export"
	"github.com/openorcamento/budgetlens/internal/extract"
	"github.com/openorcamento/budgetlens/internal/repository"
	"github.com/openorcamento/budgetlens/internal/server"
)

type fakeQueue struct{ enqueued []async.Job }

func (q *fakeQueue) Enqueue(_ context.Context, j async.Job) error {
	q.enqueued = append(q.enqueued, j)
	return nil
}
func (q *fakeQueue) Shutdown(context.Context) {}

type memStore struct{ blobs map[string][]byte }

func newMemStore() *memStore { return &memStore{blobs: map[string][]byte{}} }

func (m *memStore) WriteBytes(content io.Reader) (string, error) {
	b, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	ref := "blob-1"
	m.blobs[ref] = b
	return ref, nil
}
func (m *memStore) ReadBytes(ref string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.blobs[ref])), nil
}
func (m *memStore) Remove(ref string) error         { delete(m.blobs, ref); return nil }
func (m *memStore) Path(ref string) (string, error) { return "/tmp/" + ref, nil }

type fixture struct {
	ts    *httptest.Server
	queue *fakeQueue
	docs  repository.DocumentRepository
	pages repository.PageRepository
	items repository.ItemRepository
	jobs  repository.JobRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(context.Background(), db))

	log := slog.Default()
	f := &fixture{
		queue: &fakeQueue{},
		docs:  repository.NewDocumentRepository(db, log),
		pages: repository.NewPageRepository(db, log),
		items: repository.NewItemRepository(db, log),
		jobs:  repository.NewJobRepository(db, log),
	}
	aggregator := aggregate.NewService(f.items, log)
	exporter := export.NewService(f.items, aggregator, log)
	srv := server.New(log, newMemStore(), f.docs, f.pages, f.items, f.jobs,
		aggregator, exporter, f.queue, 10<<20)
	f.ts = httptest.NewServer(srv.Router())
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) seedDocument(t *testing.T) *entity.Document {
	t.Helper()
	doc, err := f.docs.Create(context.Background(), 2026, "oe2026.pdf", "blob-1")
	require.NoError(t, err)
	return doc
}

func fval(v float64) *float64 { return &v }

func (f *fixture) seedItem(t *testing.T, doc *entity.Document, cat constants.Category, value *float64) *entity.BudgetItem {
	t.Helper()
	it := &entity.BudgetItem{
		DocumentID:          doc.ID,
		Year:                doc.Year,
		Side:                constants.SideExpense,
		Category:            cat,
		DescriptionOriginal: "linha",
		Value:               value,
		Unit:                constants.UnitEUR,
		PageNumber:          1,
		EvidenceText:        "evidência",
		Explanation:         "explicação",
	}
	require.NoError(t, f.items.InsertBatch(context.Background(), []*entity.BudgetItem{it}))
	return it
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := get(t, f.ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")
}

func TestUploadCreatesDocumentAndJob(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "oe2026.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.7 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.ts.URL+"/api/documents/upload?year=2026", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Document entity.Document  `json:"document"`
		Job      entity.ImportJob `json:"job"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 2026, out.Document.Year)
	assert.Equal(t, constants.JobStatusPending, out.Job.Status)
	require.Len(t, f.queue.enqueued, 1)
	assert.Equal(t, out.Job.ID, f.queue.enqueued[0].JobID)
}

func TestUploadRequiresYear(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Post(f.ts.URL+"/api/documents/upload", "multipart/form-data", strings.NewReader(""))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestArchivedDocumentIsInvisible(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)

	resp, _ := get(t, f.ts.URL+"/api/documents/"+doc.ID.String())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPatch, f.ts.URL+"/api/documents/"+doc.ID.String()+"/archive?archived=true", nil)
	aresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	aresp.Body.Close()
	require.Equal(t, http.StatusOK, aresp.StatusCode)

	for _, path := range []string{
		"/api/documents/" + doc.ID.String(),
		"/api/documents/" + doc.ID.String() + "/summary",
		"/api/documents/" + doc.ID.String() + "/import-jobs",
	} {
		resp, _ := get(t, f.ts.URL+path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	// Archived documents are hidden from the default list.
	resp, body := get(t, f.ts.URL+"/api/documents/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]\n", string(body))
	resp, _ = get(t, f.ts.URL+"/api/documents/?include_archived=true")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestArchivedItemHidden(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	it := f.seedItem(t, doc, constants.Health, fval(10))

	resp, _ := get(t, f.ts.URL+"/api/items/"+it.ID.String())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, f.docs.SetArchived(context.Background(), doc.ID, true))
	resp, _ = get(t, f.ts.URL+"/api/items/"+it.ID.String())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestItemsByCategorySortValidation(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	f.seedItem(t, doc, constants.Health, fval(5))
	f.seedItem(t, doc, constants.Health, fval(50))

	base := f.ts.URL + "/api/documents/" + doc.ID.String() + "/categories/Health"

	resp, body := get(t, base+"?sort_by=value")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []entity.BudgetItem
	require.NoError(t, json.Unmarshal(body, &items))
	require.Len(t, items, 2)
	assert.Equal(t, 50.0, *items[0].Value)

	resp, _ = get(t, base+"?sort_by=bogus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = get(t, f.ts.URL+"/api/documents/"+doc.ID.String()+"/categories/Nonsense")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSummaryEndpoint(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	f.seedItem(t, doc, constants.Health, fval(100))
	f.seedItem(t, doc, constants.Education, fval(300))

	resp, body := get(t, f.ts.URL+"/api/documents/"+doc.ID.String()+"/summary")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sum aggregate.Summary
	require.NoError(t, json.Unmarshal(body, &sum))
	assert.Equal(t, 400.0, sum.ExpenseTotal)
	assert.Len(t, sum.Categories, 2)
}

func TestReimportConflictsWithActiveJob(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)

	resp, err := http.Post(f.ts.URL+"/api/documents/"+doc.ID.String()+"/reimport", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The first reimport queued a PENDING job; a second one conflicts.
	resp, err = http.Post(f.ts.URL+"/api/documents/"+doc.ID.String()+"/reimport", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReimportRejectionKeepsExtractedData(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	f.seedItem(t, doc, constants.Health, fval(10))

	// An active job blocks the reimport; the rejection must not have
	// wiped the current generation of items.
	_, err := f.jobs.Create(context.Background(), doc.ID)
	require.NoError(t, err)

	resp, err := http.Post(f.ts.URL+"/api/documents/"+doc.ID.String()+"/reimport", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	items, err := f.items.ListByDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestPurgeRemovesEverything(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	f.seedItem(t, doc, constants.Health, fval(1))
	_, err := f.pages.ReplaceForDocument(context.Background(), doc.ID, []extract.PageText{{Number: 1, Text: "x"}})
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodDelete, f.ts.URL+"/api/documents/"+doc.ID.String()+"/purge", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	gresp, _ := get(t, f.ts.URL+"/api/documents/"+doc.ID.String())
	assert.Equal(t, http.StatusNotFound, gresp.StatusCode)
}

func TestGetPageText(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	_, err := f.pages.ReplaceForDocument(context.Background(), doc.ID, []extract.PageText{
		{Number: 1, Text: "primeira página"},
	})
	require.NoError(t, err)

	resp, body := get(t, f.ts.URL+"/api/documents/"+doc.ID.String()+"/pages/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "primeira página")

	resp, _ = get(t, f.ts.URL+"/api/documents/"+doc.ID.String()+"/pages/99")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportDownload(t *testing.T) {
	f := newFixture(t)
	doc := f.seedDocument(t)
	f.seedItem(t, doc, constants.Health, fval(42))

	resp, body := get(t, f.ts.URL+"/api/documents/"+doc.ID.String()+"/export")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "budget-2026.xlsx")
	assert.NotEmpty(t, body)
}
