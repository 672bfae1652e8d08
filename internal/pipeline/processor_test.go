package pipeline_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/openorcamento/budgetlens/constants"
	"github.com/openorcamento/budgetlens/internal/entity"
	"github.com/openorcamento/budgetlens/internal/extract"
	"github.com/openorcamento/budgetlens/internal/llm"
	"github.com/openorcamento/budgetlens/internal/pipeline"
	"github.com/openorcamento/budgetlens/internal/repository"
)

// fakeStore resolves refs without touching the filesystem.
type fakeStore struct{}

func (fakeStore) WriteBytes(io.Reader) (string, error)    { return "ref", nil }
func (fakeStore) ReadBytes(string) (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("")), nil }
func (fakeStore) Remove(string) error                     { return nil }
func (fakeStore) Path(ref string) (string, error)         { return "/tmp/" + ref + ".pdf", nil }

// fakeExtractor returns canned pages, or a fixed error.
type fakeExtractor struct {
	pages []extract.PageText
	err   error
}

func (f fakeExtractor) Extract(context.Context, string) (extract.Result, error) {
	if f.err != nil {
		return extract.Result{}, f.err
	}
	return extract.Result{Pages: f.pages, Method: "pdf-text"}, nil
}

// fakeCapability answers by section title path and can be told to fail
// the first N calls per section.
type fakeCapability struct {
	mu        sync.Mutex
	bySec     map[string][]llm.CandidateItem
	failures  map[string]int // remaining failures per title path
	failWith  error
	calls     int
	onExtract func(titlePath string) // runs before answering, if set
}

func (f *fakeCapability) ExtractItems(_ context.Context, req llm.ExtractRequest) ([]llm.CandidateItem, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onExtract != nil {
		f.onExtract(req.TitlePath)
	}
	if n, ok := f.failures[req.TitlePath]; ok && n > 0 {
		f.failures[req.TitlePath] = n - 1
		return nil, nil, f.failWith
	}
	return f.bySec[req.TitlePath], nil, nil
}

var testPages = []extract.PageText{
	{Number: 1, Text: "Despesas\nTotal Health spending: 500 EUR\n"},
	{Number: 2, Text: "Receitas\nImpostos sobre o consumo: 1.000 EUR\n"},
}

func fval(f float64) *float64 { return &f }

func expenseCandidate() llm.CandidateItem {
	return llm.CandidateItem{
		Side:                "EXPENSE",
		Category:            "Health",
		DescriptionOriginal: "Total Health spending",
		Value:               fval(500),
		Unit:                "EUR",
		PageNumber:          1,
		EvidenceText:        "500 EUR",
		Explanation:         "Spending on public healthcare services.",
	}
}

func revenueCandidate() llm.CandidateItem {
	return llm.CandidateItem{
		Side:                "REVENUE",
		Category:            "Taxes on purchases",
		DescriptionOriginal: "Impostos sobre o consumo",
		Value:               fval(1),
		Unit:                "THOUSAND_EUR",
		PageNumber:          2,
		EvidenceText:        "1.000 EUR",
		Explanation:         "Taxes collected when people buy goods.",
	}
}

type harness struct {
	db    *sql.DB
	docs  repository.DocumentRepository
	pages repository.PageRepository
	secs  repository.SectionRepository
	items repository.ItemRepository
	jobs  repository.JobRepository
	doc   *entity.Document
	job   *entity.ImportJob
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(context.Background(), db))

	log := slog.Default()
	h := &harness{
		db:    db,
		docs:  repository.NewDocumentRepository(db, log),
		pages: repository.NewPageRepository(db, log),
		secs:  repository.NewSectionRepository(db, log),
		items: repository.NewItemRepository(db, log),
		jobs:  repository.NewJobRepository(db, log),
	}
	h.doc, err = h.docs.Create(context.Background(), 2026, "oe2026.pdf", "ref")
	require.NoError(t, err)
	h.job, err = h.jobs.Create(context.Background(), h.doc.ID)
	require.NoError(t, err)
	return h
}

func (h *harness) processor(extractor extract.TextExtractor, capability llm.ItemExtractor, concurrency int) *pipeline.Processor {
	return pipeline.NewProcessor(
		slog.Default(), fakeStore{}, extractor, capability,
		h.docs, h.pages, h.secs, h.items, h.jobs,
		pipeline.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		concurrency,
	)
}

func TestProcessJobHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fakeCap := &fakeCapability{bySec: map[string][]llm.CandidateItem{
		"Despesas": {expenseCandidate()},
		"Receitas": {revenueCandidate()},
	}}
	proc := h.processor(fakeExtractor{pages: testPages}, fakeCap, 2)

	require.NoError(t, proc.ProcessJob(ctx, h.job.ID))

	job, err := h.jobs.Get(ctx, h.job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Nil(t, job.ErrorMessage)

	items, err := h.items.ListByDocument(ctx, h.doc.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// THOUSAND_EUR values are normalized to EUR at persist time.
	for _, it := range items {
		if it.Category == constants.TaxesOnPurchases {
			require.NotNil(t, it.Value)
			assert.Equal(t, 1000.0, *it.Value)
			assert.Equal(t, constants.UnitThousandEUR, it.Unit)
		}
	}

	pages, err := h.pages.ListByDocument(ctx, h.doc.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	secs, err := h.secs.ListByDocument(ctx, h.doc.ID)
	require.NoError(t, err)
	assert.Len(t, secs, 2)
}

func TestProcessJobDisabledCapabilityStillCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	proc := h.processor(fakeExtractor{pages: testPages}, llm.NewDisabled(nil), 1)
	require.NoError(t, proc.ProcessJob(ctx, h.job.ID))

	job, err := h.jobs.Get(ctx, h.job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, job.Status)

	items, err := h.items.ListByDocument(ctx, h.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
	secs, err := h.secs.ListByDocument(ctx, h.doc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, secs)
}

func TestProcessJobUnreadableDocumentFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	proc := h.processor(fakeExtractor{err: extract.ErrUnreadableDocument}, llm.NewDisabled(nil), 1)
	err := proc.ProcessJob(ctx, h.job.ID)
	assert.ErrorIs(t, err, extract.ErrUnreadableDocument)

	job, getErr := h.jobs.Get(ctx, h.job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, constants.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "unreadable document")
}

func TestProcessJobRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fakeCap := &fakeCapability{
		bySec:    map[string][]llm.CandidateItem{"Despesas": {expenseCandidate()}, "Receitas": {}},
		failures: map[string]int{"Despesas": 2}, // two failures, third attempt wins
		failWith: llm.ErrCapabilityUnavailable,
	}
	proc := h.processor(fakeExtractor{pages: testPages}, fakeCap, 1)

	require.NoError(t, proc.ProcessJob(ctx, h.job.ID))

	job, err := h.jobs.Get(ctx, h.job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, job.Status)

	items, err := h.items.ListByDocument(ctx, h.doc.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestProcessJobSkipsExhaustedSection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fakeCap := &fakeCapability{
		bySec:    map[string][]llm.CandidateItem{"Receitas": {revenueCandidate()}},
		failures: map[string]int{"Despesas": 99}, // never recovers
		failWith: llm.ErrMalformedResponse,
	}
	proc := h.processor(fakeExtractor{pages: testPages}, fakeCap, 1)

	// A single bad section does not fail the job.
	require.NoError(t, proc.ProcessJob(ctx, h.job.ID))

	job, err := h.jobs.Get(ctx, h.job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, job.Status)

	items, err := h.items.ListByDocument(ctx, h.doc.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, constants.TaxesOnPurchases, items[0].Category)
}

func TestProcessJobFailsWhenEverySectionFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fakeCap := &fakeCapability{
		failures: map[string]int{"Despesas": 99, "Receitas": 99},
		failWith: llm.ErrCapabilityUnavailable,
	}
	proc := h.processor(fakeExtractor{pages: testPages}, fakeCap, 1)

	err := proc.ProcessJob(ctx, h.job.ID)
	assert.ErrorIs(t, err, llm.ErrCapabilityUnavailable)

	job, getErr := h.jobs.Get(ctx, h.job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, constants.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "all 2 sections")
}

func TestProcessJobArchivedDocumentFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.docs.SetArchived(ctx, h.doc.ID, true))

	proc := h.processor(fakeExtractor{pages: testPages}, llm.NewDisabled(nil), 1)
	err := proc.ProcessJob(ctx, h.job.ID)
	require.Error(t, err)

	job, getErr := h.jobs.Get(ctx, h.job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, constants.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "archived")
}

func TestProcessJobArchivedMidRunStops(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Archiving lands while the first section is being extracted; the
	// next section must not be sent to the capability.
	fakeCap := &fakeCapability{
		bySec: map[string][]llm.CandidateItem{
			"Despesas": {expenseCandidate()},
			"Receitas": {revenueCandidate()},
		},
	}
	fakeCap.onExtract = func(string) {
		assert.NoError(t, h.docs.SetArchived(ctx, h.doc.ID, true))
	}
	proc := h.processor(fakeExtractor{pages: testPages}, fakeCap, 1)

	err := proc.ProcessJob(ctx, h.job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archived")
	assert.Equal(t, 1, fakeCap.calls, "second section skipped after archive")

	job, getErr := h.jobs.Get(ctx, h.job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, constants.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "archived")
}

func TestProcessJobLostClaimIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ok, err := h.jobs.Claim(ctx, h.job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	proc := h.processor(fakeExtractor{pages: testPages}, llm.NewDisabled(nil), 1)
	require.NoError(t, proc.ProcessJob(ctx, h.job.ID))

	job, err := h.jobs.Get(ctx, h.job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusRunning, job.Status, "foreign claim untouched")
}

func TestReimportIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fakeCap := &fakeCapability{bySec: map[string][]llm.CandidateItem{
		"Despesas": {expenseCandidate()},
		"Receitas": {revenueCandidate()},
	}}
	proc := h.processor(fakeExtractor{pages: testPages}, fakeCap, 1)

	require.NoError(t, proc.ProcessJob(ctx, h.job.ID))

	second, err := h.jobs.Create(ctx, h.doc.ID)
	require.NoError(t, err)
	require.NoError(t, proc.ProcessJob(ctx, second.ID))

	items, err := h.items.ListByDocument(ctx, h.doc.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2, "no duplicate rows after re-run")

	history, err := h.jobs.ListByDocument(ctx, h.doc.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	for _, j := range history {
		assert.Equal(t, constants.JobStatusCompleted, j.Status)
	}
}

func TestProcessJobInvalidCandidatesDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bogus := expenseCandidate()
	bogus.EvidenceText = "1,000,000 EUR" // not on the page
	fakeCap := &fakeCapability{bySec: map[string][]llm.CandidateItem{
		"Despesas": {expenseCandidate(), bogus},
		"Receitas": {},
	}}
	proc := h.processor(fakeExtractor{pages: testPages}, fakeCap, 1)

	require.NoError(t, proc.ProcessJob(ctx, h.job.ID))

	items, err := h.items.ListByDocument(ctx, h.doc.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1, "rejected candidate is not persisted")
}
