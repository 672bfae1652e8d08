// Package pipeline owns the per-document ingestion lifecycle: claim the
// job, extract text, detect sections, call the extraction capability per
// section, validate, persist, and report progress. Each job is processed
// by exactly one worker end to end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openorcamento/budgetlens/constants"
	"github.com/openorcamento/budgetlens/internal/entity"
	"github.com/openorcamento/budgetlens/internal/extract"
	"github.com/openorcamento/budgetlens/internal/llm"
	"github.com/openorcamento/budgetlens/internal/repository"
	"github.com/openorcamento/budgetlens/internal/sections"
	"github.com/openorcamento/budgetlens/internal/storage"
	"github.com/openorcamento/budgetlens/internal/validate"
)

// Progress milestones. Extraction lands at 10, section detection at 20,
// section processing interpolates 20..90, completion forces 100.
const (
	progressExtracted = 10
	progressSections  = 20
	progressAllDone   = 90
)

type Processor struct {
	logger     *slog.Logger
	store      storage.BlobStore
	extractor  extract.TextExtractor
	capability llm.ItemExtractor

	docs     repository.DocumentRepository
	pages    repository.PageRepository
	sections repository.SectionRepository
	items    repository.ItemRepository
	jobs     repository.JobRepository

	retry              RetryPolicy
	sectionConcurrency int
}

func NewProcessor(
	logger *slog.Logger,
	store storage.BlobStore,
	extractor extract.TextExtractor,
	capability llm.ItemExtractor,
	docs repository.DocumentRepository,
	pages repository.PageRepository,
	secs repository.SectionRepository,
	items repository.ItemRepository,
	jobs repository.JobRepository,
	retry RetryPolicy,
	sectionConcurrency int,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if sectionConcurrency < 1 {
		sectionConcurrency = 1
	}
	return &Processor{
		logger:             logger,
		store:              store,
		extractor:          extractor,
		capability:         capability,
		docs:               docs,
		pages:              pages,
		sections:           secs,
		items:              items,
		jobs:               jobs,
		retry:              retry,
		sectionConcurrency: sectionConcurrency,
	}
}

// ProcessJob claims and runs one import job to a terminal state. A lost
// claim is not an error: another worker (or a running sibling job) owns
// the document right now.
func (p *Processor) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	claimed, err := p.jobs.Claim(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		p.logger.Info("pipeline.job.claim_lost", "job_id", jobID)
		return nil
	}

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return p.fail(ctx, jobID, fmt.Errorf("load job: %w", err))
	}

	start := time.Now()
	p.logger.Info("pipeline.job.start", "job_id", jobID, "document_id", job.DocumentID)

	if err := p.run(ctx, job.ID, job.DocumentID); err != nil {
		return p.fail(ctx, jobID, err)
	}

	if err := p.jobs.Finish(ctx, jobID, constants.JobStatusCompleted, nil); err != nil {
		return err
	}
	p.logger.Info("pipeline.job.completed", "job_id", jobID, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// fail records the first fatal cause on the job. The job row is the only
// user-visible failure channel.
func (p *Processor) fail(ctx context.Context, jobID uuid.UUID, cause error) error {
	msg := cause.Error()
	if err := p.jobs.Finish(ctx, jobID, constants.JobStatusFailed, &msg); err != nil {
		p.logger.Error("pipeline.job.fail_record_error", "job_id", jobID, "error", err)
	}
	return cause
}

func (p *Processor) run(ctx context.Context, jobID, documentID uuid.UUID) error {
	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Archived {
		return errors.New("document is archived")
	}

	path, err := p.store.Path(doc.StorageRef)
	if err != nil {
		return fmt.Errorf("resolve blob: %w", err)
	}

	// Stage 1: text extraction. Unreadable input is terminal, no retry.
	res, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return err
	}
	if _, err := p.pages.ReplaceForDocument(ctx, documentID, res.Pages); err != nil {
		return fmt.Errorf("persist pages: %w", err)
	}
	_ = p.jobs.SetProgress(ctx, jobID, progressExtracted)

	// Stage 2: section detection. A re-run clears prior sections and
	// items first so the document never holds two generations at once.
	if err := p.docs.ResetExtraction(ctx, documentID); err != nil {
		return fmt.Errorf("reset extraction: %w", err)
	}
	detected := sections.Detect(res.Pages)
	if _, err := p.sections.InsertForDocument(ctx, documentID, detected); err != nil {
		return fmt.Errorf("persist sections: %w", err)
	}
	_ = p.jobs.SetProgress(ctx, jobID, progressSections)

	// Stage 3: per-section extraction + validation, bounded parallelism.
	return p.processSections(ctx, jobID, doc, res.Pages, detected)
}

func (p *Processor) processSections(ctx context.Context, jobID uuid.UUID, doc *entity.Document, pages []extract.PageText, detected []sections.Section) error {
	total := len(detected)
	if total == 0 {
		return nil
	}

	var (
		mu         sync.Mutex
		done       int
		skipped    int
		firstCause error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.sectionConcurrency)

	for _, sec := range detected {
		sec := sec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Cancellation check before every capability call: archiving
			// the document mid-run stops the job instead of silently
			// completing.
			if cur, err := p.docs.Get(gctx, doc.ID); err == nil && cur.Archived {
				return errors.New("document archived during processing")
			}
			items, err := p.extractSection(gctx, doc, pages, sec)

			mu.Lock()
			if err != nil {
				skipped++
				if firstCause == nil {
					firstCause = err
				}
				mu.Unlock()
				p.logger.Warn("pipeline.section.skipped",
					"job_id", jobID,
					"title_path", sec.TitlePath(),
					"error", err,
				)
				return nil
			}
			mu.Unlock()

			if err := p.items.InsertBatch(gctx, items); err != nil {
				return fmt.Errorf("persist items: %w", err)
			}

			mu.Lock()
			done++
			completed := done + skipped
			mu.Unlock()
			progress := progressSections + (progressAllDone-progressSections)*completed/total
			_ = p.jobs.SetProgress(gctx, jobID, progress)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	// Skipped sections are tolerated; a job fails only when every
	// section failed.
	if skipped == total && firstCause != nil {
		return fmt.Errorf("extraction failed on all %d sections: %w", total, firstCause)
	}
	if skipped > 0 {
		p.logger.Warn("pipeline.sections.partial",
			"job_id", jobID, "skipped", skipped, "total", total)
	}
	_ = p.jobs.SetProgress(ctx, jobID, progressAllDone)
	return nil
}

// extractSection calls the capability with retries, validates the
// candidates and normalizes values to EUR.
func (p *Processor) extractSection(ctx context.Context, doc *entity.Document, pages []extract.PageText, sec sections.Section) ([]*entity.BudgetItem, error) {
	req := llm.ExtractRequest{
		TitlePath: sec.TitlePath(),
		PagesText: sectionText(pages, sec),
	}

	var candidates []llm.CandidateItem
	err := p.retry.Do(ctx, p.logger, func() error {
		var callErr error
		candidates, _, callErr = p.capability.ExtractItems(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	res := validate.Items(candidates, pages, p.logger)
	out := make([]*entity.BudgetItem, 0, len(res.Accepted))
	for _, c := range res.Accepted {
		unit := constants.Unit(c.Unit)
		var value *float64
		if c.Value != nil {
			v := *c.Value * unit.Multiplier()
			value = &v
		}
		out = append(out, &entity.BudgetItem{
			DocumentID:          doc.ID,
			Year:                doc.Year,
			Side:                constants.Side(c.Side),
			Category:            constants.Category(c.Category),
			DescriptionOriginal: c.DescriptionOriginal,
			Value:               value,
			Unit:                unit,
			PageNumber:          c.PageNumber,
			EvidenceText:        c.EvidenceText,
			Explanation:         c.Explanation,
		})
	}
	return out, nil
}

// sectionText assembles the section's pages with explicit markers so the
// capability can report page numbers the validator can check.
func sectionText(pages []extract.PageText, sec sections.Section) string {
	var b strings.Builder
	for _, pg := range pages {
		if pg.Number < sec.PageStart || pg.Number > sec.PageEnd {
			continue
		}
		b.WriteString("--- PAGE ")
		b.WriteString(strconv.Itoa(pg.Number))
		b.WriteString(" ---\n")
		b.WriteString(pg.Text)
		if !strings.HasSuffix(pg.Text, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}
