package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config for the pdftotext-backed extractor.
type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
}

// Extractor pulls the text layer out of a PDF with poppler's pdftotext.
// Pages arrive separated by form-feed characters, which keeps the page
// accounting deterministic without rasterizing anything.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// WithRunner swaps the command runner. Tests use this to avoid execing.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	start := time.Now()

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		e.logger.Error("pdftotext failed", "path", path, "error", err)
		return Result{Warnings: []string{string(errb)}}, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	pages := SplitPages(string(out))
	res := Result{
		Pages:    pages,
		Method:   "pdf-text",
		Duration: time.Since(start),
	}
	if len(errb) > 0 {
		res.Warnings = append(res.Warnings, string(errb))
	}

	if !hasText(pages) {
		// Image-only scans parse fine but yield blank pages; that is still
		// an unreadable document for this pipeline.
		e.logger.Warn("document has no extractable text", "path", path, "pages", len(pages))
		return res, fmt.Errorf("%w: no text layer in %d pages", ErrUnreadableDocument, len(pages))
	}

	e.logger.Info("text extraction ok", "path", path, "pages", len(pages), "elapsed_ms", res.Duration.Milliseconds())
	return res, nil
}

// SplitPages turns pdftotext output into 1-indexed pages. A form feed is
// the page separator; a trailing form feed does not open an extra page.
func SplitPages(text string) []PageText {
	raw := strings.Split(text, "\f")
	if n := len(raw); n > 1 && strings.TrimSpace(raw[n-1]) == "" {
		raw = raw[:n-1]
	}
	pages := make([]PageText, len(raw))
	for i, t := range raw {
		pages[i] = PageText{Number: i + 1, Text: t}
	}
	return pages
}

func hasText(pages []PageText) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
