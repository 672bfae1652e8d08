package extract

import (
	"context"
	"errors"
	"time"
)

// ErrUnreadableDocument means the byte stream could not be parsed as a PDF
// or carried no text layer at all. Terminal for the job, never retried.
var ErrUnreadableDocument = errors.New("unreadable document")

// PageText is one physical page's extracted text, 1-indexed in document order.
type PageText struct {
	Number int
	Text   string
}

// Result summarizes one extraction run.
type Result struct {
	Pages    []PageText
	Method   string // "pdf-text"
	Duration time.Duration
	Warnings []string
}

// TextExtractor is the pipeline's first stage: document blob -> ordered pages.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (Result, error)
}
