package llm

import (
	"context"
	"errors"
)

// Capability faults. Both are retried per-section with bounded attempts;
// exhaustion skips the section, it never fails the whole job.
var (
	// ErrCapabilityUnavailable means the provider could not be reached or
	// answered with a transport-level failure.
	ErrCapabilityUnavailable = errors.New("extraction capability unavailable")
	// ErrMalformedResponse means the provider answered, but the payload
	// did not survive sanitization plus schema validation.
	ErrMalformedResponse = errors.New("malformed extraction response")
)

// CandidateItem is the normalized shape we want from the model for one
// budget line. Everything here is untrusted until the validator has seen
// it.
type CandidateItem struct {
	Side                string  `json:"side"`                // REVENUE | EXPENSE
	Category            string  `json:"category"`            // must match the side's taxonomy
	DescriptionOriginal string  `json:"descriptionOriginal"` // exact text from the document
	Value               *float64 `json:"value"`              // null when the source prints no parseable number
	Unit                string  `json:"unit"`                // EUR | THOUSAND_EUR | MILLION_EUR | UNKNOWN
	PageNumber          int     `json:"pageNumber"`          // page the evidence appears on
	EvidenceText        string  `json:"evidenceText"`        // literal excerpt, 50-200 chars
	Explanation         string  `json:"explanation"`         // 2-3 plain-language sentences
}

// ExtractRequest carries one section's text to the capability.
type ExtractRequest struct {
	TitlePath string // section breadcrumb, outermost first
	PagesText string // section text with "--- PAGE n ---" markers
}

// ItemExtractor is the pluggable extraction capability. Implementations
// must be swappable without touching orchestrator logic; the Disabled
// implementation always returns an empty slice.
type ItemExtractor interface {
	ExtractItems(ctx context.Context, req ExtractRequest) ([]CandidateItem, []byte /*rawJSON*/, error)
}
