// Package validate is the single chokepoint where candidate items from
// the extraction capability become trusted rows. A rejected candidate is
// data, never an error: it is dropped, counted and logged, and the job
// carries on.
package validate

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/openorcamento/budgetlens/constants"
	"github.com/openorcamento/budgetlens/internal/extract"
	"github.com/openorcamento/budgetlens/internal/llm"
)

// RejectionReason classifies why a candidate was dropped.
type RejectionReason string

const (
	UnknownCategory  RejectionReason = "UNKNOWN_CATEGORY"
	PageOutOfRange   RejectionReason = "PAGE_OUT_OF_RANGE"
	EvidenceNotFound RejectionReason = "EVIDENCE_NOT_FOUND"
	MissingField     RejectionReason = "MISSING_FIELD"
)

// Rejection pairs a dropped candidate with its first failing check.
type Rejection struct {
	Item   llm.CandidateItem
	Reason RejectionReason
	Detail string
}

// Result of validating one batch of candidates.
type Result struct {
	Accepted []llm.CandidateItem
	Rejected []Rejection
}

// Items checks each candidate against the document's pages. Checks run
// in a fixed order and the first failure wins:
//
//  1. category belongs to the stated side's taxonomy
//  2. page number is inside the document's page range
//  3. if value is non-null, the evidence is a non-empty case-sensitive
//     literal substring of that page's text
//  4. description and explanation are non-empty
//
// Pages must be the document's full ordered page set, 1-indexed.
func Items(candidates []llm.CandidateItem, pages []extract.PageText, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}

	res := Result{Accepted: make([]llm.CandidateItem, 0, len(candidates))}
	for _, c := range candidates {
		if reason, detail := check(c, pages); reason != "" {
			logger.Warn("validate.item.rejected",
				"reason", string(reason),
				"detail", detail,
				"side", c.Side,
				"category", c.Category,
				"page", c.PageNumber,
			)
			res.Rejected = append(res.Rejected, Rejection{Item: c, Reason: reason, Detail: detail})
			continue
		}
		res.Accepted = append(res.Accepted, c)
	}
	return res
}

func check(c llm.CandidateItem, pages []extract.PageText) (RejectionReason, string) {
	if !constants.ValidSide(c.Side) || !constants.ValidCategory(constants.Side(c.Side), c.Category) {
		return UnknownCategory, c.Category + " is not a " + c.Side + " category"
	}

	if c.PageNumber < 1 || c.PageNumber > len(pages) {
		return PageOutOfRange, "page outside 1.." + strconv.Itoa(len(pages))
	}

	if c.Value != nil {
		ev := c.EvidenceText
		if ev == "" || !strings.Contains(pages[c.PageNumber-1].Text, ev) {
			return EvidenceNotFound, "evidence not on page " + strconv.Itoa(c.PageNumber)
		}
	}

	if strings.TrimSpace(c.DescriptionOriginal) == "" {
		return MissingField, "descriptionOriginal"
	}
	if strings.TrimSpace(c.Explanation) == "" {
		return MissingField, "explanation"
	}

	return "", ""
}
