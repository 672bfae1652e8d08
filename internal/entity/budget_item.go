package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/openorcamento/budgetlens/constants"
)

// BudgetItem is one validated budget line. Value is nil when the source
// printed no parseable number; nil is preserved, never coerced to zero.
// If Value is non-nil, EvidenceText is a literal substring of the text of
// the page at PageNumber.
type BudgetItem struct {
	ID                  uuid.UUID          `json:"id"`
	DocumentID          uuid.UUID          `json:"document_id"`
	Year                int                `json:"year"`
	Side                constants.Side     `json:"side"`
	Category            constants.Category `json:"category"`
	DescriptionOriginal string             `json:"description_original"`
	Value               *float64           `json:"value"` // EUR-normalized
	Unit                constants.Unit     `json:"unit"`
	PageNumber          int                `json:"page_number"`
	EvidenceText        string             `json:"evidence_text"`
	Explanation         string             `json:"explanation"`
	CreatedAt           time.Time          `json:"created_at"`
}
