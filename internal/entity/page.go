package entity

import "github.com/google/uuid"

// Page holds the raw extracted text of one physical page. Created once
// during extraction and never mutated.
type Page struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	PageNumber int       `json:"page_number"` // 1-based, unique per document
	TextRaw    string    `json:"text_raw"`
}
