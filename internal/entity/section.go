package entity

import (
	"strings"

	"github.com/google/uuid"
)

// BreadcrumbSeparator joins heading texts into the stored title path,
// outermost first: "Despesas > Saúde".
const BreadcrumbSeparator = " > "

// Section is a detected slice of the document outline. Sections are stored
// flat; nesting is reconstructed from breadcrumb prefixes at read time.
type Section struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	TitlePath  string    `json:"title_path"`
	PageStart  int       `json:"page_start"` // inclusive, 1-based
	PageEnd    int       `json:"page_end"`   // inclusive
	Level      int       `json:"level"`      // detected heading depth, 0 for the whole-document fallback
}

// Breadcrumb splits the stored title path back into its heading sequence.
// An empty path yields an empty slice.
func (s Section) Breadcrumb() []string {
	if s.TitlePath == "" {
		return nil
	}
	return strings.Split(s.TitlePath, BreadcrumbSeparator)
}

// JoinBreadcrumb builds a title path from heading texts.
func JoinBreadcrumb(parts []string) string {
	return strings.Join(parts, BreadcrumbSeparator)
}
