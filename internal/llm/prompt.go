package llm

import (
	"encoding/json"
	"strings"

	"github.com/openorcamento/budgetlens/constants"
)

const maxSectionChars = 24000

// BuildSystemPrompt composes the system message: role, taxonomy, the
// rules that make items verifiable afterwards, and formatting hygiene.
func BuildSystemPrompt() string {
	parts := []string{
		"You are an analyst reading government budget documents in Portuguese. Return ONLY JSON that matches the provided JSON Schema.",
		"Extract every concrete budget line in the section: a named revenue source or spending area with its amount.",
		"'side' is REVENUE for money coming in and EXPENSE for money going out.",
		"Revenue categories (enum): " + strings.Join(constants.CategoryNamesFor(constants.SideRevenue), ", ") + ".",
		"Expense categories (enum): " + strings.Join(constants.CategoryNamesFor(constants.SideExpense), ", ") + ".",
		"'category' MUST be one of the enum values for the chosen side.",
		"'descriptionOriginal' is the line's own wording from the document, untranslated.",
		"'value' is the amount as a plain number, or null when the document prints no usable figure. Never guess a number.",
		"'unit' is the scale the document uses: EUR, THOUSAND_EUR, MILLION_EUR, or UNKNOWN if the scale is not stated.",
		"'pageNumber' is the page the line appears on, taken from the '--- PAGE n ---' markers.",
		"'evidenceText' is a VERBATIM excerpt of 50-200 characters copied from the section text, containing the amount. Do not paraphrase, do not fix spacing, do not translate. It will be checked character-for-character against the document.",
		"'explanation' is 2-3 short sentences in plain language telling a citizen what this money is for.",
		"Skip totals and subtotals that merely repeat lines you already extracted.",
		"If the section has no budget lines, return {\"items\": []}.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the breadcrumb and the section text. Text is
// truncated at a fixed budget so a pathological section cannot blow the
// provider's context window.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	b.WriteString("Section: ")
	if req.TitlePath == "" {
		b.WriteString("(untitled preamble)")
	} else {
		b.WriteString(req.TitlePath)
	}
	b.WriteString("\n\nSection text with page markers:\n")
	if len(req.PagesText) > maxSectionChars {
		b.WriteString(req.PagesText[:maxSectionChars])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(req.PagesText)
	}
	return b.String()
}

// MustJSON renders v for embedding the schema into a prompt.
func MustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
