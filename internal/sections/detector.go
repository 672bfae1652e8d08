// Package sections turns ordered page text into a flat outline of
// document sections. Detection is a pure function of its input: no
// external calls, identical pages always yield identical sections.
package sections

import (
	"strings"
	"unicode"

	"github.com/openorcamento/budgetlens/internal/entity"
	"github.com/openorcamento/budgetlens/internal/extract"
)

// Section is a detected outline slice. Page numbers are 1-based and
// inclusive; Breadcrumb is outermost-first.
type Section struct {
	Breadcrumb []string
	PageStart  int
	PageEnd    int
	Level      int
}

// TitlePath renders the breadcrumb in its stored form.
func (s Section) TitlePath() string {
	return entity.JoinBreadcrumb(s.Breadcrumb)
}

const (
	maxHeadingLen      = 100
	maxNumberedLen     = 60
	maxAllCapsLen      = 80
	minAllCapsLen      = 5
	maxTableDigitWords = 3
	maxHeadingIndent   = 40
)

var romanPrefixes = []string{"I.", "II.", "III.", "IV.", "V.", "VI.", "VII.", "VIII.", "IX.", "X."}

// IsHeadingLine classifies one raw line as heading-like. The composite
// heuristic favors short lines in title case or ALL CAPS and numbered
// outline entries, and rejects table rows (many numeric words) and
// deeply indented columns.
func IsHeadingLine(raw string) bool {
	indent := len(raw) - len(strings.TrimLeft(raw, " \t"))
	if indent > maxHeadingIndent {
		return false
	}

	line := strings.TrimSpace(raw)
	if line == "" || len(line) > maxHeadingLen {
		return false
	}

	words := strings.Fields(line)

	// Too many numbers suggests a table row, not a heading.
	digitWords := 0
	for _, w := range words {
		if strings.ContainsFunc(w, unicode.IsDigit) {
			digitWords++
		}
	}
	if digitWords > maxTableDigitWords {
		return false
	}

	// Short line where most words start uppercase. Any numeric word
	// disqualifies this branch: amounts belong to content, not titles.
	if len(words) > 0 && len(words) <= 5 && digitWords == 0 {
		upperStart := 0
		for _, w := range words {
			r := []rune(w)
			if len(r) > 0 && unicode.IsUpper(r[0]) {
				upperStart++
			}
		}
		if float64(upperStart) >= float64(len(words))*0.6 {
			return true
		}
	}

	// ALL CAPS banner, common in government documents.
	if isAllUpper(line) && len(line) > minAllCapsLen && len(line) < maxAllCapsLen {
		return true
	}

	// Roman numeral outline entries.
	for _, p := range romanPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}

	// Numbered outline entries like "1.", "3.2 ...".
	if len(line) < maxNumberedLen && len(line) >= 2 &&
		line[0] >= '1' && line[0] <= '9' && line[1] == '.' {
		return true
	}

	return false
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// HeadingLevel estimates outline depth for a heading line. Without font
// metadata the only reliable signal in extracted text is prominence:
// shorter banners sit higher in the outline.
func HeadingLevel(line string) int {
	line = strings.TrimSpace(line)
	switch {
	case len(line) < 30:
		return 1
	case len(line) < 50:
		return 2
	default:
		return 3
	}
}

// Detect scans pages in order and builds the section outline with a
// breadcrumb stack. A heading at level L pops the stack down to L-1,
// closes the open section at the last page before the heading and opens
// a new one. Consecutive headings on one page yield zero-length-content
// sections, retained so no text region is orphaned. A document with no
// headings at all yields one section with an empty breadcrumb spanning
// every page.
func Detect(pages []extract.PageText) []Section {
	var out []Section
	var stack []string

	open := false
	openStart := 0
	openLevel := 0

	closeOpen := func(endPage int) {
		if !open {
			return
		}
		if endPage < openStart {
			endPage = openStart // same-page follow-up heading: zero-length content
		}
		out = append(out, Section{
			Breadcrumb: append([]string(nil), stack...),
			PageStart:  openStart,
			PageEnd:    endPage,
			Level:      openLevel,
		})
	}

	for _, page := range pages {
		for _, raw := range strings.Split(page.Text, "\n") {
			if !IsHeadingLine(raw) {
				continue
			}
			heading := strings.TrimSpace(raw)
			level := HeadingLevel(heading)

			closeOpen(page.Number - 1)

			for len(stack) >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, heading)

			open = true
			openStart = page.Number
			openLevel = level
		}

		if !open && len(out) == 0 {
			// Pages before the first heading form an untitled preamble
			// section so their text still belongs somewhere.
			out = append(out, Section{PageStart: page.Number, PageEnd: page.Number})
			continue
		}
		if !open && len(out) == 1 && len(out[0].Breadcrumb) == 0 {
			out[0].PageEnd = page.Number
		}
	}

	if open {
		last := 0
		if n := len(pages); n > 0 {
			last = pages[n-1].Number
		}
		closeOpen(last)
	}

	return out
}
