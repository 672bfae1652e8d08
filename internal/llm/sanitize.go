package llm

import (
	"fmt"
	"strings"
)

// SanitizeModelJSON strips the decoration models like to wrap JSON in:
// markdown code fences, prose before the opening brace and after the
// closing one. It returns the widest { ... } span, which for our schema
// is the {"items": [...]} envelope. It does not attempt to repair the
// JSON itself.
func SanitizeModelJSON(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)

	// ```json ... ``` or plain ``` ... ```
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response (%d bytes)", len(raw))
	}
	return []byte(s[start : end+1]), nil
}
