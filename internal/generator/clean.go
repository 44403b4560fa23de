package generator

import (
	"regexp"
	"strings"
)

var (
	pairedReasoning   = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)
	unclosedReasoning = regexp.MustCompile(`(?s)<think>.*`)
)

// Clean strips reasoning blocks from raw model output. Closed blocks are
// removed first, then anything from a leftover opening tag to the end.
// Surrounding whitespace and double quotes are trimmed until stable, which
// keeps Clean idempotent.
func Clean(raw string) string {
	text := pairedReasoning.ReplaceAllString(raw, "")
	text = unclosedReasoning.ReplaceAllString(text, "")

	for {
		next := strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"`))
		if next == text {
			return text
		}
		text = next
	}
}
