// Package entities provides text normalization and the independent
// entity extraction engines whose votes feed the consensus aggregator.
package entities

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var quoteReplacer = strings.NewReplacer(
	"“", `"`, // left double quotation mark
	"”", `"`, // right double quotation mark
	"‘", "'", // left single quotation mark
	"’", "'", // right single quotation mark
	"–", "-", // en dash
	"—", "-", // em dash
	" ", " ", // non-breaking space
)

// Normalize prepares raw extracted text for entity scanning: Unicode
// NFKC normalization, quote and dash unification, and whitespace
// collapsing. Deterministic, applied once per job, and shared read-only
// across all engines.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = quoteReplacer.Replace(text)

	var b strings.Builder
	b.Grow(len(text))

	space := false
	for _, r := range text {
		switch r {
		case ' ', '\t', '\r', '\n', '\v', '\f':
			space = true
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}

	return b.String()
}
