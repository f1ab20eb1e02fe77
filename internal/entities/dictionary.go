package entities

import (
	"context"
	"sort"
	"strings"

	"github.com/doculens/extraction-engine/internal/domain"
)

// DictionaryEngine votes on occurrences of known names from a
// configured gazetteer. Exact whole-word matches, case-insensitive,
// with high local confidence: a curated list beats any heuristic.
type DictionaryEngine struct {
	people        []string
	organizations []string
}

// NewDictionaryEngine creates a gazetteer engine over the given name
// lists. Entries are matched longest-first so "First National Bank"
// wins over "First National".
func NewDictionaryEngine(people, organizations []string) *DictionaryEngine {
	e := &DictionaryEngine{
		people:        dedupSorted(people),
		organizations: dedupSorted(organizations),
	}
	return e
}

func dedupSorted(entries []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		lower := strings.ToLower(entry)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, entry)
	}
	// Longest first, alphabetical within a length for determinism.
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// ID identifies the engine in votes and the allowlist.
func (e *DictionaryEngine) ID() string { return "dictionary" }

// Scan finds every whole-word occurrence of a gazetteer entry.
func (e *DictionaryEngine) Scan(ctx context.Context, text string) ([]domain.EngineVote, error) {
	var votes []domain.EngineVote
	lower := strings.ToLower(text)

	scan := func(entries []string, entityType domain.EntityType) {
		for _, entry := range entries {
			needle := strings.ToLower(entry)
			from := 0
			for {
				idx := strings.Index(lower[from:], needle)
				if idx < 0 {
					break
				}
				start := from + idx
				end := start + len(needle)
				if wholeWord(lower, start, end) {
					votes = append(votes, domain.EngineVote{
						EngineID:   e.ID(),
						EntityText: text[start:end],
						EntityType: entityType,
						Span:       domain.Span{Start: start, End: end},
						Confidence: 0.95,
					})
				}
				from = end
			}
		}
	}

	scan(e.people, domain.EntityPerson)
	select {
	case <-ctx.Done():
		return votes, ctx.Err()
	default:
	}
	scan(e.organizations, domain.EntityOrganization)

	return votes, nil
}

// wholeWord reports whether [start, end) is bounded by non-letter runes.
func wholeWord(text string, start, end int) bool {
	if start > 0 && isWordByte(text[start-1]) {
		return false
	}
	if end < len(text) && isWordByte(text[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
