package entities

import (
	"context"
	"strings"
	"unicode"

	"github.com/doculens/extraction-engine/internal/domain"
)

// StatisticalEngine scores token shapes: runs of capitalized words that
// do not open a sentence are candidate names, typed by their trailing
// token. No training data is involved; the value of the engine is an
// independent third vote whose errors do not correlate with the other
// engines' rules.
type StatisticalEngine struct{}

// NewStatisticalEngine creates the token-shape engine.
func NewStatisticalEngine() *StatisticalEngine {
	return &StatisticalEngine{}
}

// ID identifies the engine in votes and the allowlist.
func (e *StatisticalEngine) ID() string { return "statistical" }

// stopwords that often start a sentence capitalized without naming
// anything.
var shapeStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"these": true, "those": true, "in": true, "on": true, "at": true,
	"of": true, "for": true, "and": true, "but": true, "or": true,
	"it": true, "its": true, "we": true, "he": true, "she": true,
	"they": true, "as": true, "if": true, "when": true, "while": true,
}

var orgShapeSuffixes = map[string]bool{
	"inc": true, "llc": true, "llp": true, "ltd": true, "corp": true,
	"co": true, "company": true, "corporation": true, "group": true,
	"partners": true, "bank": true, "trust": true, "associates": true,
}

// Scan emits lower-confidence votes for capitalized token runs.
func (e *StatisticalEngine) Scan(ctx context.Context, text string) ([]domain.EngineVote, error) {
	var votes []domain.EngineVote

	type token struct {
		text  string
		start int
		end   int
	}

	var tokens []token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, token{text[start:i], start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{text[start:], start, len(text)})
	}

	capitalized := func(t token) bool {
		trimmed := strings.TrimRight(t.text, ".,;:!?)\"'")
		if trimmed == "" {
			return false
		}
		r := []rune(trimmed)[0]
		return unicode.IsUpper(r) && !shapeStopwords[strings.ToLower(trimmed)]
	}

	sentenceStart := func(i int) bool {
		if i == 0 {
			return true
		}
		prev := tokens[i-1].text
		return strings.HasSuffix(prev, ".") || strings.HasSuffix(prev, "!") ||
			strings.HasSuffix(prev, "?")
	}

	i := 0
	for i < len(tokens) {
		select {
		case <-ctx.Done():
			return votes, ctx.Err()
		default:
		}

		if !capitalized(tokens[i]) || sentenceStart(i) {
			i++
			continue
		}

		j := i
		for j < len(tokens) && capitalized(tokens[j]) {
			j++
		}
		runLen := j - i
		if runLen < 2 || runLen > 5 {
			i = j
			continue
		}

		spanStart := tokens[i].start
		spanEnd := tokens[j-1].end
		matched := strings.TrimRight(text[spanStart:spanEnd], ".,;:!?)\"'")
		spanEnd = spanStart + len(matched)

		last := strings.ToLower(strings.TrimRight(tokens[j-1].text, ".,;:"))
		entityType := domain.EntityPerson
		confidence := 0.55
		if orgShapeSuffixes[last] {
			entityType = domain.EntityOrganization
			confidence = 0.65
		}

		votes = append(votes, domain.EngineVote{
			EngineID:   e.ID(),
			EntityText: matched,
			EntityType: entityType,
			Span:       domain.Span{Start: spanStart, End: spanEnd},
			Confidence: confidence,
		})

		i = j
	}

	return votes, nil
}
