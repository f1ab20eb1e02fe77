package entities

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/doculens/extraction-engine/internal/domain"
)

// rule is one pattern with its entity type and base confidence. wordEnd
// marks rules whose match must not run into a letter or digit; RE2 has no
// lookahead, so the boundary is checked after matching.
type rule struct {
	entityType domain.EntityType
	re         *regexp.Regexp
	confidence float64
	wordEnd    bool
}

// PatternEngine scans with regular-expression rules per entity type.
type PatternEngine struct {
	rules []rule
}

var honorifics = []string{"Mr.", "Mrs.", "Ms.", "Dr.", "Prof.", "Hon.", "Judge"}

// defaultRules returns the built-in rule set. Rule order is fixed so
// vote output is deterministic.
func defaultRules() []rule {
	return []rule{
		// Honorific-led names are the strongest person signal.
		{domain.EntityPerson,
			regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof|Hon)\.\s+[A-Z][a-z]+(?:\s+[A-Z]\.?)?(?:\s+[A-Z][a-z]+)?`),
			0.85, false},
		{domain.EntityPerson,
			regexp.MustCompile(`\b[A-Z][a-z]{2,}\s+(?:[A-Z]\.\s+)?[A-Z][a-z]{2,}\b`),
			0.6, false},
		{domain.EntityOrganization,
			regexp.MustCompile(`\b[A-Z][A-Za-z&'.\- ]{2,40}?\s+(?:Inc|LLC|LLP|Ltd|Corp|Co|Company|Corporation|Group|Partners|Bank|Trust|Associates)\.?`),
			0.8, true},
		{domain.EntityDate,
			regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b|\b\d{4}-\d{2}-\d{2}\b`),
			0.9, false},
		{domain.EntityDate,
			regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`),
			0.9, false},
		{domain.EntityMoney,
			regexp.MustCompile(`[$€£]\s?\d[\d,]*(?:\.\d{1,2})?(?:\s?(?:million|billion|thousand))?|\b(?:USD|EUR|GBP)\s?\d[\d,]*(?:\.\d{1,2})?`),
			0.9, false},
		{domain.EntityCitation,
			regexp.MustCompile(`\b\d+\s+(?:U\.S\.|F\.(?:2d|3d|4th)|S\.\s?Ct\.|F\.\s?Supp\.(?:\s?2d|\s?3d)?)\s+\d+\b`),
			0.85, false},
		{domain.EntityCitation,
			regexp.MustCompile(`\b[A-Z][a-z]+\s+v\.\s+[A-Z][a-z]+\b|§+\s?\d+(?:\.\d+)*`),
			0.75, false},
	}
}

// NewPatternEngine creates the rule-based engine.
func NewPatternEngine() *PatternEngine {
	return &PatternEngine{rules: defaultRules()}
}

// ID identifies the engine in votes and the allowlist.
func (e *PatternEngine) ID() string { return "pattern" }

// Scan emits one vote per rule match. Matches of a later rule that fall
// inside a span already claimed by an earlier rule for the same entity
// type are kept; the aggregator dedups per engine.
func (e *PatternEngine) Scan(ctx context.Context, text string) ([]domain.EngineVote, error) {
	var votes []domain.EngineVote

	for _, rl := range e.rules {
		select {
		case <-ctx.Done():
			return votes, ctx.Err()
		default:
		}

		for _, loc := range rl.re.FindAllStringIndex(text, -1) {
			if rl.wordEnd && !wordEndsAt(text, loc[1]) {
				continue
			}
			matched := strings.TrimSpace(text[loc[0]:loc[1]])
			if matched == "" {
				continue
			}
			conf := rl.confidence
			if rl.entityType == domain.EntityPerson && hasHonorific(matched) {
				conf = 0.85
			}
			votes = append(votes, domain.EngineVote{
				EngineID:   e.ID(),
				EntityText: matched,
				EntityType: rl.entityType,
				Span:       domain.Span{Start: loc[0], End: loc[1]},
				Confidence: conf,
			})
		}
	}

	return votes, nil
}

// wordEndsAt reports whether a match ending at end stops cleanly, rather
// than running into a letter or digit ("Inc" inside "Incorporated").
func wordEndsAt(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func hasHonorific(text string) bool {
	for _, h := range honorifics {
		if strings.HasPrefix(text, h) {
			return true
		}
	}
	return false
}
