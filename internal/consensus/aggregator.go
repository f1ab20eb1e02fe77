// Package consensus merges entity votes from independent engines into
// one ranked, deduplicated result set.
package consensus

import (
	"sort"
	"strings"

	"github.com/doculens/extraction-engine/internal/domain"
)

// Config holds aggregator settings.
type Config struct {
	// ConfidenceFloor suppresses single-engine entities below it.
	ConfidenceFloor float64
	// IncludeLowConfidence reports suppressed entities anyway.
	IncludeLowConfidence bool
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() Config {
	return Config{ConfidenceFloor: 0.6}
}

// Aggregator reconciles engine votes into consensus entities.
type Aggregator struct {
	cfg Config
}

// New creates an aggregator.
func New(cfg Config) *Aggregator {
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.6
	}
	return &Aggregator{cfg: cfg}
}

var honorificPrefixes = []string{
	"mr ", "mrs ", "ms ", "dr ", "prof ", "hon ", "judge ",
}

// Canonicalize lowercases and strips punctuation and honorifics for
// grouping. Display casing is preserved separately from the
// highest-confidence vote.
func Canonicalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(' ')
		// Punctuation is dropped entirely; "J. Smith" and "J Smith"
		// compare equal, "J. Smith" and "John Smith" do not.
		}
	}

	canonical := strings.Join(strings.Fields(b.String()), " ")
	for _, prefix := range honorificPrefixes {
		if strings.HasPrefix(canonical, prefix) {
			canonical = strings.TrimPrefix(canonical, prefix)
			break
		}
	}
	return canonical
}

type groupKey struct {
	entityType domain.EntityType
	canonical  string
}

// Aggregate merges votes into consensus entities. Output ordering is
// canonical and independent of engine completion order: entity type,
// then confidence descending, then canonical text.
func (a *Aggregator) Aggregate(votes []domain.EngineVote) []domain.ConsensusEntity {
	groups := make(map[groupKey][]domain.EngineVote)
	var keys []groupKey
	for _, vote := range votes {
		canonical := Canonicalize(vote.EntityText)
		if canonical == "" {
			continue
		}
		key := groupKey{entityType: vote.EntityType, canonical: canonical}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], vote)
	}

	var entities []domain.ConsensusEntity
	for _, key := range keys {
		entity := a.buildEntity(key, groups[key])

		if entity.AgreementCount == 1 &&
			entity.Confidence < a.cfg.ConfidenceFloor &&
			!a.cfg.IncludeLowConfidence {
			continue
		}

		entities = append(entities, entity)
	}

	sort.Slice(entities, func(i, j int) bool {
		if entities[i].EntityType != entities[j].EntityType {
			return entities[i].EntityType < entities[j].EntityType
		}
		if entities[i].Confidence != entities[j].Confidence {
			return entities[i].Confidence > entities[j].Confidence
		}
		return entities[i].CanonicalText < entities[j].CanonicalText
	})

	return entities
}

// buildEntity reduces one group of votes to a consensus entity.
func (a *Aggregator) buildEntity(key groupKey, votes []domain.EngineVote) domain.ConsensusEntity {
	supporting := dedupByEngine(votes)

	// One confidence per distinct engine: the strongest deduplicated
	// vote the engine cast in this group.
	engineBest := make(map[string]float64)
	var engineIDs []string
	for _, vote := range supporting {
		if best, ok := engineBest[vote.EngineID]; !ok || vote.Confidence > best {
			if !ok {
				engineIDs = append(engineIDs, vote.EngineID)
			}
			engineBest[vote.EngineID] = vote.Confidence
		}
	}
	sort.Strings(engineIDs)

	// Probabilistic OR: every additional independent engine increases
	// confidence without exceeding 1.
	remaining := 1.0
	for _, id := range engineIDs {
		remaining *= 1.0 - engineBest[id]
	}
	confidence := 1.0 - remaining

	display := supporting[0]
	for _, vote := range supporting[1:] {
		if vote.Confidence > display.Confidence {
			display = vote
		}
	}

	spans := make([]domain.Span, 0, len(supporting))
	seenSpans := make(map[domain.Span]bool)
	for _, vote := range supporting {
		if !seenSpans[vote.Span] {
			seenSpans[vote.Span] = true
			spans = append(spans, vote.Span)
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})

	return domain.ConsensusEntity{
		EntityText:      display.EntityText,
		CanonicalText:   key.canonical,
		EntityType:      key.entityType,
		SupportingVotes: supporting,
		AgreementCount:  len(engineIDs),
		Confidence:      confidence,
		SourceSpans:     spans,
	}
}

// dedupByEngine collapses overlapping spans voted by the same engine,
// keeping the highest local confidence. Separate occurrences from one
// engine survive, but one engine's duplicate internal matches never
// inflate agreement.
func dedupByEngine(votes []domain.EngineVote) []domain.EngineVote {
	byEngine := make(map[string][]domain.EngineVote)
	var engineIDs []string
	for _, vote := range votes {
		if _, seen := byEngine[vote.EngineID]; !seen {
			engineIDs = append(engineIDs, vote.EngineID)
		}
		byEngine[vote.EngineID] = append(byEngine[vote.EngineID], vote)
	}
	sort.Strings(engineIDs)

	var out []domain.EngineVote
	for _, id := range engineIDs {
		group := byEngine[id]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Span.Start != group[j].Span.Start {
				return group[i].Span.Start < group[j].Span.Start
			}
			return group[i].Confidence > group[j].Confidence
		})

		var kept []domain.EngineVote
		for _, vote := range group {
			merged := false
			for i := range kept {
				if kept[i].Span.Overlaps(vote.Span) {
					if vote.Confidence > kept[i].Confidence {
						kept[i] = vote
					}
					merged = true
					break
				}
			}
			if !merged {
				kept = append(kept, vote)
			}
		}
		out = append(out, kept...)
	}

	return out
}
