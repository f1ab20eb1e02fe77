package entities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doculens/extraction-engine/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"whitespace collapsed", "a  b\t\nc", "a b c"},
		{"smart quotes unified", "“quoted” and ‘single’", `"quoted" and 'single'`},
		{"dashes unified", "2019–2024 — done", "2019-2024 - done"},
		{"leading and trailing stripped", "  hello  ", "hello"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	input := "Dr. Jane  Doe “quoted”"
	first := Normalize(input)
	assert.Equal(t, first, Normalize(first), "normalizing twice changes nothing")
}

func TestPatternEngine_Scan_CoreTypes(t *testing.T) {
	e := NewPatternEngine()
	text := "Dr. Jane Doe of Acme Holdings LLC paid $50,000 on 03/15/2024, see 347 U.S. 483."

	votes, err := e.Scan(context.Background(), text)
	require.NoError(t, err)

	types := make(map[domain.EntityType]bool)
	for _, vote := range votes {
		types[vote.EntityType] = true
		assert.Equal(t, "pattern", vote.EngineID)
		assert.Equal(t, text[vote.Span.Start:vote.Span.End], vote.EntityText)
	}

	assert.True(t, types[domain.EntityPerson])
	assert.True(t, types[domain.EntityOrganization])
	assert.True(t, types[domain.EntityMoney])
	assert.True(t, types[domain.EntityDate])
	assert.True(t, types[domain.EntityCitation])
}

func TestPatternEngine_Scan_OrgSuffixStopsAtWordEnd(t *testing.T) {
	e := NewPatternEngine()

	// "Inc" inside "Incorporated" is not a suffix; "Corp." before
	// whitespace is.
	votes, err := e.Scan(context.Background(), "Acme Incorporated retained Globex Corp. as counsel.")
	require.NoError(t, err)

	var orgs []string
	for _, vote := range votes {
		if vote.EntityType == domain.EntityOrganization {
			orgs = append(orgs, vote.EntityText)
		}
	}
	assert.Equal(t, []string{"Globex Corp."}, orgs)
}

func TestPatternEngine_Scan_HonorificBoostsConfidence(t *testing.T) {
	e := NewPatternEngine()

	votes, err := e.Scan(context.Background(), "Mr. John Smith signed.")
	require.NoError(t, err)
	require.NotEmpty(t, votes)

	boosted := false
	for _, vote := range votes {
		if vote.EntityType == domain.EntityPerson && vote.Confidence == 0.85 {
			boosted = true
		}
	}
	assert.True(t, boosted, "honorific-led person match carries 0.85")
}

func TestDictionaryEngine_Scan_WholeWordsOnly(t *testing.T) {
	e := NewDictionaryEngine([]string{"Ann Lee"}, []string{"Acme"})

	votes, err := e.Scan(context.Background(), "Acme and Acmeville hired Ann Lee.")
	require.NoError(t, err)

	var texts []string
	for _, vote := range votes {
		texts = append(texts, vote.EntityText)
		assert.Equal(t, "dictionary", vote.EngineID)
		assert.InDelta(t, 0.95, vote.Confidence, 0.0001)
	}

	assert.Contains(t, texts, "Acme")
	assert.Contains(t, texts, "Ann Lee")
	assert.Len(t, votes, 2, "Acmeville must not match the Acme entry")
}

func TestDictionaryEngine_Scan_CaseInsensitive(t *testing.T) {
	e := NewDictionaryEngine(nil, []string{"Acme Corp"})

	votes, err := e.Scan(context.Background(), "payment to ACME CORP confirmed")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, "ACME CORP", votes[0].EntityText, "display text comes from the document")
}

func TestStatisticalEngine_Scan_CapitalizedRuns(t *testing.T) {
	e := NewStatisticalEngine()

	votes, err := e.Scan(context.Background(), "The deal was closed by Maria Santos yesterday.")
	require.NoError(t, err)
	require.NotEmpty(t, votes)

	assert.Equal(t, "Maria Santos", votes[0].EntityText)
	assert.Equal(t, domain.EntityPerson, votes[0].EntityType)
}

func TestStatisticalEngine_Scan_OrgSuffix(t *testing.T) {
	e := NewStatisticalEngine()

	votes, err := e.Scan(context.Background(), "Funds were wired to Northwind Traders Inc last week.")
	require.NoError(t, err)
	require.NotEmpty(t, votes)
	assert.Equal(t, domain.EntityOrganization, votes[0].EntityType)
}

func TestStatisticalEngine_Scan_IgnoresSentenceStarts(t *testing.T) {
	e := NewStatisticalEngine()

	// "Yesterday" opens the sentence; a lone sentence-initial capital is
	// not a name signal.
	votes, err := e.Scan(context.Background(), "Yesterday the markets closed early.")
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestRegistry_Engines_Allowlist(t *testing.T) {
	r := NewRegistry(nil, nil)

	all := r.Engines(nil)
	assert.Len(t, all, 3)

	subset := r.Engines([]string{"pattern", "dictionary"})
	require.Len(t, subset, 2)
	ids := []string{subset[0].ID(), subset[1].ID()}
	assert.Contains(t, ids, "pattern")
	assert.Contains(t, ids, "dictionary")

	assert.Empty(t, r.Engines([]string{"nonexistent"}))
}
