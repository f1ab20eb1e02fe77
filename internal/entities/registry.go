package entities

import (
	"github.com/doculens/extraction-engine/internal/domain"
)

// Registry holds the explicit engine list built at startup. Engines are
// never discovered at runtime; what is registered here is the complete
// set a job can run.
type Registry struct {
	engines []domain.EntityEngine
}

// NewRegistry creates a registry with the built-in engines. The
// dictionary engine is seeded from the configured gazetteers.
func NewRegistry(knownPeople, knownOrganizations []string) *Registry {
	return &Registry{
		engines: []domain.EntityEngine{
			NewPatternEngine(),
			NewDictionaryEngine(knownPeople, knownOrganizations),
			NewStatisticalEngine(),
		},
	}
}

// Register appends an engine, e.g. an optional model-backed pass.
func (r *Registry) Register(engine domain.EntityEngine) {
	r.engines = append(r.engines, engine)
}

// Engines returns the engines permitted by the allowlist, in
// registration order. An empty allowlist permits every engine.
func (r *Registry) Engines(allowlist []string) []domain.EntityEngine {
	if len(allowlist) == 0 {
		out := make([]domain.EntityEngine, len(r.engines))
		copy(out, r.engines)
		return out
	}

	allowed := make(map[string]bool, len(allowlist))
	for _, id := range allowlist {
		allowed[id] = true
	}

	var out []domain.EntityEngine
	for _, engine := range r.engines {
		if allowed[engine.ID()] {
			out = append(out, engine)
		}
	}
	return out
}
