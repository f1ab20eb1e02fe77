package extraction

import (
	"math"

	"github.com/doculens/extraction-engine/internal/domain"
)

// computeQuality derives quality metrics from counts already in hand.
// The same inputs always produce the same metrics.
func computeQuality(
	pages []domain.Page,
	failedPages map[int]bool,
	tables []domain.TableRegion,
	entities []domain.ConsensusEntity,
	plan domain.StrategyPlan,
	floor float64,
) domain.QualityMetrics {
	var m domain.QualityMetrics

	total := len(pages)
	if total == 0 {
		return m
	}

	textPages := 0
	for _, page := range pages {
		if len(page.Runs) > 0 || page.RawText != "" {
			textPages++
		}
	}
	m.TextQuality = float64(textPages) / float64(total)

	// Structure quality is the fraction of detected tables whose
	// confidence clears the floor.
	if len(tables) > 0 {
		above := 0
		for _, table := range tables {
			if table.Confidence >= floor {
				above++
			}
		}
		m.StructureQuality = float64(above) / float64(len(tables))
	}

	m.Completeness = float64(total-len(failedPages)) / float64(total)

	// Overall confidence blends text coverage with the mean entity
	// confidence when entities exist. A degraded routing decision
	// discounts the whole figure.
	confidence := m.TextQuality
	if len(entities) > 0 {
		sum := 0.0
		for _, entity := range entities {
			sum += entity.Confidence
		}
		confidence = (confidence + sum/float64(len(entities))) / 2.0
	}
	if plan.LowConfidence {
		confidence *= 0.75
	}
	m.Confidence = math.Max(0, math.Min(1, confidence))

	return m
}
