package engine

import "time"

// The types below mirror the API's JSON wire format so callers of this
// package never need the server's internal packages.

// Strategy identifies an extraction method.
type Strategy string

const (
	StrategyNativeText   Strategy = "native-text"
	StrategyTableFocused Strategy = "table-focused"
	StrategyOCR          Strategy = "ocr"
	StrategyFallback     Strategy = "fallback"
)

// StrategyPlan is the routing decision attached to a result.
type StrategyPlan struct {
	Primary       Strategy   `json:"primary"`
	FallbackChain []Strategy `json:"fallback_chain"`
	LowConfidence bool       `json:"low_confidence"`
}

// Cell is one cell of a detected table region.
type Cell struct {
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Text     string `json:"text"`
	IsHeader bool   `json:"is_header"`
}

// TableRegion is one detected table with its recovered grid.
type TableRegion struct {
	PageIndex  int     `json:"page_index"`
	RowCount   int     `json:"row_count"`
	ColCount   int     `json:"col_count"`
	Cells      []Cell  `json:"cells"`
	RegionType string  `json:"region_type"`
	Confidence float64 `json:"confidence"`
}

// Span is a half-open character range into the document text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// EntityType classifies a consensus entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityDate         EntityType = "date"
	EntityMoney        EntityType = "money"
	EntityCitation     EntityType = "citation"
)

// EngineVote is one engine's finding supporting a consensus entity.
type EngineVote struct {
	EngineID   string     `json:"engine_id"`
	EntityText string     `json:"entity_text"`
	EntityType EntityType `json:"entity_type"`
	Span       Span       `json:"span"`
	Confidence float64    `json:"confidence"`
}

// ConsensusEntity is one deduplicated entity with its agreement evidence.
type ConsensusEntity struct {
	EntityText      string       `json:"entity_text"`
	CanonicalText   string       `json:"canonical_text"`
	EntityType      EntityType   `json:"entity_type"`
	SupportingVotes []EngineVote `json:"supporting_votes"`
	AgreementCount  int          `json:"agreement_count"`
	Confidence      float64      `json:"confidence"`
	SourceSpans     []Span       `json:"source_spans"`
}

// QualityMetrics summarizes completeness and confidence of a result.
type QualityMetrics struct {
	TextQuality      float64 `json:"text_quality"`
	StructureQuality float64 `json:"structure_quality"`
	Completeness     float64 `json:"completeness"`
	Confidence       float64 `json:"confidence"`
}

// Diagnostic records one absorbed failure with where it happened.
type Diagnostic struct {
	Stage     string `json:"stage"`
	PageIndex int    `json:"page_index,omitempty"`
	EngineID  string `json:"engine_id,omitempty"`
	Message   string `json:"message"`
}

// Timings breaks a job's wall time down per stage.
type Timings struct {
	Routing        time.Duration `json:"routing"`
	TableDetection time.Duration `json:"table_detection"`
	EntityScanning time.Duration `json:"entity_scanning"`
	Aggregation    time.Duration `json:"aggregation"`
	Total          time.Duration `json:"total"`
}

// ExtractionResult is the full output of one extraction.
type ExtractionResult struct {
	Text        string            `json:"text"`
	Tables      []TableRegion     `json:"tables"`
	Entities    []ConsensusEntity `json:"entities"`
	Quality     QualityMetrics    `json:"quality"`
	Strategy    StrategyPlan      `json:"strategy"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
	Timings     Timings           `json:"timings"`
	FromCache   bool              `json:"from_cache"`
}

// JobState is the server-side job state machine.
type JobState string

const (
	StateQueued         JobState = "queued"
	StateRouting        JobState = "routing"
	StateTableDetection JobState = "table_detection"
	StateEntityScanning JobState = "entity_scanning"
	StateAggregating    JobState = "aggregating"
	StateFinalizing     JobState = "finalizing"
	StateCompleted      JobState = "completed"
	StateFailed         JobState = "failed"
	StateCancelled      JobState = "cancelled"
)

// Terminal reports whether the state is a terminal job state.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}
