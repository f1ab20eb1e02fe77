package domain

import (
	"time"
)

// MediaType identifiers for the supported container formats.
const (
	MediaTypePDF   = "application/pdf"
	MediaTypeDocx  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeXlsx  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MediaTypeText  = "text/plain"
	MediaTypeOctet = "application/octet-stream"
)

// Document is the immutable input to one extraction job.
type Document struct {
	Content   []byte
	MediaType string
	SourceURI string // original filename or path, informational only
	Size      int64
}

// Options configures a single extraction job.
type Options struct {
	EnableTables         bool
	EnableEntities       bool
	ConfidenceFloor      float64 // single-vote entities below this floor are suppressed
	UseCache             bool
	EngineAllowlist      []string // empty means all registered engines
	IncludeLowConfidence bool     // report single-engine votes below the floor anyway
}

// DefaultOptions returns the options applied when the caller leaves fields unset.
func DefaultOptions() Options {
	return Options{
		EnableTables:    true,
		EnableEntities:  true,
		ConfidenceFloor: 0.6,
		UseCache:        true,
	}
}

// Strategy is an extraction strategy chosen by the method router.
type Strategy string

const (
	StrategyNativeText   Strategy = "native-text"
	StrategyTableFocused Strategy = "table-focused"
	StrategyOCR          Strategy = "ocr"
	StrategyFallback     Strategy = "fallback"
)

// StrategyPlan is the router's decision: a primary strategy plus the
// fallbacks to try, in order, if the primary yields nothing usable.
type StrategyPlan struct {
	Primary       Strategy `json:"primary"`
	FallbackChain []Strategy `json:"fallback_chain"`
	LowConfidence bool     `json:"low_confidence"` // routing degraded to the raw fallback
}

// TextRun is a positioned string on a page.
type TextRun struct {
	PageIndex int
	Text      string
	X         float64
	Y         float64
	Width     float64
	Height    float64
	FontSize  float64
}

// Page holds the text-run source output for one page.
// A bad page surfaces as zero runs, never as an error.
type Page struct {
	Index     int
	Runs      []TextRun
	RawText   string // page-level text for non-positioned formats
	ImageOnly bool   // no machine-readable text on the page; OCR candidate
}

// RegionType classifies a detected table region.
type RegionType string

const (
	RegionFinancial  RegionType = "financial"
	RegionSchedule   RegionType = "schedule"
	RegionComparison RegionType = "comparison"
	RegionGeneral    RegionType = "general"
)

// Cell is one cell of a detected table grid.
type Cell struct {
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Text     string `json:"text"`
	IsHeader bool   `json:"is_header"`
}

// TableRegion is a rectangular grid of cells recovered from text-run
// geometry. The grid is always rectangular: len(Cells) == RowCount*ColCount
// and every (row, col) pair is present exactly once.
type TableRegion struct {
	PageIndex  int        `json:"page_index"`
	RowCount   int        `json:"row_count"`
	ColCount   int        `json:"col_count"`
	Cells      []Cell     `json:"cells"`
	RegionType RegionType `json:"region_type"`
	Confidence float64    `json:"confidence"`
}

// CellAt returns the cell at (row, col). The grid invariant guarantees
// the cell exists for indices inside the grid.
func (t *TableRegion) CellAt(row, col int) Cell {
	return t.Cells[row*t.ColCount+col]
}

// EntityType classifies an extracted entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityDate         EntityType = "date"
	EntityMoney        EntityType = "money"
	EntityCitation     EntityType = "citation"
)

// Span is a half-open [Start, End) byte range in the normalized text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// EngineVote is one engine's claim about an entity occurrence.
type EngineVote struct {
	EngineID   string     `json:"engine_id"`
	EntityText string     `json:"entity_text"`
	EntityType EntityType `json:"entity_type"`
	Span       Span       `json:"span"`
	Confidence float64    `json:"confidence"` // local confidence in [0,1]
}

// ConsensusEntity is an entity confirmed by aggregating engine votes.
type ConsensusEntity struct {
	EntityText      string       `json:"entity_text"` // display form from the highest-confidence vote
	CanonicalText   string       `json:"canonical_text"`
	EntityType      EntityType   `json:"entity_type"`
	SupportingVotes []EngineVote `json:"supporting_votes"`
	AgreementCount  int          `json:"agreement_count"`
	Confidence      float64      `json:"confidence"`
	SourceSpans     []Span       `json:"source_spans"`
}

// QualityMetrics summarizes how complete and trustworthy a result is.
// Each field is in [0,1] and derived deterministically from counts.
type QualityMetrics struct {
	TextQuality      float64 `json:"text_quality"`
	StructureQuality float64 `json:"structure_quality"`
	Completeness     float64 `json:"completeness"`
	Confidence       float64 `json:"confidence"`
}

// Diagnostic records one absorbed sub-failure attached to a result.
type Diagnostic struct {
	Stage     string `json:"stage"`
	PageIndex int    `json:"page_index,omitempty"`
	EngineID  string `json:"engine_id,omitempty"`
	Message   string `json:"message"`
}

// Timings records wall-clock durations per pipeline stage.
type Timings struct {
	Routing        time.Duration `json:"routing"`
	TableDetection time.Duration `json:"table_detection"`
	EntityScanning time.Duration `json:"entity_scanning"`
	Aggregation    time.Duration `json:"aggregation"`
	Total          time.Duration `json:"total"`
}

// ExtractionResult is the fully-formed output delivered to the caller.
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

// JobState is the extraction job state machine.
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

// ProgressUpdate is one entry in the ordered progress stream of a job.
type ProgressUpdate struct {
	JobID        string   `json:"job_id"`
	Stage        JobState `json:"stage"`
	Percent      float64  `json:"percent"`
	CurrentPage  int      `json:"current_page"`
	TotalPages   int      `json:"total_pages"`
	TableCount   int      `json:"table_count"`
	EntityCount  int      `json:"entity_count"`
	EnginesDone  int      `json:"engines_done"`
	TotalEngines int      `json:"total_engines"`
}
