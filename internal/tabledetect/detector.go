// Package tabledetect recovers tabular structure from positioned text
// runs on a page. Detection is a pure function over one page's runs, so
// pages can be processed in parallel without shared state.
package tabledetect

import (
	"math"
	"sort"
	"strings"

	"github.com/doculens/extraction-engine/internal/domain"
)

// Config holds detector tolerances and confidence bonus weights. The
// defaults are calibration starting points; callers tune them per corpus.
type Config struct {
	// RowToleranceY groups runs whose y centers fall within this distance
	// into the same row. Absorbs sub-pixel jitter from font rendering.
	RowToleranceY float64
	// ColToleranceX clusters x start coordinates into shared column
	// boundaries.
	ColToleranceX float64
	// MinColumnSupport is the fraction of rows that must have content
	// aligned at an x cluster for a column to exist there.
	MinColumnSupport float64
	// MinRegionRows is the minimum number of rows in a promoted region.
	MinRegionRows int

	BaseConfidence  float64
	HeaderBonus     float64
	UniformRowBonus float64
	NumericColBonus float64
	KeywordBonus    float64
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		RowToleranceY:    4.0,
		ColToleranceX:    12.0,
		MinColumnSupport: 0.5,
		MinRegionRows:    2,
		BaseConfidence:   0.5,
		HeaderBonus:      0.20,
		UniformRowBonus:  0.15,
		NumericColBonus:  0.10,
		KeywordBonus:     0.05,
	}
}

// Detector recovers table regions from a page of text runs.
type Detector struct {
	cfg Config
}

// New creates a detector.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.RowToleranceY <= 0 {
		cfg.RowToleranceY = def.RowToleranceY
	}
	if cfg.ColToleranceX <= 0 {
		cfg.ColToleranceX = def.ColToleranceX
	}
	if cfg.MinColumnSupport <= 0 {
		cfg.MinColumnSupport = def.MinColumnSupport
	}
	if cfg.MinRegionRows <= 0 {
		cfg.MinRegionRows = def.MinRegionRows
	}
	if cfg.BaseConfidence <= 0 {
		cfg.BaseConfidence = def.BaseConfidence
	}
	return &Detector{cfg: cfg}
}

// row is a group of runs sharing a y band, sorted left to right.
type row struct {
	y    float64 // mean y center
	runs []domain.TextRun
}

// Detect returns the table regions found on one page. A page with no
// groupable runs returns an empty list, never an error.
func (d *Detector) Detect(runs []domain.TextRun) []domain.TableRegion {
	if len(runs) == 0 {
		return nil
	}

	rows := d.groupRows(runs)
	if len(rows) < d.cfg.MinRegionRows {
		return nil
	}

	var candidates []domain.TableRegion
	for _, block := range d.segmentBlocks(rows) {
		candidates = append(candidates, d.promoteBlock(block)...)
	}

	return d.resolveOverlaps(candidates)
}

// groupRows sorts runs by (y, x) and merges runs whose y centers fall
// within the configured tolerance into the same row.
func (d *Detector) groupRows(runs []domain.TextRun) []row {
	sorted := make([]domain.TextRun, len(runs))
	copy(sorted, runs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows []row
	for _, run := range sorted {
		center := run.Y + run.Height/2
		placed := false
		for i := range rows {
			if math.Abs(rows[i].y-center) <= d.cfg.RowToleranceY {
				n := float64(len(rows[i].runs))
				rows[i].y = (rows[i].y*n + center) / (n + 1)
				rows[i].runs = append(rows[i].runs, run)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, row{y: center, runs: []domain.TextRun{run}})
		}
	}

	for i := range rows {
		sort.Slice(rows[i].runs, func(a, b int) bool {
			return rows[i].runs[a].X < rows[i].runs[b].X
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].y < rows[j].y })

	return rows
}

// block is a contiguous stretch of rows considered together.
type block struct {
	startRow int
	rows     []row
}

// segmentBlocks splits the page into contiguous stretches of rows that
// carry more than one run. Single-run rows are prose lines and break
// candidate regions.
func (d *Detector) segmentBlocks(rows []row) []block {
	var blocks []block
	var current []row
	start := 0

	flush := func() {
		if len(current) >= d.cfg.MinRegionRows {
			blocks = append(blocks, block{startRow: start, rows: current})
		}
		current = nil
	}

	for i, r := range rows {
		if len(r.runs) >= 2 {
			if current == nil {
				start = i
			}
			current = append(current, r)
		} else {
			flush()
		}
	}
	flush()

	return blocks
}

// inferColumns clusters the x start coordinates of all runs in a block.
// A cluster becomes a column only when at least MinColumnSupport of the
// rows have a run starting inside it.
func (d *Detector) inferColumns(rows []row) []float64 {
	type cluster struct {
		x     float64
		count int
		seen  map[int]bool // row indexes contributing to the cluster
	}

	var clusters []*cluster
	for ri, r := range rows {
		for _, run := range r.runs {
			placed := false
			for _, c := range clusters {
				if math.Abs(c.x-run.X) <= d.cfg.ColToleranceX {
					n := float64(c.count)
					c.x = (c.x*n + run.X) / (n + 1)
					c.count++
					c.seen[ri] = true
					placed = true
					break
				}
			}
			if !placed {
				clusters = append(clusters, &cluster{
					x:     run.X,
					count: 1,
					seen:  map[int]bool{ri: true},
				})
			}
		}
	}

	minRows := int(math.Ceil(d.cfg.MinColumnSupport * float64(len(rows))))
	if minRows < 1 {
		minRows = 1
	}

	var columns []float64
	for _, c := range clusters {
		if len(c.seen) >= minRows {
			columns = append(columns, c.x)
		}
	}
	sort.Float64s(columns)

	return columns
}

// nearestColumn returns the index of the column whose x is closest to
// the run start.
func nearestColumn(columns []float64, x float64) int {
	best := 0
	bestDist := math.Abs(columns[0] - x)
	for i := 1; i < len(columns); i++ {
		if dist := math.Abs(columns[i] - x); dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return best
}

// promoteBlock scores a block against the promotion heuristics and, when
// promoted, extracts the cell grid. It may yield two candidates for the
// same rows: the full block and a trimmed sub-block of conforming rows;
// overlap resolution keeps the better one.
func (d *Detector) promoteBlock(b block) []domain.TableRegion {
	columns := d.inferColumns(b.rows)
	if len(columns) < 2 {
		return nil
	}

	var candidates []domain.TableRegion
	if region, ok := d.buildRegion(b.rows, columns); ok {
		candidates = append(candidates, region)
	}

	// A sub-table nested inside the spacing of a larger block shows up
	// as a maximal stretch of rows conforming to the inferred columns.
	if trimmed := d.conformingSubBlock(b.rows, columns); trimmed != nil &&
		len(trimmed) < len(b.rows) && len(trimmed) >= d.cfg.MinRegionRows {
		subColumns := d.inferColumns(trimmed)
		if len(subColumns) >= 2 {
			if region, ok := d.buildRegion(trimmed, subColumns); ok {
				candidates = append(candidates, region)
			}
		}
	}

	return candidates
}

// conformingSubBlock returns the longest contiguous stretch of rows in
// which every run aligns with an inferred column.
func (d *Detector) conformingSubBlock(rows []row, columns []float64) []row {
	bestStart, bestLen := 0, 0
	curStart, curLen := 0, 0

	for i, r := range rows {
		if d.rowConforms(r, columns) {
			if curLen == 0 {
				curStart = i
			}
			curLen++
			if curLen > bestLen {
				bestStart, bestLen = curStart, curLen
			}
		} else {
			curLen = 0
		}
	}

	if bestLen == 0 {
		return nil
	}
	return rows[bestStart : bestStart+bestLen]
}

// rowConforms reports whether every run in the row starts within
// tolerance of an inferred column.
func (d *Detector) rowConforms(r row, columns []float64) bool {
	for _, run := range r.runs {
		col := nearestColumn(columns, run.X)
		if math.Abs(columns[col]-run.X) > d.cfg.ColToleranceX {
			return false
		}
	}
	return true
}

// buildRegion applies the promotion heuristics, extracts cells and
// scores the region. Promotion needs at least two of:
//
//	(a) >=60% of rows aligned to the inferred columns
//	(b) a column whose content is consistently numeric
//	(c) numeric-heavy cells overall
//	(d) domain keyword density above threshold
func (d *Detector) buildRegion(rows []row, columns []float64) (domain.TableRegion, bool) {
	aligned := 0
	for _, r := range rows {
		if d.rowConforms(r, columns) {
			aligned++
		}
	}
	alignedFraction := float64(aligned) / float64(len(rows))

	region := domain.TableRegion{
		PageIndex: rows[0].runs[0].PageIndex,
		RowCount:  len(rows),
		ColCount:  len(columns),
		Cells:     d.extractCells(rows, columns),
	}
	d.markHeader(&region)

	criteria := 0
	if alignedFraction >= 0.6 {
		criteria++
	}
	if numericColumnCount(region.Cells, region.ColCount) > 0 {
		criteria++
	}
	if numericCellFraction(region.Cells) >= 0.3 {
		criteria++
	}
	keywordHit := keywordDensity(region.Cells) >= 0.1
	if keywordHit {
		criteria++
	}
	if criteria < 2 {
		return domain.TableRegion{}, false
	}

	region.RegionType = classify(region)
	region.Confidence = d.score(region, rows, keywordHit)

	return region, true
}

// extractCells assigns each run to (row, nearest column) and joins runs
// mapped to the same cell with single spaces in left-to-right order.
// The resulting grid is rectangular: every (row, col) pair is present.
func (d *Detector) extractCells(rows []row, columns []float64) []domain.Cell {
	cells := make([]domain.Cell, len(rows)*len(columns))
	for ri := range rows {
		for ci := range columns {
			cells[ri*len(columns)+ci] = domain.Cell{Row: ri, Col: ci}
		}
	}

	for ri, r := range rows {
		for _, run := range r.runs {
			ci := nearestColumn(columns, run.X)
			cell := &cells[ri*len(columns)+ci]
			if cell.Text == "" {
				cell.Text = run.Text
			} else {
				cell.Text += " " + run.Text
			}
		}
	}

	return cells
}

// markHeader flags the first row as a header when all of its non-empty
// cells are distinct short non-numeric strings.
func (d *Detector) markHeader(region *domain.TableRegion) {
	if region.RowCount == 0 {
		return
	}

	seen := make(map[string]bool)
	nonEmpty := 0
	for ci := 0; ci < region.ColCount; ci++ {
		text := region.Cells[ci].Text
		if text == "" {
			continue
		}
		nonEmpty++
		lower := strings.ToLower(text)
		if seen[lower] || len(text) > 40 || isNumericToken(text) {
			return
		}
		seen[lower] = true
	}
	if nonEmpty == 0 {
		return
	}

	for ci := 0; ci < region.ColCount; ci++ {
		region.Cells[ci].IsHeader = true
	}
}

// HasHeader reports whether the region's first row is marked as header.
func HasHeader(region domain.TableRegion) bool {
	return region.ColCount > 0 && len(region.Cells) > 0 && region.Cells[0].IsHeader
}

// score computes the additive confidence, clamped to [0,1]:
// base, plus bonuses for a clean header row, uniform per-row column
// counts, a fully numeric column and domain keyword matches.
func (d *Detector) score(region domain.TableRegion, rows []row, keywordHit bool) float64 {
	confidence := d.cfg.BaseConfidence

	if HasHeader(region) {
		confidence += d.cfg.HeaderBonus
	}

	counts := make(map[int]int)
	for _, r := range rows {
		counts[len(r.runs)]++
	}
	for _, count := range counts {
		if float64(count) >= 0.9*float64(len(rows)) {
			confidence += d.cfg.UniformRowBonus
			break
		}
	}

	if numericColumnCount(region.Cells, region.ColCount) > 0 {
		confidence += d.cfg.NumericColBonus
	}

	if keywordHit {
		confidence += d.cfg.KeywordBonus
	}

	return math.Min(1.0, math.Max(0.0, confidence))
}

// resolveOverlaps drops the weaker of two overlapping candidates on the
// same page. Equal confidence retains the larger region.
func (d *Detector) resolveOverlaps(candidates []domain.TableRegion) []domain.TableRegion {
	if len(candidates) <= 1 {
		return candidates
	}

	// Strongest first; ties broken toward more rows, then grid order for
	// deterministic output.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].RowCount > candidates[j].RowCount
	})

	var kept []domain.TableRegion
	for _, cand := range candidates {
		overlaps := false
		for _, k := range kept {
			if cand.PageIndex == k.PageIndex && regionsOverlap(cand, k) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}

	return kept
}

// regionsOverlap reports whether two regions share any cell text: the
// detector builds candidates from row stretches, so sharing a non-empty
// first-cell text marks a nested candidate of the same rows.
func regionsOverlap(a, b domain.TableRegion) bool {
	texts := make(map[string]bool)
	for _, cell := range a.Cells {
		if cell.Text != "" {
			texts[cell.Text] = true
		}
	}
	for _, cell := range b.Cells {
		if cell.Text != "" && texts[cell.Text] {
			return true
		}
	}
	return false
}
