package tabledetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doculens/extraction-engine/internal/domain"
)

// financialRuns is a minimal two-column table with a clean header row
// and a numeric amount column.
func financialRuns() []domain.TextRun {
	return []domain.TextRun{
		{Text: "Item", X: 10, Y: 0},
		{Text: "Amount", X: 100, Y: 0},
		{Text: "Payment", X: 10, Y: 20},
		{Text: "$50,000", X: 100, Y: 20},
	}
}

func TestDetector_Detect_TwoColumnFinancialTable(t *testing.T) {
	d := New(DefaultConfig())

	regions := d.Detect(financialRuns())
	require.Len(t, regions, 1)

	region := regions[0]
	assert.Equal(t, 2, region.RowCount)
	assert.Equal(t, 2, region.ColCount)
	assert.True(t, HasHeader(region), "Item/Amount row should be a header")

	// base 0.5 + header 0.20 + uniform rows 0.15 + numeric column 0.10
	// + keyword 0.05 = 1.0
	assert.GreaterOrEqual(t, region.Confidence, 0.80)
	assert.Equal(t, domain.RegionFinancial, region.RegionType)

	assert.Equal(t, "Item", region.CellAt(0, 0).Text)
	assert.Equal(t, "Amount", region.CellAt(0, 1).Text)
	assert.Equal(t, "Payment", region.CellAt(1, 0).Text)
	assert.Equal(t, "$50,000", region.CellAt(1, 1).Text)
}

func TestDetector_Detect_GridIsAlwaysRectangular(t *testing.T) {
	d := New(DefaultConfig())

	// The second body row is missing its middle cell; the grid must
	// still be rectangular with an empty cell in its place.
	runs := []domain.TextRun{
		{Text: "Service", X: 10, Y: 0},
		{Text: "Fee", X: 110, Y: 0},
		{Text: "Status", X: 210, Y: 0},
		{Text: "Filing", X: 10, Y: 15},
		{Text: "$400", X: 110, Y: 15},
		{Text: "Done", X: 210, Y: 15},
		{Text: "Review", X: 10, Y: 30},
		{Text: "Pending", X: 210, Y: 30},
	}

	regions := d.Detect(runs)
	require.Len(t, regions, 1)

	region := regions[0]
	assert.Len(t, region.Cells, region.RowCount*region.ColCount)

	seen := make(map[[2]int]int)
	for _, cell := range region.Cells {
		seen[[2]int{cell.Row, cell.Col}]++
	}
	assert.Len(t, seen, region.RowCount*region.ColCount, "every (row, col) pair present exactly once")

	assert.Equal(t, "", region.CellAt(2, 1).Text, "missing cell is empty, not absent")
}

func TestDetector_Detect_Deterministic(t *testing.T) {
	d := New(DefaultConfig())

	want := d.Detect(financialRuns())
	for i := 0; i < 5; i++ {
		assert.Equal(t, want, d.Detect(financialRuns()))
	}
}

func TestDetector_Detect_RejectsProse(t *testing.T) {
	d := New(DefaultConfig())

	// Single-column flowing text never promotes to a table.
	runs := []domain.TextRun{
		{Text: "This agreement is entered into by the parties", X: 10, Y: 0},
		{Text: "as of the date written below, and supersedes", X: 10, Y: 15},
		{Text: "all prior understandings between them.", X: 10, Y: 30},
	}

	assert.Empty(t, d.Detect(runs))
}

func TestDetector_Detect_EmptyInput(t *testing.T) {
	d := New(DefaultConfig())

	assert.Empty(t, d.Detect(nil))
	assert.Empty(t, d.Detect([]domain.TextRun{}))
}

func TestDetector_Detect_JitteredRowsGroupTogether(t *testing.T) {
	d := New(DefaultConfig())

	// Sub-pixel y jitter within the row tolerance must not split rows.
	runs := []domain.TextRun{
		{Text: "Qty", X: 10, Y: 100.0},
		{Text: "Rate", X: 90, Y: 101.5},
		{Text: "12", X: 10, Y: 120.2},
		{Text: "$35.00", X: 90, Y: 119.1},
	}

	regions := d.Detect(runs)
	require.Len(t, regions, 1)
	assert.Equal(t, 2, regions[0].RowCount)
}

func TestDetector_Detect_OverlapKeepsStrongerRegion(t *testing.T) {
	d := New(DefaultConfig())

	// A ragged lead-in row above a well-formed table: the trimmed
	// candidate wins over the full block when it scores higher.
	runs := []domain.TextRun{
		{Text: "Exhibit B", X: 35, Y: 0},
		{Text: "attached hereto", X: 250, Y: 0},
		{Text: "Qty", X: 10, Y: 20},
		{Text: "Amount", X: 100, Y: 20},
		{Text: "3", X: 10, Y: 40},
		{Text: "$75", X: 100, Y: 40},
		{Text: "7", X: 10, Y: 60},
		{Text: "$125", X: 100, Y: 60},
	}

	regions := d.Detect(runs)
	require.NotEmpty(t, regions)

	for i, region := range regions {
		for j := i + 1; j < len(regions); j++ {
			assert.False(t, regionsOverlap(region, regions[j]), "no two emitted regions may overlap")
		}
	}
}

func TestDetector_Detect_ClassifiesScheduleTable(t *testing.T) {
	d := New(DefaultConfig())

	runs := []domain.TextRun{
		{Text: "Milestone", X: 10, Y: 0},
		{Text: "Deadline", X: 120, Y: 0},
		{Text: "Discovery", X: 10, Y: 20},
		{Text: "03/15/2024", X: 120, Y: 20},
		{Text: "Trial", X: 10, Y: 40},
		{Text: "11/01/2024", X: 120, Y: 40},
	}

	regions := d.Detect(runs)
	require.Len(t, regions, 1)
	assert.Equal(t, domain.RegionSchedule, regions[0].RegionType)
}

func TestIsNumericToken(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"$50,000", true},
		{"1,234.56", true},
		{"95%", true},
		{"(400)", true},
		{"-12", true},
		{"Amount", false},
		{"Q4", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isNumericToken(tt.input), "input %q", tt.input)
	}
}
