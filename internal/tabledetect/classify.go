package tabledetect

import (
	"regexp"
	"strings"

	"github.com/doculens/extraction-engine/internal/domain"
)

var (
	numericRe  = regexp.MustCompile(`^[-+(]?[$€£]?\s?\d[\d,.]*%?\)?$`)
	currencyRe = regexp.MustCompile(`[$€£]|\b(?:USD|EUR|GBP)\b|\b(?:amount|total|subtotal|balance|payment|invoice|fee)\b`)
	dateRe     = regexp.MustCompile(`\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2}|jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\b|\b(?:deadline|due|schedule|date)\b`)
)

// isNumericToken reports whether a cell text is a number, optionally
// carrying a currency symbol, grouping commas, percent sign or
// accounting parentheses.
func isNumericToken(text string) bool {
	return numericRe.MatchString(strings.TrimSpace(text))
}

// numericColumnCount counts columns whose every non-empty body cell is
// numeric. The header row is excluded; a column needs at least one
// non-empty body cell to count.
func numericColumnCount(cells []domain.Cell, colCount int) int {
	if colCount == 0 {
		return 0
	}

	count := 0
	for ci := 0; ci < colCount; ci++ {
		numeric := 0
		nonEmpty := 0
		for _, cell := range cells {
			if cell.Col != ci || cell.IsHeader || cell.Text == "" {
				continue
			}
			nonEmpty++
			if isNumericToken(cell.Text) {
				numeric++
			}
		}
		if nonEmpty > 0 && numeric == nonEmpty {
			count++
		}
	}
	return count
}

// numericCellFraction returns the fraction of non-empty body cells that
// are numeric.
func numericCellFraction(cells []domain.Cell) float64 {
	numeric := 0
	nonEmpty := 0
	for _, cell := range cells {
		if cell.IsHeader || cell.Text == "" {
			continue
		}
		nonEmpty++
		if isNumericToken(cell.Text) {
			numeric++
		}
	}
	if nonEmpty == 0 {
		return 0
	}
	return float64(numeric) / float64(nonEmpty)
}

// keywordDensity returns the fraction of non-empty cells matching a
// domain keyword pattern (currency or date tokens).
func keywordDensity(cells []domain.Cell) float64 {
	hits := 0
	nonEmpty := 0
	for _, cell := range cells {
		if cell.Text == "" {
			continue
		}
		nonEmpty++
		lower := strings.ToLower(cell.Text)
		if currencyRe.MatchString(lower) || dateRe.MatchString(lower) {
			hits++
		}
	}
	if nonEmpty == 0 {
		return 0
	}
	return float64(hits) / float64(nonEmpty)
}

// classify picks a region type by keyword and shape scoring: currency
// and amount tokens mark a financial table, date and deadline tokens a
// schedule, two symmetric text columns a comparison, anything else is
// general.
func classify(region domain.TableRegion) domain.RegionType {
	currencyHits := 0
	dateHits := 0
	nonEmpty := 0
	for _, cell := range region.Cells {
		if cell.Text == "" {
			continue
		}
		nonEmpty++
		lower := strings.ToLower(cell.Text)
		if currencyRe.MatchString(lower) {
			currencyHits++
		}
		if dateRe.MatchString(lower) {
			dateHits++
		}
	}
	if nonEmpty == 0 {
		return domain.RegionGeneral
	}

	switch {
	case currencyHits >= dateHits && currencyHits > 0:
		return domain.RegionFinancial
	case dateHits > 0:
		return domain.RegionSchedule
	case isComparisonShape(region):
		return domain.RegionComparison
	default:
		return domain.RegionGeneral
	}
}

// isComparisonShape reports whether the region looks like two named
// parties compared side by side: a header row of distinct names over at
// least two columns whose body content is predominantly text.
func isComparisonShape(region domain.TableRegion) bool {
	if region.ColCount < 2 || !HasHeader(region) {
		return false
	}

	textCols := 0
	for ci := 0; ci < region.ColCount; ci++ {
		numeric := 0
		nonEmpty := 0
		for _, cell := range region.Cells {
			if cell.Col != ci || cell.IsHeader || cell.Text == "" {
				continue
			}
			nonEmpty++
			if isNumericToken(cell.Text) {
				numeric++
			}
		}
		if nonEmpty > 0 && float64(numeric)/float64(nonEmpty) < 0.5 {
			textCols++
		}
	}

	return textCols >= 2
}
