package source

import (
	"bytes"
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/doculens/extraction-engine/internal/domain"
)

// Synthetic geometry for spreadsheet cells. Spreadsheets already carry
// explicit grid structure; expressing each cell as a positioned run lets
// the same table detector serve both formats.
const (
	xlsxColPitch = 100.0
	xlsxRowPitch = 20.0
	xlsxCellW    = 90.0
	xlsxCellH    = 12.0
)

// XlsxSource decodes spreadsheets, one page per sheet.
type XlsxSource struct{}

// NewXlsxSource creates an xlsx text-run source.
func NewXlsxSource() *XlsxSource {
	return &XlsxSource{}
}

// Pages decodes every sheet into a page of synthetic positioned runs.
// A sheet that fails to read surfaces as a zero-run page.
func (s *XlsxSource) Pages(ctx context.Context, doc domain.Document) ([]domain.Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(doc.Content))
	if err != nil {
		return nil, domain.InputError("open xlsx", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	pages := make([]domain.Page, 0, len(sheets))

	for sheetIdx, sheet := range sheets {
		select {
		case <-ctx.Done():
			return pages, ctx.Err()
		default:
		}

		page := domain.Page{Index: sheetIdx}

		rows, err := f.GetRows(sheet)
		if err != nil {
			pages = append(pages, page)
			continue
		}

		var raw strings.Builder
		for rowIdx, row := range rows {
			for colIdx, cell := range row {
				text := strings.TrimSpace(cell)
				if text == "" {
					continue
				}
				page.Runs = append(page.Runs, domain.TextRun{
					PageIndex: sheetIdx,
					Text:      text,
					X:         float64(colIdx) * xlsxColPitch,
					Y:         float64(rowIdx) * xlsxRowPitch,
					Width:     xlsxCellW,
					Height:    xlsxCellH,
					FontSize:  xlsxCellH,
				})
				raw.WriteString(text)
				raw.WriteByte(' ')
			}
		}

		page.RawText = strings.TrimSpace(raw.String())
		pages = append(pages, page)
	}

	return pages, nil
}
