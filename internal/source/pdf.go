package source

import (
	"bytes"
	"context"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/doculens/extraction-engine/internal/domain"
)

// PDFSource decodes PDF bytes into positioned text runs per page.
type PDFSource struct{}

// NewPDFSource creates a PDF text-run source.
func NewPDFSource() *PDFSource {
	return &PDFSource{}
}

// Pages decodes every page of the PDF. A page that fails to decode
// surfaces as a zero-run page; only an unreadable document as a whole
// returns an input error.
func (s *PDFSource) Pages(ctx context.Context, doc domain.Document) ([]domain.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	if err != nil {
		return nil, domain.InputError("open pdf", err)
	}

	total := reader.NumPage()
	pages := make([]domain.Page, 0, total)

	for i := 1; i <= total; i++ {
		select {
		case <-ctx.Done():
			return pages, ctx.Err()
		default:
		}

		page := s.decodePage(reader, i)
		pages = append(pages, page)
	}

	return pages, nil
}

// decodePage extracts positioned runs from one page. The underlying
// library panics on some malformed content streams; a panic yields a
// zero-run page instead of propagating.
func (s *PDFSource) decodePage(reader *pdf.Reader, pageNum int) (page domain.Page) {
	page = domain.Page{Index: pageNum - 1}

	defer func() {
		if r := recover(); r != nil {
			page.Runs = nil
			page.RawText = ""
			page.ImageOnly = false
		}
	}()

	p := reader.Page(pageNum)
	if p.V.IsNull() {
		return page
	}

	content := p.Content()
	if len(content.Text) == 0 {
		// No machine-readable text on this page; likely a scanned image.
		page.ImageOnly = true
		return page
	}

	var raw strings.Builder
	runs := make([]domain.TextRun, 0, len(content.Text))
	for _, t := range content.Text {
		text := strings.TrimSpace(t.S)
		if text == "" {
			continue
		}
		runs = append(runs, domain.TextRun{
			PageIndex: pageNum - 1,
			Text:      text,
			X:         t.X,
			Y:         t.Y,
			Width:     t.W,
			Height:    t.FontSize,
			FontSize:  t.FontSize,
		})
		raw.WriteString(text)
		raw.WriteByte(' ')
	}

	if len(runs) == 0 {
		page.ImageOnly = true
		return page
	}

	page.Runs = runs
	page.RawText = strings.TrimSpace(raw.String())
	return page
}
