package source

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/doculens/extraction-engine/internal/domain"
)

// PlainTextSource treats the document bytes as text. It also serves as
// the last-resort fallback for unrecognized formats.
type PlainTextSource struct{}

// NewPlainTextSource creates a plain-text source.
func NewPlainTextSource() *PlainTextSource {
	return &PlainTextSource{}
}

// Pages yields one page per form-feed-separated section, or a single
// page when the text carries no page breaks. Invalid UTF-8 is an input
// error: there is nothing to extract from.
func (s *PlainTextSource) Pages(ctx context.Context, doc domain.Document) ([]domain.Page, error) {
	if !utf8.Valid(doc.Content) {
		return nil, domain.InputError("content is not valid text", nil)
	}

	sections := strings.Split(string(doc.Content), "\f")
	pages := make([]domain.Page, 0, len(sections))
	for i, section := range sections {
		pages = append(pages, domain.Page{
			Index:   i,
			RawText: strings.TrimSpace(section),
		})
	}

	return pages, nil
}
