// Package source provides the text-run sources that decode container
// formats into per-page positioned text runs or page-level raw text.
package source

import (
	"bytes"
	"context"

	"github.com/doculens/extraction-engine/internal/domain"
)

// Registry maps declared media types to text-run sources. Unknown types
// fall back to content sniffing and finally to the plain-text source.
type Registry struct {
	sources  map[string]domain.TextRunSource
	fallback domain.TextRunSource
}

// NewRegistry creates a registry with all built-in sources registered.
func NewRegistry() *Registry {
	r := &Registry{
		sources:  make(map[string]domain.TextRunSource),
		fallback: NewPlainTextSource(),
	}

	r.Register(domain.MediaTypePDF, NewPDFSource())
	r.Register(domain.MediaTypeDocx, NewDocxSource())
	r.Register(domain.MediaTypeXlsx, NewXlsxSource())
	r.Register("application/vnd.ms-excel", NewXlsxSource())
	r.Register(domain.MediaTypeText, NewPlainTextSource())
	r.Register("text/markdown", NewPlainTextSource())

	return r
}

// Register registers a source for a media type.
func (r *Registry) Register(mediaType string, src domain.TextRunSource) {
	r.sources[mediaType] = src
}

// For returns the source for the document, sniffing the content when the
// declared media type is unknown.
func (r *Registry) For(doc domain.Document) domain.TextRunSource {
	if src, ok := r.sources[doc.MediaType]; ok {
		return src
	}
	if sniffed := SniffMediaType(doc.Content); sniffed != "" {
		if src, ok := r.sources[sniffed]; ok {
			return src
		}
	}
	return r.fallback
}

// Pages decodes the document with the registered source for its type.
func (r *Registry) Pages(ctx context.Context, doc domain.Document) ([]domain.Page, error) {
	return r.For(doc).Pages(ctx, doc)
}

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// SniffMediaType inspects leading bytes to guess the container format.
// Returns an empty string when nothing is recognized.
func SniffMediaType(content []byte) string {
	if bytes.HasPrefix(content, pdfMagic) {
		return domain.MediaTypePDF
	}
	if bytes.HasPrefix(content, zipMagic) {
		// OOXML containers are zip archives; the part names tell them apart.
		if bytes.Contains(content, []byte("word/")) {
			return domain.MediaTypeDocx
		}
		if bytes.Contains(content, []byte("xl/")) {
			return domain.MediaTypeXlsx
		}
	}
	return ""
}
