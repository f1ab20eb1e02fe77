package source

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/doculens/extraction-engine/internal/domain"
)

// DocxSource decodes word-processor documents. OOXML carries no page
// geometry, so the whole body surfaces as one page of raw text.
type DocxSource struct{}

// NewDocxSource creates a docx text-run source.
func NewDocxSource() *DocxSource {
	return &DocxSource{}
}

// OOXML structures, limited to the parts the extraction needs.
type docxDocument struct {
	Body docxBody `xml:"body"`
}

type docxBody struct {
	Paragraphs []docxParagraph `xml:"p"`
	Tables     []docxTable     `xml:"tbl"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Texts []string `xml:"t"`
}

type docxTable struct {
	Rows []docxTableRow `xml:"tr"`
}

type docxTableRow struct {
	Cells []docxTableCell `xml:"tc"`
}

type docxTableCell struct {
	Paragraphs []docxParagraph `xml:"p"`
}

// Pages decodes the document body into a single raw-text page. Table
// cells are joined with tab separators so the downstream text keeps the
// row structure visible.
func (s *DocxSource) Pages(ctx context.Context, doc domain.Document) ([]domain.Page, error) {
	reader, err := zip.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	if err != nil {
		return nil, domain.InputError("open docx container", err)
	}

	var docFile *zip.File
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, domain.InputError("docx missing word/document.xml", nil)
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, domain.InputError("open word/document.xml", err)
	}
	defer rc.Close()

	xmlContent, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.InputError("read word/document.xml", err)
	}

	var parsed docxDocument
	if err := xml.Unmarshal(xmlContent, &parsed); err != nil {
		return nil, domain.InputError("parse word/document.xml", err)
	}

	var text strings.Builder
	for _, p := range parsed.Body.Paragraphs {
		line := paragraphText(p)
		if line != "" {
			text.WriteString(line)
			text.WriteByte('\n')
		}
	}
	for _, tbl := range parsed.Body.Tables {
		for _, row := range tbl.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				var cellText strings.Builder
				for _, p := range cell.Paragraphs {
					if line := paragraphText(p); line != "" {
						if cellText.Len() > 0 {
							cellText.WriteByte(' ')
						}
						cellText.WriteString(line)
					}
				}
				cells = append(cells, cellText.String())
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteByte('\n')
		}
	}

	return []domain.Page{{
		Index:   0,
		RawText: strings.TrimSpace(text.String()),
	}}, nil
}

func paragraphText(p docxParagraph) string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Texts {
			b.WriteString(t)
		}
	}
	return strings.TrimSpace(b.String())
}
