package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"doc_ai/internal/chunker"
	"doc_ai/internal/document"
)

// PDFParser extracts plain text page by page. Each non-empty page becomes a
// section headed "Page n".
type PDFParser struct{}

func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

func (p *PDFParser) Name() string {
	return "pdf"
}

func (p *PDFParser) Parse(ctx context.Context, path string) (*document.UnifiedDocument, error) {
	doc, err := newDocument(path, "application/pdf")
	if err != nil {
		return nil, err
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	pages := r.NumPage()
	doc.Meta.Extra["pages"] = pages
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read page %d of %s: %w", i, path, err)
		}

		section := document.Section{
			Heading: fmt.Sprintf("Page %d", i),
			Meta:    map[string]any{"page": i},
		}
		for _, para := range chunker.SplitByParagraphs(normalize(content)) {
			if para = strings.TrimSpace(para); para != "" {
				section.Chunks = append(section.Chunks, document.SourceChunk{Text: para, Order: len(section.Chunks)})
			}
		}
		if len(section.Chunks) > 0 {
			doc.Sections = append(doc.Sections, section)
		}
	}
	return doc, nil
}
