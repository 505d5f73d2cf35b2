package parser

import (
	"context"
	"strings"

	"doc_ai/internal/chunker"
	"doc_ai/internal/document"
)

// TextParser reads plain text. Blank-line separated paragraphs become the
// chunks of a single section.
type TextParser struct{}

func NewTextParser() *TextParser {
	return &TextParser{}
}

func (p *TextParser) Name() string {
	return "text"
}

func (p *TextParser) Parse(_ context.Context, path string) (*document.UnifiedDocument, error) {
	doc, err := newDocument(path, "text/plain")
	if err != nil {
		return nil, err
	}
	content, err := readText(path)
	if err != nil {
		return nil, err
	}

	section := document.Section{}
	for _, para := range chunker.SplitByParagraphs(content) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		section.Chunks = append(section.Chunks, document.SourceChunk{
			Text:  para,
			Order: len(section.Chunks),
		})
	}
	if len(section.Chunks) > 0 {
		doc.Sections = append(doc.Sections, section)
	}
	return doc, nil
}
