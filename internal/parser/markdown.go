package parser

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"doc_ai/internal/document"
)

// MarkdownParser reads markdown. Every heading opens a section; paragraphs,
// list items and code blocks become its chunks.
type MarkdownParser struct {
	md goldmark.Markdown
}

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{md: goldmark.New()}
}

func (m *MarkdownParser) Name() string {
	return "markdown"
}

func (m *MarkdownParser) Parse(_ context.Context, path string) (*document.UnifiedDocument, error) {
	doc, err := newDocument(path, "text/markdown")
	if err != nil {
		return nil, err
	}
	content, err := readText(path)
	if err != nil {
		return nil, err
	}

	source := []byte(content)
	root := m.md.Parser().Parse(text.NewReader(source))

	var (
		current  document.Section
		title    string
		sections []document.Section
	)
	flush := func() {
		if current.Heading != "" || len(current.Chunks) > 0 {
			sections = append(sections, current)
		}
		current = document.Section{}
	}
	addChunk := func(s string, kind string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		current.Chunks = append(current.Chunks, document.SourceChunk{
			Text:  s,
			Order: len(current.Chunks),
			Meta:  map[string]any{"type": kind},
		})
	}

	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			flush()
			current.Heading = inlineText(node, source)
			current.Meta = map[string]any{"level": node.Level}
			if node.Level == 1 && title == "" {
				title = current.Heading
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			addChunk(inlineText(node, source), "paragraph")
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			addChunk(blockLines(node, source), "code")
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	flush()

	doc.Sections = sections
	if title != "" {
		doc.Meta.Title = title
	}
	return doc, nil
}

// inlineText concatenates the text of a node's inline children.
func inlineText(node ast.Node, source []byte) string {
	var buf strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch t := child.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteString("\n")
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.WriteString(inlineText(child, source))
		}
	}
	return buf.String()
}

func blockLines(node ast.Node, source []byte) string {
	var buf strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}
