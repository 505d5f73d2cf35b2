package parser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html"

	"doc_ai/internal/document"
)

// HTMLParser reads HTML. h1-h6 open sections; block elements become chunks.
type HTMLParser struct{}

func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

func (p *HTMLParser) Name() string {
	return "html"
}

var (
	skippedElements = map[string]bool{
		"script": true, "style": true, "noscript": true, "template": true, "head": true,
	}
	headingLevels = map[string]int{
		"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6,
	}
	blockElements = map[string]bool{
		"p": true, "li": true, "pre": true, "blockquote": true, "td": true, "th": true,
		"dt": true, "dd": true, "figcaption": true, "caption": true,
	}
)

func (p *HTMLParser) Parse(_ context.Context, path string) (*document.UnifiedDocument, error) {
	doc, err := newDocument(path, "text/html")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	root, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", path, err)
	}

	w := &htmlWalker{}
	if title := findTitle(root); title != "" {
		doc.Meta.Title = title
	}
	if lang := findLang(root); lang != "" {
		doc.Meta.Language = lang
	}
	w.walk(root)
	w.flushLoose()
	w.flushSection()

	doc.Sections = w.sections
	return doc, nil
}

type htmlWalker struct {
	current  document.Section
	sections []document.Section
	loose    strings.Builder
}

func (w *htmlWalker) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.loose.WriteString(n.Data)
		w.loose.WriteString(" ")
		return
	case html.ElementNode:
		if skippedElements[n.Data] {
			return
		}
		if level, ok := headingLevels[n.Data]; ok {
			w.flushLoose()
			w.flushSection()
			w.current.Heading = collapse(textContent(n))
			w.current.Meta = map[string]any{"level": level}
			return
		}
		if blockElements[n.Data] {
			w.flushLoose()
			text := textContent(n)
			if n.Data != "pre" {
				text = collapse(text)
			}
			w.add(text, n.Data)
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *htmlWalker) add(text, tag string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	w.current.Chunks = append(w.current.Chunks, document.SourceChunk{
		Text:  text,
		Order: len(w.current.Chunks),
		Meta:  map[string]any{"tag": tag},
	})
}

// flushLoose emits text found outside any block element.
func (w *htmlWalker) flushLoose() {
	text := collapse(w.loose.String())
	w.loose.Reset()
	w.add(text, "text")
}

func (w *htmlWalker) flushSection() {
	if w.current.Heading != "" || len(w.current.Chunks) > 0 {
		w.sections = append(w.sections, w.current)
	}
	w.current = document.Section{}
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			buf.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return buf.String()
}

func findTitle(n *html.Node) string {
	if el := findElement(n, "title"); el != nil {
		var buf strings.Builder
		for c := el.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				buf.WriteString(c.Data)
			}
		}
		return collapse(buf.String())
	}
	return ""
}

func findLang(n *html.Node) string {
	if el := findElement(n, "html"); el != nil {
		for _, attr := range el.Attr {
			if attr.Key == "lang" {
				return attr.Val
			}
		}
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
