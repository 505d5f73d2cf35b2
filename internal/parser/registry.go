package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"doc_ai/internal/document"
)

// Registry picks a parser for a file.
type Registry struct {
	byName map[string]Parser
	byExt  map[string]Parser
}

// NewRegistry creates a registry with the built-in parsers.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]Parser),
		byExt:  make(map[string]Parser),
	}
	r.Register(NewTextParser(), ".txt", ".text", ".log", ".csv", ".rst")
	r.Register(NewMarkdownParser(), ".md", ".markdown", ".mdown")
	r.Register(NewHTMLParser(), ".html", ".htm", ".xhtml")
	r.Register(NewPDFParser(), ".pdf")
	return r
}

// Register adds p under its name and the given extensions.
func (r *Registry) Register(p Parser, exts ...string) {
	r.byName[p.Name()] = p
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// Get returns a parser by name. "md" and "txt" are accepted as aliases.
func (r *Registry) Get(name string) (Parser, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "md":
		name = "markdown"
	case "txt", "plain":
		name = "text"
	default:
		name = n
	}
	if p, ok := r.byName[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: unknown parser %q", ErrUnsupported, name)
}

// For picks a parser by extension, falling back to content sniffing.
func (r *Registry) For(path string) (Parser, error) {
	if p, ok := r.byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return p, nil
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect type of %s: %w", path, err)
	}
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/pdf"):
			return r.byName["pdf"], nil
		case m.Is("text/html"):
			return r.byName["html"], nil
		case m.Is("text/plain"):
			return r.byName["text"], nil
		}
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, filepath.Base(path), mt.String())
}

// Parse parses path with the matching parser.
func (r *Registry) Parse(ctx context.Context, path string) (*document.UnifiedDocument, error) {
	p, err := r.For(path)
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, path)
}
