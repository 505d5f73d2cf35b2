package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"doc_ai/internal/document"
	"doc_ai/internal/llm"
)

// Save writes res to path. Structured results are written as indented JSON;
// text results are written as-is, with a report header for markdown. name
// labels the report.
func Save(res *Result, path, name string) error {
	if res == nil {
		return fmt.Errorf("save %s: nil result", path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	var body []byte
	switch {
	case res.Format.Structured() && !res.Raw:
		b, err := json.MarshalIndent(res.ToMap(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		body = append(b, '\n')
	case res.Format == llm.FormatMarkdown:
		body = []byte(report(res, name))
	default:
		body = []byte(res.Content)
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func report(res *Result, name string) string {
	var buf strings.Builder
	buf.WriteString(fmt.Sprintf("# Document analysis: %s\n\n", name))
	buf.WriteString(fmt.Sprintf("**Processed at:** %s\n\n", time.Now().Format("2006-01-02 15:04:05")))
	buf.WriteString(fmt.Sprintf("**Model:** %s\n\n", res.Metadata.Model))
	if res.Metadata.Chunked {
		buf.WriteString(fmt.Sprintf("**Chunks:** %d of %d processed\n\n", res.Metadata.ProcessedChunks, res.Metadata.TotalChunks))
	}
	for _, w := range res.Metadata.Warnings {
		buf.WriteString(fmt.Sprintf("> %s\n\n", w))
	}
	buf.WriteString("## Analysis\n\n")
	buf.WriteString(strings.TrimSpace(res.Content))
	buf.WriteString("\n")
	return buf.String()
}

// ProcessAndSave runs Process and saves whatever result it produced, so a
// cancelled run still leaves its partial output on disk.
func (p *Processor) ProcessAndSave(ctx context.Context, doc *document.UnifiedDocument, path string, opts Options) (*Result, error) {
	res, err := p.Process(ctx, doc, opts)
	if res == nil {
		return nil, err
	}
	if serr := Save(res, path, reportName(doc)); serr != nil {
		if err != nil {
			return res, fmt.Errorf("%w (save also failed: %v)", err, serr)
		}
		return res, serr
	}
	p.logger(ctx).Info("results saved", "path", path)
	return res, err
}

func reportName(doc *document.UnifiedDocument) string {
	if doc == nil {
		return "document"
	}
	if doc.Meta.Title != "" {
		return doc.Meta.Title
	}
	if doc.Meta.Source != "" {
		return filepath.Base(doc.Meta.Source)
	}
	return "document"
}
