package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"doc_ai/internal/document"
	"doc_ai/internal/llm"
	"doc_ai/internal/parser"
	"doc_ai/internal/processor"
)

// ProcessFile parses and processes one file. The result is saved when an
// output path is set.
func (a *App) ProcessFile(ctx context.Context, path string, opts processor.Options) (*processor.Result, error) {
	doc, err := a.registry.Parse(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	a.log.Info("📄 document loaded", "path", path, "sections", len(doc.Sections), "type", doc.Meta.ContentType)

	res, err := a.processDocument(ctx, doc, a.outputPath, opts)
	if res != nil {
		a.printResult(doc, res)
	}
	return res, err
}

// FolderReport is the outcome of processing every document in a folder.
type FolderReport struct {
	Parse     parser.Summary
	Processed int
	Failed    []parser.Failure
}

// ProcessFolder processes every eligible document under root. With an output
// directory set, each result is saved as <name>_analysis.<ext> inside it.
func (a *App) ProcessFolder(
	ctx context.Context,
	root string,
	folder parser.FolderOptions,
	opts processor.Options,
) (*FolderReport, error) {
	docs, summary, err := a.registry.ParseFolder(ctx, root, folder)
	if err != nil {
		return nil, err
	}
	report := &FolderReport{Parse: summary}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := ""
		if a.outputPath != "" {
			out = filepath.Join(a.outputPath, analysisFileName(doc, a.format(opts)))
		}
		res, err := a.processDocument(ctx, doc, out, opts)
		if errors.Is(err, processor.ErrCancelled) {
			return report, err
		}
		if err != nil {
			a.log.Error("❌ processing failed", "source", doc.Meta.Source, "err", err)
			report.Failed = append(report.Failed, parser.Failure{Path: doc.Meta.Source, Error: err.Error()})
			continue
		}
		report.Processed++
		a.printResult(doc, res)
	}

	a.log.Info("📊 folder done",
		"found", summary.Found, "parsed", summary.Parsed, "processed", report.Processed,
		"failed", len(report.Failed)+summary.Failed)
	return report, nil
}

// ProcessFolderUnified merges every eligible document under root into one
// and processes it as a single document. With an output path set the result
// is saved there.
func (a *App) ProcessFolderUnified(
	ctx context.Context,
	root string,
	folder parser.FolderOptions,
	opts processor.Options,
) (*processor.Result, parser.Summary, error) {
	doc, summary, err := a.registry.ParseFolderUnified(ctx, root, folder)
	if err != nil {
		return nil, summary, err
	}
	a.log.Info("📂 folder merged", "path", root, "files", summary.Parsed, "sections", len(doc.Sections))

	res, err := a.processDocument(ctx, doc, a.outputPath, opts)
	if res != nil {
		a.printResult(doc, res)
	}
	return res, summary, err
}

func (a *App) processDocument(ctx context.Context, doc *document.UnifiedDocument, out string, opts processor.Options) (*processor.Result, error) {
	if opts.Progress == nil {
		opts.Progress = func(p processor.Progress) {
			a.log.Info("⏳ " + p.String())
		}
	}
	if out == "" {
		return a.processor.Process(ctx, doc, opts)
	}
	res, err := a.processor.ProcessAndSave(ctx, doc, out, opts)
	if res != nil {
		a.log.Info("💾 results saved", "path", out)
	}
	return res, err
}

func (a *App) format(opts processor.Options) llm.Format {
	if opts.Format != "" {
		return opts.Format
	}
	return a.cfg.ProcessorSettings().Format
}

// printResult writes a short human-readable digest of res.
func (a *App) printResult(doc *document.UnifiedDocument, res *processor.Result) {
	var buf strings.Builder
	buf.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	buf.WriteString(fmt.Sprintf("%s\n", displayName(doc)))
	buf.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	meta := res.Metadata
	if meta.Chunked {
		buf.WriteString(fmt.Sprintf("Chunks: %d/%d (budget %d tokens each)\n", meta.ProcessedChunks, meta.TotalChunks, meta.ChunkBudget))
	} else {
		buf.WriteString("Chunks: 1\n")
	}
	buf.WriteString(fmt.Sprintf("Estimated tokens: %d of %d usable\n", meta.EstimatedTokens, meta.UsableBudget))
	for _, w := range meta.Warnings {
		buf.WriteString(fmt.Sprintf("⚠️  %s\n", w))
	}
	buf.WriteString("\n")

	switch {
	case res.Format.Structured() && !res.Raw:
		if s := strings.TrimSpace(res.Summary()); s != "" {
			buf.WriteString(s)
			buf.WriteString("\n\n")
		}
		if topics := res.Topics(); len(topics) > 0 {
			buf.WriteString("Key topics: " + strings.Join(topics, ", ") + "\n")
		}
	default:
		buf.WriteString(strings.TrimSpace(res.Content))
		buf.WriteString("\n")
	}

	fmt.Fprint(a.out, buf.String())
}

func displayName(doc *document.UnifiedDocument) string {
	if doc.Meta.Title != "" {
		return doc.Meta.Title
	}
	return filepath.Base(doc.Meta.Source)
}

func analysisFileName(doc *document.UnifiedDocument, format llm.Format) string {
	base := strings.TrimSuffix(filepath.Base(doc.Meta.Source), filepath.Ext(doc.Meta.Source))
	return base + "_analysis" + extensionFor(format)
}

func extensionFor(format llm.Format) string {
	switch format {
	case llm.FormatStructuredJSON:
		return ".json"
	case llm.FormatMarkdown:
		return ".md"
	default:
		return ".txt"
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
