package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"doc_ai/internal/document"
	"doc_ai/internal/logger"
)

// ignoredExtensions are source code, archives and media that are never
// treated as documents.
var ignoredExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".kt": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true,
	".cs": true, ".rb": true, ".php": true, ".rs": true, ".swift": true, ".scala": true,
	".sh": true, ".bash": true, ".ps1": true, ".sql": true, ".lua": true, ".pl": true,
	".css": true, ".scss": true, ".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".xml": true, ".lock": true, ".mod": true, ".sum": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true, ".o": true,
	".zip": true, ".tar": true, ".gz": true, ".7z": true, ".rar": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".ico": true,
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
}

// FolderContentType marks a document merged from a whole folder.
const FolderContentType = "application/x-folder"

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
}

// defaultExcludes always apply on top of FolderOptions.Exclude. Hidden files
// such as .env are covered here so they never reach the completion service.
var defaultExcludes = []string{
	"**/.*",
	"**/*.tmp",
	"**/*.temp",
	"**/*.log",
	"**/*.cache",
}

// FolderOptions control which files ParseFolder visits.
type FolderOptions struct {
	// Patterns are doublestar globs matched against slash-separated paths
	// relative to the root. Empty means every file.
	Patterns []string
	// Exclude globs drop matching files, and matching directories are not
	// descended into.
	Exclude   []string
	Recursive bool
}

// Failure is a file that could not be parsed.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Summary describes a folder run.
type Summary struct {
	Found          int            `json:"files_found"`
	Ignored        int            `json:"files_ignored"`
	Parsed         int            `json:"files_parsed"`
	Failed         int            `json:"files_failed"`
	Sections       int            `json:"total_sections"`
	TypesProcessed map[string]int `json:"types_processed"`
	Failures       []Failure      `json:"failures,omitempty"`
}

// ParseFolder parses every eligible file under root in lexical order.
// Per-file failures are recorded in the summary and do not stop the walk.
func (r *Registry) ParseFolder(ctx context.Context, root string, opts FolderOptions) ([]*document.UnifiedDocument, Summary, error) {
	summary := Summary{TypesProcessed: make(map[string]int)}
	for _, pattern := range append(append([]string{}, opts.Patterns...), opts.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, summary, fmt.Errorf("invalid pattern %q", pattern)
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
			return nil
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if !opts.Recursive || strings.HasPrefix(name, ".") || skippedDirs[name] {
			return filepath.SkipDir
		}
		if rel, err := filepath.Rel(root, path); err == nil && matchAny(filepath.ToSlash(rel), opts.Exclude) {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, summary, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)

	l := logger.FromContext(ctx)
	var docs []*document.UnifiedDocument
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return docs, summary, err
		}
		summary.Found++

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		if skipFile(filepath.ToSlash(rel), opts) || ignoredExtensions[strings.ToLower(filepath.Ext(path))] {
			summary.Ignored++
			continue
		}

		doc, err := r.Parse(ctx, path)
		switch {
		case errors.Is(err, ErrUnsupported):
			summary.Ignored++
			l.Debug("skipping unsupported file", "path", rel)
			continue
		case err != nil:
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{Path: rel, Error: err.Error()})
			l.Warn("failed to parse file", "path", rel, "err", err)
			continue
		}

		summary.Parsed++
		summary.Sections += len(doc.Sections)
		summary.TypesProcessed[doc.Meta.ContentType]++
		docs = append(docs, doc)
	}

	l.Info("folder parsed", logSummary(summary)...)
	return docs, summary, nil
}

// ParseFolderUnified parses a folder and merges every document into one, in
// lexical file order. Each file is introduced by a separator section, and
// every section records the file it came from under "original_file".
func (r *Registry) ParseFolderUnified(ctx context.Context, root string, opts FolderOptions) (*document.UnifiedDocument, Summary, error) {
	docs, summary, err := r.ParseFolder(ctx, root, opts)
	if err != nil {
		return nil, summary, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	unified := document.New(document.Metadata{
		Source:      abs,
		Path:        abs,
		ContentType: FolderContentType,
		Encoding:    "utf-8",
		Title:       filepath.Base(abs),
		Extra:       map[string]any{"files": len(docs)},
	})

	for i, doc := range docs {
		source := doc.Meta.Source
		unified.Sections = append(unified.Sections, document.Section{
			Heading: fmt.Sprintf("--- File %d: %s ---", i+1, source),
			Chunks:  []document.SourceChunk{},
			Meta:    map[string]any{"file_separator": true, "original_file": source},
		})
		for _, section := range doc.Sections {
			meta := make(map[string]any, len(section.Meta)+1)
			for k, v := range section.Meta {
				meta[k] = v
			}
			meta["original_file"] = source
			section.Meta = meta
			unified.Sections = append(unified.Sections, section)
		}
	}
	return unified, summary, nil
}

func skipFile(rel string, opts FolderOptions) bool {
	if matchAny(rel, defaultExcludes) || matchAny(rel, opts.Exclude) {
		return true
	}
	return len(opts.Patterns) > 0 && !matchAny(rel, opts.Patterns)
}

func matchAny(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func logSummary(s Summary) []any {
	return []any{
		"found", s.Found,
		"parsed", s.Parsed,
		"ignored", s.Ignored,
		"failed", s.Failed,
		"sections", s.Sections,
	}
}
