// Package parser turns files on disk into unified documents.
package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"doc_ai/internal/document"
)

// ErrUnsupported is returned for files no parser can read.
var ErrUnsupported = errors.New("unsupported document type")

// Parser reads one file format.
type Parser interface {
	Name() string
	Parse(ctx context.Context, path string) (*document.UnifiedDocument, error)
}

// newDocument creates a document with file metadata filled in.
func newDocument(path, contentType string) (*document.UnifiedDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	modified := info.ModTime()
	return document.New(document.Metadata{
		Source:      abs,
		Path:        abs,
		ContentType: contentType,
		Encoding:    "utf-8",
		Title:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		ModifiedAt:  &modified,
		Extra:       map[string]any{"size": info.Size()},
	}), nil
}

func readText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return normalize(string(b)), nil
}

// normalize converts to NFC and unifies line endings.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return norm.NFC.String(strings.TrimPrefix(s, "\ufeff"))
}

// collapse squeezes whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
