package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"doc_ai/internal/parser"
	"doc_ai/internal/processor"
)

// Run reads one path per line from in and processes each file or folder
// until in is closed or ctx is cancelled.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	a.log.Info("Application started")
	a.log.Info("Enter a file or folder path to analyze (one per line). Ctrl+C to exit.")

	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		const maxLineSize = 1024 * 1024
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errs <- nil
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("Shutting down application")
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-errs; err != nil {
					return fmt.Errorf("stdin error: %w", err)
				}
				a.log.Info("stdin closed")
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			a.handlePath(ctx, line)
		}
	}
}

// handlePath processes one interactive entry. Results are saved next to the
// working directory under a timestamped name.
func (a *App) handlePath(ctx context.Context, path string) {
	a.log.Info("Received input", "path", path)

	if _, err := os.Stat(path); err != nil {
		a.log.Error("❌ cannot open path", "path", path, "err", err)
		return
	}

	timestamp := time.Now().Format("20060102_150405")
	defer a.SetOutputPath("")

	if isDir(path) {
		a.SetOutputPath(fmt.Sprintf("%s_analysis_%s", filepath.Base(filepath.Clean(path)), timestamp))
		if _, err := a.ProcessFolder(ctx, path, parser.FolderOptions{Recursive: true}, processor.Options{}); err != nil {
			a.log.Error("❌ Processing failed", "err", err)
		}
		return
	}

	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	a.SetOutputPath(fmt.Sprintf("%s_analysis_%s%s", baseName, timestamp, extensionFor(a.format(processor.Options{}))))
	if _, err := a.ProcessFile(ctx, path, processor.Options{}); err != nil {
		a.log.Error("❌ Processing failed", "err", err)
	}
}
