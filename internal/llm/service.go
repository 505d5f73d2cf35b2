// Package llm is the completion-service boundary: a request/response contract
// and an OpenAI-compatible client behind it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Format is the requested output shape of a completion.
type Format string

const (
	FormatStructuredJSON Format = "structured_json"
	FormatMarkdown       Format = "markdown"
	FormatSummary        Format = "summary"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatStructuredJSON, FormatMarkdown, FormatSummary:
		return f, nil
	case "json":
		return FormatStructuredJSON, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// Structured reports whether replies are expected to be JSON objects.
func (f Format) Structured() bool {
	return f == FormatStructuredJSON
}

var (
	ErrAuth          = errors.New("completion service rejected credentials")
	ErrTokenLimit    = errors.New("completion request exceeded the model token limit")
	ErrEmptyResponse = errors.New("completion service returned no content")
	ErrService       = errors.New("completion service error")
)

// Request is one completion call.
type Request struct {
	Model       string
	Context     string // synopsis of earlier parts, empty for the first part
	Task        string
	Content     string
	Format      Format
	Part        int // 1-based part number, 0 when the document is sent whole
	TotalParts  int
	MaxTokens   int
	Temperature float64
}

// Response carries the raw reply text.
type Response struct {
	Text string
}

// Service is the completion service used by the processor.
type Service interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, req Request) (*Response, error)

func (f ServiceFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// classify maps a provider error onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "incorrect api key"),
		strings.Contains(msg, "invalid_api_key"):
		return fmt.Errorf("%w: %v", ErrAuth, err)
	case strings.Contains(msg, "context_length_exceeded"),
		strings.Contains(msg, "maximum context length"),
		strings.Contains(msg, "too many tokens"):
		return fmt.Errorf("%w: %v", ErrTokenLimit, err)
	default:
		return fmt.Errorf("%w: %v", ErrService, err)
	}
}
