package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"doc_ai/internal/config"
	"doc_ai/internal/document"
	"doc_ai/internal/llm"
	"doc_ai/internal/parser"
	"doc_ai/internal/processor"
)

type App struct {
	cfg        *config.Config
	registry   *parser.Registry
	processor  *processor.Processor
	log        *log.Logger
	out        io.Writer
	outputPath string
	procOpts   []processor.Option
}

// Option configures an App.
type Option func(*App)

// WithOutput redirects result printing. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		a.out = w
	}
}

// WithProcessorOptions passes options through to the processor.
func WithProcessorOptions(opts ...processor.Option) Option {
	return func(a *App) {
		a.procOpts = append(a.procOpts, opts...)
	}
}

// New wires the application around a completion service.
func New(cfg *config.Config, service llm.Service, logger *log.Logger, opts ...Option) *App {
	if logger == nil {
		logger = log.Default()
	}
	a := &App{
		cfg:      cfg,
		registry: parser.NewRegistry(),
		log:      logger,
		out:      os.Stdout,
		procOpts: []processor.Option{processor.WithLogger(logger)},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.processor = processor.New(service, cfg.ProcessorSettings(), a.procOpts...)
	return a
}

// NewFromConfig builds the OpenAI-compatible client from cfg and wires the app.
func NewFromConfig(cfg *config.Config, logger *log.Logger, opts ...Option) (*App, error) {
	client, err := llm.NewOpenAIClient(cfg.ClientConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}
	return New(cfg, client, logger, opts...), nil
}

// SetOutputPath makes the next processed document save to path.
func (a *App) SetOutputPath(path string) {
	a.outputPath = path
}

// Parse parses a single file into a unified document.
func (a *App) Parse(ctx context.Context, path string) (*document.UnifiedDocument, error) {
	return a.registry.Parse(ctx, path)
}
