// Package processor sends documents to the completion service, splitting
// those that exceed the model's usable context and folding the per-chunk
// replies back into a single result.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"doc_ai/internal/chunker"
	"doc_ai/internal/document"
	"doc_ai/internal/llm"
	"doc_ai/internal/logger"
	"doc_ai/internal/tokens"
)

// Settings are the processor defaults. Per-call Options override the
// model, task, format and chunk size.
type Settings struct {
	Model             string
	Task              string
	Format            llm.Format
	ChunkSize         int // usable-budget override, 0 derives it from the model
	ContextTokens     int // upper bound on the carried synopsis
	MaxResponseTokens int
	Temperature       float64
	RequestTimeout    time.Duration
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		Model:             "gpt-4o-mini",
		Task:              "analyze and restructure",
		Format:            llm.FormatStructuredJSON,
		ContextTokens:     300,
		MaxResponseTokens: 4000,
		Temperature:       0.3,
		RequestTimeout:    2 * time.Minute,
	}
}

// Progress is reported before each completion request.
type Progress struct {
	Index  int
	Total  int
	Tokens int
}

func (p Progress) String() string {
	return fmt.Sprintf("processing chunk %d/%d", p.Index+1, p.Total)
}

// ProgressFunc receives progress events in chunk order.
type ProgressFunc func(Progress)

// Options are the per-call knobs. Zero values fall back to Settings.
type Options struct {
	Task      string
	Format    llm.Format
	Model     string
	ChunkSize int
	Progress  ProgressFunc
}

// Processor is the document-processing facade.
type Processor struct {
	service   llm.Service
	settings  Settings
	estimator func(model string) *tokens.Estimator
	log       *log.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithEstimator replaces the tiktoken-backed estimator lookup.
func WithEstimator(fn func(model string) *tokens.Estimator) Option {
	return func(p *Processor) {
		if fn != nil {
			p.estimator = fn
		}
	}
}

// WithLogger pins the logger. Without it the logger is taken from the call context.
func WithLogger(l *log.Logger) Option {
	return func(p *Processor) {
		p.log = l
	}
}

// New creates a processor on top of service.
func New(service llm.Service, settings Settings, opts ...Option) *Processor {
	p := &Processor{
		service:   service,
		settings:  settings,
		estimator: tokens.ForModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) logger(ctx context.Context) *log.Logger {
	if p.log != nil {
		return p.log
	}
	return logger.FromContext(ctx)
}

func (p *Processor) resolve(opts Options) (Options, error) {
	if opts.Task == "" {
		opts.Task = p.settings.Task
	}
	if opts.Model == "" {
		opts.Model = p.settings.Model
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = p.settings.ChunkSize
	}
	if opts.Format == "" {
		opts.Format = p.settings.Format
	}
	format, err := llm.ParseFormat(string(opts.Format))
	if err != nil {
		return opts, err
	}
	opts.Format = format
	return opts, nil
}

// Process analyzes doc. Documents within the usable budget go out in a single
// request; larger ones are split and processed sequentially, each request
// carrying a synopsis of the parts before it.
//
// A failed request returns a *ChunkRequestError holding the partial results.
// Cancellation between chunks returns the combined partial result, marked
// incomplete, together with an error wrapping ErrCancelled.
func (p *Processor) Process(ctx context.Context, doc *document.UnifiedDocument, opts Options) (*Result, error) {
	opts, err := p.resolve(opts)
	if err != nil {
		return nil, err
	}
	l := p.logger(ctx)

	budget := tokens.ComputeBudget(opts.Model, opts.ChunkSize)
	est := p.estimator(opts.Model)
	meta := ProcessingMetadata{
		Model:            opts.Model,
		MaxContextTokens: budget.MaxContext,
		ReservedFraction: budget.ReservedFraction,
		UsableBudget:     budget.Usable,
		Encoding:         est.Encoding,
	}
	if !budget.KnownModel && !budget.Overridden {
		meta.UnknownModel = true
		meta.Warnings = append(meta.Warnings,
			fmt.Sprintf("no context limits known for model %q; assuming %d tokens", opts.Model, budget.MaxContext))
	}
	if est.Degraded {
		meta.EstimationDegraded = true
		meta.Warnings = append(meta.Warnings, "token counts are approximate: tokenizer unavailable")
		l.Warn("token estimation degraded", "model", opts.Model, "err", est.Err)
	}

	if doc.IsEmpty() {
		l.Info("document is empty, nothing to process")
		return emptyResult(opts.Format, meta), nil
	}

	text := doc.Text()
	total := est.CountTokens(text)
	meta.EstimatedTokens = total
	l.Info("processing document",
		"source", doc.Meta.Source, "tokens", total, "usable", budget.Usable, "model", opts.Model)

	if total <= budget.Usable {
		return p.single(ctx, text, total, meta, opts)
	}
	return p.chunked(ctx, doc, est, budget, meta, opts)
}

func (p *Processor) single(ctx context.Context, text string, total int, meta ProcessingMetadata, opts Options) (*Result, error) {
	notify(opts.Progress, Progress{Index: 0, Total: 1, Tokens: total})

	reply, err := p.complete(ctx, llm.Request{
		Model:       opts.Model,
		Task:        opts.Task,
		Content:     text,
		Format:      opts.Format,
		MaxTokens:   p.settings.MaxResponseTokens,
		Temperature: p.settings.Temperature,
	})
	if err != nil {
		return nil, &ChunkRequestError{Index: 0, Total: 1, Err: err}
	}

	res := parseReply(0, opts.Format, reply.Text)
	meta.TotalChunks = 1
	meta.ProcessedChunks = 1
	return &Result{
		Format:   opts.Format,
		Fields:   res.Fields,
		Content:  res.Content,
		Raw:      res.Raw,
		Metadata: meta,
	}, nil
}

func (p *Processor) chunked(
	ctx context.Context,
	doc *document.UnifiedDocument,
	est *tokens.Estimator,
	budget tokens.Budget,
	meta ProcessingMetadata,
	opts Options,
) (*Result, error) {
	l := p.logger(ctx)

	reserve := contextReserve(budget.Usable, p.settings.ContextTokens)
	meta.ChunkBudget = budget.Usable - reserve
	meta.ContextTokens = reserve

	chunks, err := chunker.NewSplitter(est, l).SplitDocument(doc, meta.ChunkBudget)
	if err != nil {
		return nil, fmt.Errorf("split document: %w", err)
	}
	meta.TotalChunks = len(chunks)
	for _, c := range chunks {
		if c.Forced {
			meta.ForcedSplits++
		}
	}
	if meta.ForcedSplits > 0 {
		meta.Warnings = append(meta.Warnings,
			fmt.Sprintf("%d chunk(s) were cut mid-sentence to fit the token budget", meta.ForcedSplits))
	}
	l.Info("document split", "chunks", len(chunks), "chunk_budget", meta.ChunkBudget, "context_tokens", reserve)

	results, err := p.run(ctx, chunks, NewContextCarrier(est, reserve), opts)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			partial := Combine(results, opts.Format, meta)
			partial.Metadata.Incomplete = true
			l.Warn("processing cancelled", "processed", len(results), "total", len(chunks))
			return partial, err
		}
		return nil, err
	}

	l.Info("document processed", "chunks", len(results))
	return Combine(results, opts.Format, meta), nil
}

// run folds the chunks in order. Chunk i is only sent after chunk i-1 succeeded.
func (p *Processor) run(ctx context.Context, chunks []chunker.Chunk, carrier *ContextCarrier, opts Options) ([]ChunkResult, error) {
	results := make([]ChunkResult, 0, len(chunks))
	var carry Carry
	for i, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("%w before chunk %d/%d: %w", ErrCancelled, i+1, len(chunks), err)
		}
		res, err := p.Step(ctx, ch, len(chunks), carrier.Render(carry), opts)
		if err != nil {
			return results, &ChunkRequestError{Index: i, Total: len(chunks), Partial: results, Err: err}
		}
		results = append(results, res)
		carry = carrier.Advance(carry, res)
	}
	return results, nil
}

// Step processes one chunk with the given carried context. It depends only on
// its arguments, so any chunk can be replayed from a saved carry.
func (p *Processor) Step(ctx context.Context, ch chunker.Chunk, total int, carried string, opts Options) (ChunkResult, error) {
	opts, err := p.resolve(opts)
	if err != nil {
		return ChunkResult{}, err
	}
	ch.Context = carried
	notify(opts.Progress, Progress{Index: ch.Index, Total: total, Tokens: ch.Tokens})
	p.logger(ctx).Info("processing chunk", "chunk", ch.Index+1, "of", total, "tokens", ch.Tokens, "level", ch.Level)

	reply, err := p.complete(ctx, llm.Request{
		Model:       opts.Model,
		Context:     ch.Context,
		Task:        opts.Task,
		Content:     ch.Text,
		Format:      opts.Format,
		Part:        ch.Index + 1,
		TotalParts:  total,
		MaxTokens:   p.settings.MaxResponseTokens,
		Temperature: p.settings.Temperature,
	})
	if err != nil {
		return ChunkResult{}, err
	}
	return parseReply(ch.Index, opts.Format, reply.Text), nil
}

// complete issues one request. An in-flight request is not cut short by the
// caller's cancellation; it is bounded by the request timeout instead.
func (p *Processor) complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	rctx := context.WithoutCancel(ctx)
	if p.settings.RequestTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(rctx, p.settings.RequestTimeout)
		defer cancel()
	}
	reply, err := p.service.Complete(rctx, req)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, llm.ErrEmptyResponse
	}
	return reply, nil
}

// contextReserve is the share of the usable budget kept for the carried synopsis.
func contextReserve(usable, contextTokens int) int {
	reserve := contextTokens
	if reserve > usable/4 {
		reserve = usable / 4
	}
	if reserve < 0 {
		reserve = 0
	}
	return reserve
}

func notify(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}

func emptyResult(format llm.Format, meta ProcessingMetadata) *Result {
	res := &Result{Format: format, Metadata: meta}
	if format.Structured() {
		res.Fields = make(map[string]any)
		ensureKnownFields(res.Fields)
	}
	return res
}
