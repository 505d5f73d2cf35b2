package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc_ai/internal/chunker"
	"doc_ai/internal/document"
	"doc_ai/internal/llm"
	"doc_ai/internal/tokens"
)

// fakeService records requests and answers with a per-part JSON object
// unless reply overrides it.
type fakeService struct {
	requests []llm.Request
	reply    func(ctx context.Context, req llm.Request) (*llm.Response, error)
}

func (f *fakeService) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.requests = append(f.requests, req)
	if f.reply != nil {
		return f.reply(ctx, req)
	}
	return jsonReply(req), nil
}

func jsonReply(req llm.Request) *llm.Response {
	return &llm.Response{Text: fmt.Sprintf(`{"summary":"part %d","key_topics":["topic %d","Shared"]}`, req.Part, req.Part)}
}

func newTestProcessor(svc llm.Service) *Processor {
	return New(svc, DefaultSettings(),
		WithEstimator(tokens.Heuristic),
		WithLogger(log.New(&strings.Builder{})),
	)
}

// fiveSectionDoc renders to five sections of about 258 heuristic tokens each;
// with a 400-token budget every section becomes its own chunk.
func fiveSectionDoc() *document.UnifiedDocument {
	doc := document.New(document.Metadata{})
	for i := 0; i < 5; i++ {
		doc.AddText(strings.Repeat(string(rune('a'+i)), 1000), "", nil)
	}
	return doc
}

func TestProcessSingleShot(t *testing.T) {
	t.Run("Should send a small document in one request", func(t *testing.T) {
		svc := &fakeService{}
		p := newTestProcessor(svc)
		doc := document.New(document.Metadata{Source: "notes.txt"}).AddText("A short note.", "Intro", nil)

		res, err := p.Process(t.Context(), doc, Options{})
		require.NoError(t, err)

		require.Len(t, svc.requests, 1)
		req := svc.requests[0]
		assert.Equal(t, doc.Text(), req.Content)
		assert.Empty(t, req.Context)
		assert.Zero(t, req.Part)
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, llm.FormatStructuredJSON, req.Format)
		assert.Equal(t, 4000, req.MaxTokens)

		assert.False(t, res.Metadata.Chunked)
		assert.Equal(t, 1, res.Metadata.TotalChunks)
		assert.Equal(t, 102400, res.Metadata.UsableBudget)
		assert.Equal(t, "part 0", res.Summary())
	})

	t.Run("Should make no request for an empty document", func(t *testing.T) {
		svc := &fakeService{}
		p := newTestProcessor(svc)

		res, err := p.Process(t.Context(), document.New(document.Metadata{Title: "only metadata"}), Options{})
		require.NoError(t, err)

		assert.Empty(t, svc.requests)
		assert.False(t, res.Metadata.Chunked)
		assert.Equal(t, "", res.Fields[FieldSummary])
		assert.Equal(t, []any{}, res.Fields[FieldKeyTopics])
	})

	t.Run("Should wrap a failed single request as chunk 1 of 1", func(t *testing.T) {
		svc := &fakeService{reply: func(context.Context, llm.Request) (*llm.Response, error) {
			return nil, fmt.Errorf("%w: prompt too long", llm.ErrTokenLimit)
		}}
		p := newTestProcessor(svc)
		doc := document.New(document.Metadata{}).AddText("text", "", nil)

		res, err := p.Process(t.Context(), doc, Options{})
		assert.Nil(t, res)

		var cerr *ChunkRequestError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, 0, cerr.Index)
		assert.Equal(t, 1, cerr.Total)
		assert.Empty(t, cerr.Partial)
		assert.ErrorIs(t, err, llm.ErrTokenLimit)
	})

	t.Run("Should keep a non-JSON reply as raw text", func(t *testing.T) {
		svc := &fakeService{reply: func(context.Context, llm.Request) (*llm.Response, error) {
			return &llm.Response{Text: "plain prose"}, nil
		}}
		p := newTestProcessor(svc)
		doc := document.New(document.Metadata{}).AddText("text", "", nil)

		res, err := p.Process(t.Context(), doc, Options{})
		require.NoError(t, err)

		m := res.ToMap()
		assert.Equal(t, "plain prose", m["raw_response"])
		assert.Equal(t, "text", m["format"])
	})

	t.Run("Should flag models without known limits", func(t *testing.T) {
		p := newTestProcessor(&fakeService{})
		doc := document.New(document.Metadata{}).AddText("text", "", nil)

		res, err := p.Process(t.Context(), doc, Options{Model: "mystery-model"})
		require.NoError(t, err)

		assert.True(t, res.Metadata.UnknownModel)
		assert.Equal(t, tokens.DefaultMaxContext, res.Metadata.MaxContextTokens)
		require.Len(t, res.Metadata.Warnings, 1)
		assert.Contains(t, res.Metadata.Warnings[0], "mystery-model")
	})

	t.Run("Should reject an unknown format", func(t *testing.T) {
		p := newTestProcessor(&fakeService{})
		_, err := p.Process(t.Context(), fiveSectionDoc(), Options{Format: "yaml"})
		assert.Error(t, err)
	})
}

func TestProcessChunked(t *testing.T) {
	t.Run("Should process every chunk in order within budget", func(t *testing.T) {
		svc := &fakeService{}
		p := newTestProcessor(svc)
		doc := fiveSectionDoc()

		var progress []Progress
		res, err := p.Process(t.Context(), doc, Options{
			ChunkSize: 400,
			Progress:  func(pr Progress) { progress = append(progress, pr) },
		})
		require.NoError(t, err)

		require.Len(t, svc.requests, 5)
		est := tokens.Heuristic("gpt-4o-mini")
		var content strings.Builder
		for i, req := range svc.requests {
			assert.Equal(t, i+1, req.Part)
			assert.Equal(t, 5, req.TotalParts)
			assert.LessOrEqual(t, est.CountTokens(req.Context)+est.CountTokens(req.Content), 400)
			content.WriteString(req.Content)
		}
		assert.Equal(t, doc.Text(), content.String())

		require.Len(t, progress, 5)
		for i, pr := range progress {
			assert.Equal(t, i, pr.Index)
			assert.Equal(t, 5, pr.Total)
		}
		assert.Equal(t, "processing chunk 1/5", progress[0].String())

		assert.True(t, res.Metadata.Chunked)
		assert.Equal(t, 5, res.Metadata.TotalChunks)
		assert.Equal(t, 5, res.Metadata.ProcessedChunks)
		assert.Equal(t, 100, res.Metadata.ContextTokens)
		assert.Equal(t, 300, res.Metadata.ChunkBudget)
		assert.False(t, res.Metadata.Incomplete)
	})

	t.Run("Should carry a synopsis of earlier parts", func(t *testing.T) {
		svc := &fakeService{}
		p := newTestProcessor(svc)

		_, err := p.Process(t.Context(), fiveSectionDoc(), Options{ChunkSize: 400})
		require.NoError(t, err)

		assert.Empty(t, svc.requests[0].Context)
		assert.Contains(t, svc.requests[1].Context, "part 1 of this document")
		assert.Contains(t, svc.requests[1].Context, "topic 1; Shared")
		assert.Contains(t, svc.requests[1].Context, "Previous part: part 1")
		assert.Contains(t, svc.requests[4].Context, "parts 1-4")
		assert.Contains(t, svc.requests[4].Context, "Previous part: part 4")
	})

	t.Run("Should merge structured replies with deduplicated lists", func(t *testing.T) {
		p := newTestProcessor(&fakeService{})

		res, err := p.Process(t.Context(), fiveSectionDoc(), Options{ChunkSize: 400})
		require.NoError(t, err)

		assert.Equal(t, "part 1\n\npart 2\n\npart 3\n\npart 4\n\npart 5", res.Summary())
		assert.Equal(t, []string{"topic 1", "Shared", "topic 2", "topic 3", "topic 4", "topic 5"}, res.Topics())
		assert.Equal(t, []any{}, res.Fields[FieldInsights])
	})

	t.Run("Should stop at the first failed chunk and keep earlier results", func(t *testing.T) {
		svc := &fakeService{reply: func(_ context.Context, req llm.Request) (*llm.Response, error) {
			if req.Part == 3 {
				return nil, fmt.Errorf("%w: upstream 500", llm.ErrService)
			}
			return jsonReply(req), nil
		}}
		p := newTestProcessor(svc)

		res, err := p.Process(t.Context(), fiveSectionDoc(), Options{ChunkSize: 400})
		assert.Nil(t, res)

		var cerr *ChunkRequestError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, 2, cerr.Index)
		assert.Equal(t, 5, cerr.Total)
		require.Len(t, cerr.Partial, 2)
		assert.Equal(t, 0, cerr.Partial[0].Index)
		assert.Equal(t, 1, cerr.Partial[1].Index)
		assert.ErrorIs(t, err, llm.ErrService)
		assert.Len(t, svc.requests, 3)
		assert.Equal(t, "chunk 3/5 failed after 2 completed: completion service error: upstream 500", cerr.Error())
	})

	t.Run("Should return a partial result when cancelled between chunks", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		var inflight []error
		svc := &fakeService{reply: func(rctx context.Context, req llm.Request) (*llm.Response, error) {
			if req.Part == 2 {
				cancel()
			}
			inflight = append(inflight, rctx.Err())
			return jsonReply(req), nil
		}}
		p := newTestProcessor(svc)

		res, err := p.Process(ctx, fiveSectionDoc(), Options{ChunkSize: 400})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)

		require.NotNil(t, res)
		assert.True(t, res.Metadata.Incomplete)
		assert.Equal(t, 2, res.Metadata.ProcessedChunks)
		assert.Equal(t, 5, res.Metadata.TotalChunks)
		assert.Equal(t, "part 1\n\npart 2", res.Summary())
		assert.Len(t, svc.requests, 2)
		assert.Equal(t, []error{nil, nil}, inflight)
	})

	t.Run("Should collect raw replies separately", func(t *testing.T) {
		svc := &fakeService{reply: func(_ context.Context, req llm.Request) (*llm.Response, error) {
			if req.Part == 2 {
				return &llm.Response{Text: "not json at all"}, nil
			}
			return jsonReply(req), nil
		}}
		p := newTestProcessor(svc)

		res, err := p.Process(t.Context(), fiveSectionDoc(), Options{ChunkSize: 400})
		require.NoError(t, err)

		assert.Equal(t, []any{"not json at all"}, res.Fields[FieldRawResponses])
		assert.NotContains(t, res.Summary(), "part 2")
	})

	t.Run("Should label text chunks in markdown output", func(t *testing.T) {
		svc := &fakeService{reply: func(_ context.Context, req llm.Request) (*llm.Response, error) {
			return &llm.Response{Text: fmt.Sprintf("## Part %d\n", req.Part)}, nil
		}}
		p := newTestProcessor(svc)

		res, err := p.Process(t.Context(), fiveSectionDoc(), Options{ChunkSize: 400, Format: llm.FormatMarkdown})
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(res.Content, "---\n\n**Chunk 1 of 5**\n\n## Part 1"))
		assert.Contains(t, res.Content, "**Chunk 5 of 5**\n\n## Part 5")
		assert.Nil(t, res.Fields)
	})

	t.Run("Should report forced splits", func(t *testing.T) {
		p := newTestProcessor(&fakeService{})
		doc := document.New(document.Metadata{}).AddText(strings.Repeat("x", 5000), "", nil)

		res, err := p.Process(t.Context(), doc, Options{ChunkSize: 400})
		require.NoError(t, err)

		assert.Positive(t, res.Metadata.ForcedSplits)
		assert.Contains(t, strings.Join(res.Metadata.Warnings, "\n"), "cut mid-sentence")
	})
}

func TestStep(t *testing.T) {
	t.Run("Should send the supplied context with the chunk", func(t *testing.T) {
		svc := &fakeService{}
		p := newTestProcessor(svc)
		ch := chunker.Chunk{Index: 3, Text: "fourth part", Tokens: 3}

		res, err := p.Step(t.Context(), ch, 5, "earlier synopsis", Options{})
		require.NoError(t, err)

		require.Len(t, svc.requests, 1)
		assert.Equal(t, "earlier synopsis", svc.requests[0].Context)
		assert.Equal(t, "fourth part", svc.requests[0].Content)
		assert.Equal(t, 4, svc.requests[0].Part)
		assert.Equal(t, 3, res.Index)
		assert.Equal(t, "part 4", res.Fields[FieldSummary])
	})

	t.Run("Should treat a nil reply as empty", func(t *testing.T) {
		p := newTestProcessor(llm.ServiceFunc(func(context.Context, llm.Request) (*llm.Response, error) {
			return nil, nil
		}))

		_, err := p.Step(t.Context(), chunker.Chunk{Text: "x"}, 1, "", Options{})
		assert.ErrorIs(t, err, llm.ErrEmptyResponse)
	})
}

func TestContextReserve(t *testing.T) {
	assert.Equal(t, 300, contextReserve(102400, 300))
	assert.Equal(t, 100, contextReserve(400, 300))
	assert.Equal(t, 0, contextReserve(3, 300))
	assert.Equal(t, 0, contextReserve(1000, -5))
}

func TestProcessAndSave(t *testing.T) {
	t.Run("Should write structured results as JSON", func(t *testing.T) {
		p := newTestProcessor(&fakeService{})
		path := filepath.Join(t.TempDir(), "out", "result.json")
		doc := document.New(document.Metadata{}).AddText("text", "", nil)

		_, err := p.ProcessAndSave(t.Context(), doc, path, Options{})
		require.NoError(t, err)

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(b), `"summary": "part 0"`)
		assert.Contains(t, string(b), `"processing_metadata"`)
	})

	t.Run("Should write markdown with a report header", func(t *testing.T) {
		svc := &fakeService{reply: func(context.Context, llm.Request) (*llm.Response, error) {
			return &llm.Response{Text: "## Findings\nAll good."}, nil
		}}
		p := newTestProcessor(svc)
		path := filepath.Join(t.TempDir(), "report.md")
		doc := document.New(document.Metadata{Source: "/tmp/notes.txt"}).AddText("text", "", nil)

		_, err := p.ProcessAndSave(t.Context(), doc, path, Options{Format: llm.FormatMarkdown})
		require.NoError(t, err)

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(b), "# Document analysis: notes.txt\n"))
		assert.Contains(t, string(b), "## Analysis\n\n## Findings\nAll good.")
	})

	t.Run("Should save the partial result of a cancelled run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		svc := &fakeService{reply: func(_ context.Context, req llm.Request) (*llm.Response, error) {
			cancel()
			return jsonReply(req), nil
		}}
		p := newTestProcessor(svc)
		path := filepath.Join(t.TempDir(), "partial.json")

		res, err := p.ProcessAndSave(ctx, fiveSectionDoc(), path, Options{ChunkSize: 400})
		assert.True(t, errors.Is(err, ErrCancelled))
		require.NotNil(t, res)

		b, rerr := os.ReadFile(path)
		require.NoError(t, rerr)
		assert.Contains(t, string(b), `"incomplete": true`)
	})

	t.Run("Should not write anything when processing fails", func(t *testing.T) {
		svc := &fakeService{reply: func(context.Context, llm.Request) (*llm.Response, error) {
			return nil, llm.ErrAuth
		}}
		p := newTestProcessor(svc)
		path := filepath.Join(t.TempDir(), "none.json")

		_, err := p.ProcessAndSave(t.Context(), fiveSectionDoc(), path, Options{})
		assert.ErrorIs(t, err, llm.ErrAuth)
		assert.NoFileExists(t, path)
	})
}
