package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel replays scripted replies and records the messages it received.
type fakeModel struct {
	replies  []string
	errs     []error
	calls    int
	messages [][]llms.MessageContent
}

func (m *fakeModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	_ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	i := m.calls
	m.calls++
	m.messages = append(m.messages, messages)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	reply := ""
	if i < len(m.replies) {
		reply = m.replies[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func newFakeClient(model *fakeModel, retries int) *OpenAIClient {
	cfg := ClientConfig{MaxRetries: retries, RetryBase: time.Millisecond}
	return NewClientWithFactory(cfg, func(string) (llms.Model, error) { return model, nil }, nil)
}

func textOf(t *testing.T, m llms.MessageContent) string {
	t.Helper()
	require.Len(t, m.Parts, 1)
	part, ok := m.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestOpenAIClient_Complete(t *testing.T) {
	t.Run("Should send system and user messages and return the reply", func(t *testing.T) {
		model := &fakeModel{replies: []string{`{"summary":"ok"}`}}
		client := newFakeClient(model, 0)

		resp, err := client.Complete(t.Context(), Request{
			Model:      "gpt-4o-mini",
			Task:       "summarize",
			Content:    "the content",
			Context:    "earlier context",
			Format:     FormatStructuredJSON,
			Part:       2,
			TotalParts: 3,
		})

		require.NoError(t, err)
		assert.Equal(t, `{"summary":"ok"}`, resp.Text)
		require.Len(t, model.messages, 1)
		msgs := model.messages[0]
		require.Len(t, msgs, 2)
		assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
		assert.Contains(t, textOf(t, msgs[0]), "Your task is to: summarize")
		assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
		user := textOf(t, msgs[1])
		assert.Contains(t, user, "earlier context")
		assert.Contains(t, user, "This is part 2 of 3")
		assert.Contains(t, user, "the content")
	})

	t.Run("Should retry transient service errors", func(t *testing.T) {
		model := &fakeModel{
			errs:    []error{errors.New("502 bad gateway"), nil},
			replies: []string{"", "second try"},
		}
		client := newFakeClient(model, 2)

		resp, err := client.Complete(t.Context(), Request{Model: "m", Content: "x", Format: FormatMarkdown})

		require.NoError(t, err)
		assert.Equal(t, "second try", resp.Text)
		assert.Equal(t, 2, model.calls)
	})

	t.Run("Should give up after the configured retries", func(t *testing.T) {
		model := &fakeModel{errs: []error{errors.New("boom"), errors.New("boom"), errors.New("boom")}}
		client := newFakeClient(model, 1)

		_, err := client.Complete(t.Context(), Request{Model: "m", Content: "x"})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrService)
		assert.Equal(t, 2, model.calls)
	})

	t.Run("Should not retry authentication failures", func(t *testing.T) {
		model := &fakeModel{errs: []error{errors.New("API returned unexpected status code: 401: Incorrect API key provided")}}
		client := newFakeClient(model, 3)

		_, err := client.Complete(t.Context(), Request{Model: "m", Content: "x"})

		assert.ErrorIs(t, err, ErrAuth)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("Should report token limit failures", func(t *testing.T) {
		model := &fakeModel{errs: []error{errors.New("context_length_exceeded: maximum context length is 8192 tokens")}}
		client := newFakeClient(model, 3)

		_, err := client.Complete(t.Context(), Request{Model: "m", Content: "x"})

		assert.ErrorIs(t, err, ErrTokenLimit)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("Should fail on an empty reply", func(t *testing.T) {
		model := &fakeModel{replies: []string{"   "}}
		client := newFakeClient(model, 0)

		_, err := client.Complete(t.Context(), Request{Model: "m", Content: "x"})

		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("Should reuse the model per name", func(t *testing.T) {
		created := 0
		model := &fakeModel{replies: []string{"a", "b"}}
		client := NewClientWithFactory(ClientConfig{}, func(string) (llms.Model, error) {
			created++
			return model, nil
		}, nil)

		_, err := client.Complete(t.Context(), Request{Model: "m", Content: "x"})
		require.NoError(t, err)
		_, err = client.Complete(t.Context(), Request{Model: "m", Content: "y"})
		require.NoError(t, err)
		assert.Equal(t, 1, created)
	})
}

func TestNewOpenAIClient(t *testing.T) {
	t.Run("Should require an API key without a custom base URL", func(t *testing.T) {
		_, err := NewOpenAIClient(ClientConfig{}, nil)
		assert.ErrorIs(t, err, ErrAuth)
	})

	t.Run("Should accept a keyless local server", func(t *testing.T) {
		client, err := NewOpenAIClient(ClientConfig{BaseURL: "http://localhost:11434/v1"}, nil)
		require.NoError(t, err)
		assert.NotNil(t, client)
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "structured_json", want: FormatStructuredJSON},
		{in: "JSON", want: FormatStructuredJSON},
		{in: "markdown", want: FormatMarkdown},
		{in: "md", want: FormatMarkdown},
		{in: " summary ", want: FormatSummary},
		{in: "yaml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserPrompt(t *testing.T) {
	t.Run("Should omit context and part marker for a single-shot request", func(t *testing.T) {
		p := UserPrompt(Request{Content: "body"})
		assert.Equal(t, "Please process the following content:\n\nbody", p)
	})
}

func TestSystemPrompt(t *testing.T) {
	t.Run("Should describe the JSON fields for structured output", func(t *testing.T) {
		p := SystemPrompt("analyze", FormatStructuredJSON)
		assert.Contains(t, p, `"key_topics"`)
		assert.Contains(t, p, "Output Format: structured_json")
	})

	t.Run("Should ask for markdown", func(t *testing.T) {
		p := SystemPrompt("analyze", FormatMarkdown)
		assert.Contains(t, p, "well-formatted markdown")
		assert.NotContains(t, p, `"key_topics"`)
	})
}

func TestCallOptions(t *testing.T) {
	apply := func(req Request) llms.CallOptions {
		opts := llms.CallOptions{Temperature: 0.7}
		for _, o := range callOptions(req) {
			o(&opts)
		}
		return opts
	}

	t.Run("Should send a zero temperature", func(t *testing.T) {
		opts := apply(Request{Format: FormatSummary})
		assert.Zero(t, opts.Temperature)
		assert.False(t, opts.JSONMode)
	})

	t.Run("Should request JSON mode and a token cap", func(t *testing.T) {
		opts := apply(Request{Format: FormatStructuredJSON, MaxTokens: 500, Temperature: 0.3})
		assert.Equal(t, 0.3, opts.Temperature)
		assert.Equal(t, 500, opts.MaxTokens)
		assert.True(t, opts.JSONMode)
	})
}
