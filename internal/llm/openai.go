package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultRetryBase = 500 * time.Millisecond

// ClientConfig configures the OpenAI-compatible client.
type ClientConfig struct {
	APIKey     string
	BaseURL    string // empty for api.openai.com; set for Ollama or other compatible servers
	MaxRetries int
	RetryBase  time.Duration
}

// ModelFactory builds a langchaingo model for a model name.
type ModelFactory func(model string) (llms.Model, error)

// OpenAIClient implements Service over langchaingo's OpenAI provider.
// Transient failures are retried here; auth and token-limit errors are not.
type OpenAIClient struct {
	cfg     ClientConfig
	factory ModelFactory
	log     *log.Logger

	mu     sync.Mutex
	models map[string]llms.Model
}

// NewOpenAIClient creates a client. An API key is required unless a custom
// base URL points at a server that does not check it.
func NewOpenAIClient(cfg ClientConfig, logger *log.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrAuth)
	}
	factory := func(model string) (llms.Model, error) {
		token := cfg.APIKey
		if token == "" {
			token = "unused"
		}
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithToken(token),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	}
	return NewClientWithFactory(cfg, factory, logger), nil
}

// NewClientWithFactory creates a client over an arbitrary model factory.
func NewClientWithFactory(cfg ClientConfig, factory ModelFactory, logger *log.Logger) *OpenAIClient {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = log.Default()
	}
	return &OpenAIClient{
		cfg:     cfg,
		factory: factory,
		log:     logger,
		models:  make(map[string]llms.Model),
	}
}

func (c *OpenAIClient) model(name string) (llms.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[name]; ok {
		return m, nil
	}
	m, err := c.factory(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM model %s: %w", name, err)
	}
	c.models[name] = m
	return m, nil
}

// Complete sends one request and returns the reply text.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	model, err := c.model(req.Model)
	if err != nil {
		return nil, err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt(req.Task, req.Format)),
		llms.TextParts(llms.ChatMessageTypeHuman, UserPrompt(req)),
	}
	options := callOptions(req)

	backoff := retry.WithMaxRetries(uint64(c.cfg.MaxRetries), retry.NewExponential(c.cfg.RetryBase))

	var text string
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		resp, callErr := model.GenerateContent(ctx, messages, options...)
		if callErr != nil {
			classified := classify(callErr)
			if errors.Is(classified, ErrService) {
				c.log.Warn("completion request failed, retrying", "model", req.Model, "attempt", attempt, "err", callErr)
				return retry.RetryableError(classified)
			}
			return classified
		}
		if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
			return ErrEmptyResponse
		}
		text = resp.Choices[0].Content
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Response{Text: text}, nil
}

func callOptions(req Request) []llms.CallOption {
	options := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Format.Structured() {
		options = append(options, llms.WithJSONMode())
	}
	return options
}
