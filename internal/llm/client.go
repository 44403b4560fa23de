// Package llm talks to the hosted OpenAI-compatible chat completion endpoint
// that writes the jokes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"roast-machine/internal/config"
	"roast-machine/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrNoBaseURL = errors.New("model endpoint base url is empty")
	ErrNoChoices = errors.New("model returned no choices")
	ErrNoModels  = errors.New("model endpoint lists no models")
)

// Client connects lazily: the underlying API client (and, when no model name
// is configured, the model id) is resolved on first use. A failed resolution
// is retried on the next call.
type Client struct {
	cfg        config.ModelConfig
	httpClient *http.Client

	mu    sync.Mutex
	api   *openai.Client
	model string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func New(cfg config.ModelConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Model returns the resolved model id, or the configured one before the
// first call.
func (c *Client) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != "" {
		return c.model
	}
	return c.cfg.Name
}

func (c *Client) connect(ctx context.Context) (*openai.Client, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.api != nil {
		return c.api, c.model, nil
	}

	apiCfg := openai.DefaultConfig(c.cfg.APIKey)
	apiCfg.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/") + "/v1"
	apiCfg.HTTPClient = c.httpClient
	api := openai.NewClientWithConfig(apiCfg)

	model := c.cfg.Name
	if model == "" {
		models, err := api.ListModels(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to list models: %w", err)
		}
		if len(models.Models) == 0 {
			return nil, "", ErrNoModels
		}
		model = models.Models[0].ID
	}

	c.api = api
	c.model = model

	logger.Info("Model endpoint connected",
		logger.String("base_url", apiCfg.BaseURL),
		logger.String("model", model),
	)

	return api, model, nil
}

// Complete sends one system and one user message and returns the raw text of
// the first choice.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	api, model, err := c.connect(ctx)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: float32(c.cfg.Temperature),
		TopP:        float32(c.cfg.TopP),
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	logger.Debug("Model completion",
		logger.String("model", model),
		logger.Duration("took", time.Since(start)),
		logger.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}
