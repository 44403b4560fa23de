// Package github reads and writes joke files through the GitHub Contents API.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roast-machine/internal/config"
	"roast-machine/pkg/logger"

	"github.com/sethvargo/go-retry"
)

var (
	ErrMissingToken = errors.New("GITHUB_TOKEN not configured")
	ErrNotFound     = errors.New("file not found in repository")
)

// StatusError is an unexpected HTTP status from the API.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github %s: unexpected status %d", e.Op, e.StatusCode)
}

type Client struct {
	cfg        config.GitHubConfig
	httpClient *http.Client
	retries    uint64
	backoff    time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRetry sets how many times a transport error or 5xx is retried and the
// initial exponential backoff.
func WithRetry(retries uint64, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.backoff = backoff
	}
}

func New(cfg config.GitHubConfig, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.Dir == "" {
		cfg.Dir = "all-jokes"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		retries:    2,
		backoff:    500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Configured reports whether a token is available.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.Token != ""
}

func (c *Client) contentsURL(name string) string {
	return fmt.Sprintf("%s/repos/%s/contents/%s/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		c.cfg.Repo,
		c.cfg.Dir,
		url.PathEscape(name),
	)
}

type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GetFile downloads a file from the joke directory of the repository.
func (c *Client) GetFile(ctx context.Context, name string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrMissingToken
	}

	status, body, err := c.do(ctx, "get", http.MethodGet, c.contentsURL(name), nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, &StatusError{Op: "get", StatusCode: status, Body: string(body)}
	}

	var resp contentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode contents response: %w", err)
	}

	// The API wraps base64 content at 60 columns.
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode file content: %w", err)
	}

	return data, nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
}

// PutFile creates a file in the joke directory. A file that already exists
// (422) counts as success.
func (c *Client) PutFile(ctx context.Context, name string, content []byte, message string) error {
	if !c.Configured() {
		return ErrMissingToken
	}

	payload, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return fmt.Errorf("failed to encode contents request: %w", err)
	}

	status, body, err := c.do(ctx, "put", http.MethodPut, c.contentsURL(name), payload)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		logger.Info("Joke committed to GitHub", logger.String("file", name))
		return nil
	case http.StatusUnprocessableEntity:
		logger.Debug("Joke already in GitHub", logger.String("file", name))
		return nil
	default:
		return &StatusError{Op: "put", StatusCode: status, Body: string(body)}
	}
}

// do sends one request, retrying transport failures and 5xx responses.
func (c *Client) do(ctx context.Context, op, method, target string, payload []byte) (int, []byte, error) {
	var (
		status int
		body   []byte
	)

	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "token "+c.cfg.Token)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		req.Header.Set("User-Agent", "roast-machine")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			logger.Warn("GitHub request failed", logger.String("op", op), logger.Err(err))
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return retry.RetryableError(err)
		}

		status, body = resp.StatusCode, data

		if resp.StatusCode >= http.StatusInternalServerError {
			logger.Warn("GitHub server error", logger.String("op", op), logger.Int("status", resp.StatusCode))
			return retry.RetryableError(&StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(data)})
		}

		return nil
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return se.StatusCode, []byte(se.Body), nil
		}
		return 0, nil, fmt.Errorf("github %s: %w", op, err)
	}

	return status, body, nil
}
