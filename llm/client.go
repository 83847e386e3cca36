package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrUnavailable marks failures where the generation service could not be
// reached or kept refusing after the retry budget was exhausted.
var ErrUnavailable = errors.New("generation service unavailable")

// Config holds the client configuration for an OpenAI-compatible
// chat-completions endpoint.
type Config struct {
	BaseURL       string
	APIKey        string
	HTTPTimeout   time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	MaxConcurrent int64
}

// DefaultConfig returns a client configuration with sensible defaults
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:       baseURL,
		APIKey:        apiKey,
		HTTPTimeout:   60 * time.Second,
		MaxRetries:    2,
		RetryBackoff:  500 * time.Millisecond,
		MaxConcurrent: 4,
	}
}

// Request describes one generation call
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response is the result of a completed generation call
type Response struct {
	Content    string
	TokensUsed int
}

// Client calls an OpenAI-compatible chat-completions API with bounded
// retries and a concurrency limit shared across all invocations.
type Client struct {
	config  Config
	http    *http.Client
	limiter *semaphore.Weighted
	log     *slog.Logger
}

// NewClient creates a new generation client
func NewClient(config Config, logger *slog.Logger) *Client {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.HTTPTimeout},
		limiter: semaphore.NewWeighted(config.MaxConcurrent),
		log:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Temperature   float64        `json:"temperature"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatUsage struct {
	TotalTokens int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

// Generate performs a single blocking generation call
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.limiter.Release(1)

	body, err := c.doWithRetry(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("completion response contains no choices")
	}

	content := parsed.Choices[0].Message.Content
	tokens := parsed.Usage.TotalTokens
	if tokens == 0 {
		tokens = estimateTokens(req.System, req.Prompt, content)
	}

	return &Response{Content: content, TokensUsed: tokens}, nil
}

// doWithRetry issues the HTTP call, retrying transport errors and
// retryable statuses (429, 5xx) up to MaxRetries times.
func (c *Client) doWithRetry(ctx context.Context, req Request, stream bool) (io.ReadCloser, error) {
	payload := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.System})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if stream {
		payload.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryBackoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			c.log.Debug("Retrying generation call", slog.Int("attempt", attempt), slog.String("model", req.Model))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		}

		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		lastErr = fmt.Errorf("completion request failed with status %d: %s", resp.StatusCode, string(detail))

		if !retryableStatus(resp.StatusCode) {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// estimateTokens approximates token usage at roughly four characters per
// token, used when the provider omits usage accounting.
func estimateTokens(parts ...string) int {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	return total/4 + 1
}
