package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// TokenStream yields generated text fragments as they arrive.
// Recv returns io.EOF after the final fragment. Close releases the
// underlying HTTP stream and the client's concurrency slot; it is safe
// to call multiple times and must be called even after Recv errors.
type TokenStream interface {
	Recv() (string, error)
	TokensUsed() int
	Close() error
}

// maxSSELineSize caps a single event line; providers can pack a whole
// choice plus usage accounting into one data line.
const maxSSELineSize = 1 << 20

type sseStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	release   func()
	closeOnce sync.Once
	usage     int
	charCount int
	done      bool
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

// GenerateStream starts a streaming generation call. The returned stream
// holds one of the client's concurrency slots until Close is called.
// Cancelling ctx aborts the underlying HTTP stream promptly.
func (c *Client) GenerateStream(ctx context.Context, req Request) (TokenStream, error) {
	if err := c.limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	body, err := c.doWithRetry(ctx, req, true)
	if err != nil {
		c.limiter.Release(1)
		return nil, err
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)

	return &sseStream{
		body:    body,
		scanner: scanner,
		release: func() { c.limiter.Release(1) },
	}, nil
}

// Recv returns the next text fragment. Empty delta chunks are skipped.
func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", err
		}
		if chunk.Usage != nil {
			s.usage = chunk.Usage.TotalTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		s.charCount += len(content)
		return content, nil
	}

	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	s.done = true
	return "", io.EOF
}

// TokensUsed returns the provider-reported usage, or a character estimate
// when the provider omitted it.
func (s *sseStream) TokensUsed() int {
	if s.usage > 0 {
		return s.usage
	}
	return s.charCount/4 + 1
}

// Close aborts the stream and releases the concurrency slot
func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
		s.release()
	})
	return err
}
