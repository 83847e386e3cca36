package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamChunk(content string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`+"\n\n", content)
}

func TestClientGenerateStream(t *testing.T) {
	t.Run("Yields tokens in order and terminates on DONE", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			for _, token := range []string{"The ", "answer ", "is 42."} {
				io.WriteString(w, streamChunk(token))
				flusher.Flush()
			}
			io.WriteString(w, `data: {"choices":[],"usage":{"total_tokens":17}}`+"\n\n")
			io.WriteString(w, "data: [DONE]\n\n")
		}))
		defer server.Close()

		client := NewClient(testConfig(server.URL), testLogger())
		stream, err := client.GenerateStream(context.Background(), Request{Model: "m", Prompt: "p"})
		require.NoError(t, err, "Expected GenerateStream to not return an error")
		defer stream.Close()

		var tokens []string
		for {
			token, err := stream.Recv()
			if err == io.EOF {
				break
			}
			require.NoError(t, err, "Expected Recv to not return an error")
			tokens = append(tokens, token)
		}

		assert.Equal(t, []string{"The ", "answer ", "is 42."}, tokens, "Expected tokens in arrival order")
		assert.Equal(t, 17, stream.TokensUsed(), "Expected provider-reported usage")
	})

	t.Run("Estimates usage when the provider omits it", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, streamChunk("some generated text"))
			io.WriteString(w, "data: [DONE]\n\n")
		}))
		defer server.Close()

		client := NewClient(testConfig(server.URL), testLogger())
		stream, err := client.GenerateStream(context.Background(), Request{Model: "m", Prompt: "p"})
		require.NoError(t, err)
		defer stream.Close()

		for {
			if _, err := stream.Recv(); err == io.EOF {
				break
			} else {
				require.NoError(t, err)
			}
		}

		assert.Greater(t, stream.TokensUsed(), 0, "Expected a positive token estimate")
	})

	t.Run("Handles event lines beyond the default scanner limit", func(t *testing.T) {
		// A single data line well past bufio's default 64 KiB cap
		large := strings.Repeat("x", 128*1024)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, streamChunk(large))
			io.WriteString(w, "data: [DONE]\n\n")
		}))
		defer server.Close()

		client := NewClient(testConfig(server.URL), testLogger())
		stream, err := client.GenerateStream(context.Background(), Request{Model: "m", Prompt: "p"})
		require.NoError(t, err)
		defer stream.Close()

		token, err := stream.Recv()
		require.NoError(t, err, "Expected a large event line to be scanned, not rejected")
		assert.Equal(t, large, token)

		_, err = stream.Recv()
		assert.Equal(t, io.EOF, err, "Expected a clean end of stream")
	})

	t.Run("Close releases the concurrency slot", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "data: [DONE]\n\n")
		}))
		defer server.Close()

		config := testConfig(server.URL)
		config.MaxConcurrent = 1
		client := NewClient(config, testLogger())

		first, err := client.GenerateStream(context.Background(), Request{Model: "m", Prompt: "p"})
		require.NoError(t, err)
		require.NoError(t, first.Close())
		require.NoError(t, first.Close(), "Expected Close to be idempotent")

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		second, err := client.GenerateStream(ctx, Request{Model: "m", Prompt: "p"})
		require.NoError(t, err, "Expected the slot to be free after Close")
		second.Close()
	})

	t.Run("Context cancellation aborts an in-flight stream", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			flusher := w.(http.Flusher)
			io.WriteString(w, streamChunk("first"))
			flusher.Flush()
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}))
		defer server.Close()
		defer close(release)

		client := NewClient(testConfig(server.URL), testLogger())
		ctx, cancel := context.WithCancel(context.Background())
		stream, err := client.GenerateStream(ctx, Request{Model: "m", Prompt: "p"})
		require.NoError(t, err)
		defer stream.Close()

		token, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, "first", token)

		cancel()

		_, err = stream.Recv()
		require.Error(t, err, "Expected Recv to fail after cancellation")
		assert.NotEqual(t, io.EOF, err, "Expected an abort, not a clean end of stream")
	})
}
