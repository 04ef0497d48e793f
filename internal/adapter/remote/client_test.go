package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klara-research/klarity/internal/core/ports"
)

const completionBody = `{
	"choices": [{
		"message": {"role": "assistant", "content": "Paris"},
		"logprobs": {
			"tokens": ["Par", "is"],
			"token_ids": [100, 101],
			"token_logprobs": [-0.1, -2.3]
		}
	}]
}`

func TestClient_ChatCompletion(t *testing.T) {
	t.Run("parses a logprob-annotated completion", func(t *testing.T) {
		var gotAuth, gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(completionBody))
		}))
		defer server.Close()

		c := NewClient(Config{BaseURL: server.URL, APIKey: "sk-test"})
		resp, err := c.ChatCompletion(context.Background(), ports.CompletionRequest{
			Model:    "meta-llama/Llama-3-8b",
			Messages: []ports.ChatMessage{{Role: "user", Content: "capital of france?"}},
			Logprobs: true,
		})
		require.NoError(t, err)

		assert.Equal(t, "Bearer sk-test", gotAuth)
		assert.Equal(t, "/v1/chat/completions", gotPath)
		assert.Equal(t, "Paris", resp.Text)
		assert.Equal(t, []string{"Par", "is"}, resp.Tokens)
		assert.Equal(t, []int{100, 101}, resp.TokenIDs)
		assert.Equal(t, []float64{-0.1, -2.3}, resp.TokenLogprobs)
	})

	t.Run("no auth header without an api key", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(completionBody))
		}))
		defer server.Close()

		c := NewClient(Config{BaseURL: server.URL})
		_, err := c.ChatCompletion(context.Background(), ports.CompletionRequest{Model: "m"})
		require.NoError(t, err)
		assert.Empty(t, gotAuth)
	})

	t.Run("non-200 surfaces status and body snippet", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": "rate limit exceeded"}`))
		}))
		defer server.Close()

		c := NewClient(Config{BaseURL: server.URL})
		_, err := c.ChatCompletion(context.Background(), ports.CompletionRequest{Model: "m"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
		assert.Contains(t, err.Error(), "rate limit exceeded")
	})

	t.Run("response without choices rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices": []}`))
		}))
		defer server.Close()

		c := NewClient(Config{BaseURL: server.URL})
		_, err := c.ChatCompletion(context.Background(), ports.CompletionRequest{Model: "m"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no choices")
	})

	t.Run("non-parallel logprob arrays rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{
				"choices": [{
					"message": {"content": "x"},
					"logprobs": {"tokens": ["a", "b"], "token_logprobs": [-0.1]}
				}]
			}`))
		}))
		defer server.Close()

		c := NewClient(Config{BaseURL: server.URL})
		_, err := c.ChatCompletion(context.Background(), ports.CompletionRequest{Model: "m"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not parallel")
	})

	t.Run("completion without logprobs still parses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "hi"}}]}`))
		}))
		defer server.Close()

		c := NewClient(Config{BaseURL: server.URL})
		resp, err := c.ChatCompletion(context.Background(), ports.CompletionRequest{Model: "m"})
		require.NoError(t, err)
		assert.Equal(t, "hi", resp.Text)
		assert.Empty(t, resp.Tokens)
	})

	t.Run("cancelled context aborts the call", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(completionBody))
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := NewClient(Config{BaseURL: server.URL})
		_, err := c.ChatCompletion(ctx, ports.CompletionRequest{Model: "m"})
		assert.Error(t, err)
	})
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Nil(t, c.limiter, "no limiter unless a rate is configured")

	limited := NewClient(Config{RequestsPerSecond: 2})
	assert.NotNil(t, limited.limiter)
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c := NewClient(Config{BaseURL: "https://example.test/"})
	assert.Equal(t, "https://example.test", c.baseURL)
}

func TestToGenerationOutput(t *testing.T) {
	resp := &ports.CompletionResponse{
		Text:          "four",
		Tokens:        []string{"four"},
		TokenIDs:      []int{42},
		TokenLogprobs: []float64{-0.2},
	}

	out := ToGenerationOutput(resp)
	assert.Equal(t, "four", out.Text)
	assert.Equal(t, []string{"four"}, out.Tokens)
	assert.Equal(t, []int{42}, out.TokenIDs)
	assert.Equal(t, []float64{-0.2}, out.TokenLogprobs)
}
