// Package remote implements a hosted chat-completions client for backends
// that annotate generations with per-token log-probabilities. The client
// does not retry; timeout, cancellation and retry policy belong to the
// caller via context.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/klara-research/klarity/internal/core/domain"
	"github.com/klara-research/klarity/internal/core/ports"
)

const (
	DefaultBaseURL = "https://api.together.xyz"
	chatPath       = "/v1/chat/completions"

	// error bodies get truncated to this many bytes in messages
	maxBodySnippet = 512
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// Client talks to a Together-style chat-completions endpoint.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	baseURL    string
	apiKey     string
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger,
		baseURL:    trimTrailingSlash(baseURL),
		apiKey:     cfg.APIKey,
	}
}

// ChatCompletion sends one chat-completion request and flattens the
// response into text plus the parallel token/logprob arrays.
func (c *Client) ChatCompletion(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading completion response: %w", err)
	}

	c.logger.Debug("chat completion finished",
		"model", req.Model,
		"status", resp.StatusCode,
		"latency", time.Since(started))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion request returned HTTP %d: %s", resp.StatusCode, snippet(body))
	}

	return parseCompletion(body)
}

// parseCompletion extracts the fields the core needs from the first choice.
// gjson keeps this a forward scan instead of a full unmarshal of a large
// response document.
func parseCompletion(body []byte) (*ports.CompletionResponse, error) {
	choice := gjson.GetBytes(body, "choices.0")
	if !choice.Exists() {
		return nil, fmt.Errorf("completion response has no choices: %s", snippet(body))
	}

	out := &ports.CompletionResponse{
		Text: choice.Get("message.content").String(),
	}

	logprobs := choice.Get("logprobs")
	if logprobs.Exists() {
		logprobs.Get("tokens").ForEach(func(_, v gjson.Result) bool {
			out.Tokens = append(out.Tokens, v.String())
			return true
		})
		logprobs.Get("token_ids").ForEach(func(_, v gjson.Result) bool {
			out.TokenIDs = append(out.TokenIDs, int(v.Int()))
			return true
		})
		logprobs.Get("token_logprobs").ForEach(func(_, v gjson.Result) bool {
			out.TokenLogprobs = append(out.TokenLogprobs, v.Float())
			return true
		})
	}

	if len(out.Tokens) != len(out.TokenLogprobs) {
		return nil, fmt.Errorf("completion logprobs are not parallel: %d tokens, %d logprobs",
			len(out.Tokens), len(out.TokenLogprobs))
	}

	return out, nil
}

// ToGenerationOutput converts a logprob-annotated completion into the
// remote backend variant.
func ToGenerationOutput(resp *ports.CompletionResponse) *domain.RemoteAPIOutput {
	return &domain.RemoteAPIOutput{
		Text:          resp.Text,
		Tokens:        resp.Tokens,
		TokenIDs:      resp.TokenIDs,
		TokenLogprobs: resp.TokenLogprobs,
	}
}

func trimTrailingSlash(url string) string {
	if url != "" && url[len(url)-1] == '/' {
		return url[:len(url)-1]
	}
	return url
}

func snippet(body []byte) string {
	if len(body) > maxBodySnippet {
		return string(body[:maxBodySnippet]) + "..."
	}
	return string(body)
}

var _ ports.CompletionClient = (*Client)(nil)
