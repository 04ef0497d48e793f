package ports

import "context"

// ChatMessage is one turn of a chat-completion conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries a chat-completion call to a hosted model.
// Logprobs asks the backend to annotate each emitted token with its
// log-probability; backends that cannot honour it return empty arrays.
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Logprobs    bool          `json:"logprobs"`
}

// CompletionResponse is the flat result of a chat-completion call. Tokens,
// TokenIDs and TokenLogprobs are parallel and populated only when logprobs
// were requested and supported: exactly one log-probability per emitted
// token, no alternative-candidate ranking.
type CompletionResponse struct {
	Text          string    `json:"text"`
	Tokens        []string  `json:"tokens"`
	TokenIDs      []int     `json:"token_ids"`
	TokenLogprobs []float64 `json:"token_logprobs"`
}

// CompletionClient is a hosted chat-completion backend. Both the remote
// generation backend and the insight backend satisfy it; retry, timeout and
// cancellation policy belong to the caller via ctx.
type CompletionClient interface {
	ChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
