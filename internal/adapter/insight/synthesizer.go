// Package insight turns an aggregated uncertainty pattern into a prompt for
// a separate language model and relays its explanation back verbatim. The
// call is best-effort by contract: a failed or timed-out insight never fails
// the analysis that requested it.
package insight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/klara-research/klarity/internal/core/domain"
	"github.com/klara-research/klarity/internal/core/ports"
	"github.com/klara-research/klarity/pkg/format"
)

const (
	DefaultMaxTokens   = 512
	DefaultTemperature = 0.2

	// predictions shown per step in the prompt; more adds noise, not signal
	promptTopN = 3
)

type Config struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	MinTokenProb float64
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Synthesizer builds insight prompts and sends them through a completion
// client.
type Synthesizer struct {
	client       ports.CompletionClient
	logger       *slog.Logger
	model        string
	maxTokens    int
	temperature  float64
	minTokenProb float64
	timeout      time.Duration
}

func New(client ports.CompletionClient, cfg Config) *Synthesizer {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		client:       client,
		logger:       logger,
		model:        cfg.Model,
		maxTokens:    maxTokens,
		temperature:  temperature,
		minTokenProb: cfg.MinTokenProb,
		timeout:      cfg.Timeout,
	}
}

// Generate sends the uncertainty summary to the insight backend and returns
// its explanation. Failures come back as *domain.InsightError so callers can
// degrade to an absent insight.
func (s *Synthesizer) Generate(ctx context.Context, req ports.InsightRequest) (string, error) {
	if s.client == nil || s.model == "" {
		return "", nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := s.buildPrompt(req)
	s.logger.Debug("requesting insight", "model", s.model, "prompt_bytes", len(prompt))

	resp, err := s.client.ChatCompletion(ctx, ports.CompletionRequest{
		Model:       s.model,
		Messages:    []ports.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", domain.NewInsightError(s.model, err)
	}

	return strings.TrimSpace(resp.Text), nil
}

// buildPrompt flattens the per-step metrics (and attention summary, when
// present) into the analysis request.
func (s *Synthesizer) buildPrompt(req ports.InsightRequest) string {
	var b strings.Builder

	b.WriteString("You are analysing the uncertainty pattern of a language model generation.\n")
	b.WriteString("Explain where the model was uncertain, why that might be, and how reliable the answer looks.\n\n")

	if req.Query != "" {
		fmt.Fprintf(&b, "Input query: %s\n", req.Query)
	}
	if req.GeneratedText != "" {
		fmt.Fprintf(&b, "Generated answer: %s\n", req.GeneratedText)
	}

	b.WriteString("\nPer-step metrics (entropy in nats):\n")
	for i, m := range req.Metrics {
		fmt.Fprintf(&b, "step %d: raw_entropy=%s semantic_entropy=%s",
			i, format.Entropy(m.RawEntropy), format.Entropy(m.SemanticEntropy))

		preds := topPredictions(m.TokenPredictions, s.minTokenProb, promptTopN)
		if len(preds) > 0 {
			b.WriteString(" top: ")
			for j, p := range preds {
				if j > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%q (%s)", format.Token(p.Token), format.Probability(p.Probability))
			}
		}
		b.WriteString("\n")
	}

	if req.Attention != nil && len(req.Attention.TokenMaps) > 0 {
		b.WriteString("\nVisual attention summary (strongest image region per token):\n")
		for _, tm := range req.Attention.TokenMaps {
			row, col, weight := peakCell(tm.Saliency, req.Attention.GridCols)
			if weight <= 0 {
				continue
			}
			fmt.Fprintf(&b, "token %q attends most to patch (%d,%d) weight=%s\n",
				format.Token(tm.Token), row, col, format.Probability(weight))
		}
	}

	return b.String()
}

func topPredictions(preds []domain.TokenInfo, minProb float64, limit int) []domain.TokenInfo {
	out := make([]domain.TokenInfo, 0, limit)
	for _, p := range preds {
		if p.Probability < minProb {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out
}

// peakCell locates the strongest saliency cell in a row-major grid.
func peakCell(saliency []float64, cols int) (row, col int, weight float64) {
	best := -1
	for i, w := range saliency {
		if w > weight {
			weight = w
			best = i
		}
	}
	if best < 0 || cols <= 0 {
		return 0, 0, 0
	}
	return best / cols, best % cols, weight
}
