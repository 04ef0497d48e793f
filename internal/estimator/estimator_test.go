package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klara-research/klarity/internal/adapter/analyzer"
	"github.com/klara-research/klarity/internal/core/domain"
	"github.com/klara-research/klarity/internal/core/ports"
)

var testDecoder = ports.TokenDecoderFunc(func(ids []int) string {
	var out string
	for _, id := range ids {
		out += fmt.Sprintf("<%d>", id)
	}
	return out
})

type fakeCompletionClient struct {
	resp *ports.CompletionResponse
	err  error
	last ports.CompletionRequest
}

func (f *fakeCompletionClient) ChatCompletion(_ context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type failingInsight struct{ err error }

func (f *failingInsight) Generate(context.Context, ports.InsightRequest) (string, error) {
	return "", f.err
}

// denseOutput builds a three-vocab dense dump where probsPerStep are exact
// softmax outputs (each row must sum to 1).
func denseOutput(probsPerStep ...[]float64) *domain.DenseLogitsOutput {
	scores := make([][]float64, len(probsPerStep))
	seq := make([]int, 0, len(probsPerStep))
	for i, probs := range probsPerStep {
		scores[i] = make([]float64, len(probs))
		for j, p := range probs {
			scores[i][j] = math.Log(p)
		}
		seq = append(seq, i)
	}
	return &domain.DenseLogitsOutput{Scores: scores, Sequence: seq}
}

func TestNew(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		e, err := New(Config{})
		require.NoError(t, err)
		assert.Equal(t, DefaultTopK, e.TopK())
	})

	t.Run("negative top-k rejected", func(t *testing.T) {
		_, err := New(Config{TopK: -3})
		require.Error(t, err)

		var cfgErr *domain.ConfigValidationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "top_k", cfgErr.Field)
	})

	t.Run("remote model clamps top-k to the API cap", func(t *testing.T) {
		e, err := New(Config{TopK: 100, RemoteModel: "meta-llama/Llama-3-8b"})
		require.NoError(t, err)
		assert.Equal(t, RemoteTopKCap, e.TopK())
	})

	t.Run("remote model keeps a small top-k untouched", func(t *testing.T) {
		e, err := New(Config{TopK: 3, RemoteModel: "meta-llama/Llama-3-8b"})
		require.NoError(t, err)
		assert.Equal(t, 3, e.TopK())
	})
}

func TestAnalyzeGeneration_Dense(t *testing.T) {
	t.Run("entropy computed over the retained top-k set", func(t *testing.T) {
		e, err := New(Config{TopK: 2})
		require.NoError(t, err)

		out := denseOutput(
			[]float64{0.9, 0.05, 0.05},
			[]float64{0.34, 0.33, 0.33},
			[]float64{0.98, 0.01, 0.01},
		)

		result, err := e.AnalyzeGeneration(context.Background(), out, Options{Decoder: testDecoder})
		require.NoError(t, err)
		require.Len(t, result.TokenMetrics, 3)

		for i, m := range result.TokenMetrics {
			assert.Len(t, m.TokenPredictions, 2, "step %d", i)
		}

		wantStep0 := -(0.9*math.Log(0.9) + 0.05*math.Log(0.05))
		assert.InDelta(t, wantStep0, result.TokenMetrics[0].RawEntropy, 1e-9)

		// near-uniform step carries more entropy than the confident ones
		assert.Greater(t, result.TokenMetrics[1].RawEntropy, result.TokenMetrics[0].RawEntropy)
		assert.Greater(t, result.TokenMetrics[1].RawEntropy, result.TokenMetrics[2].RawEntropy)

		_, maxIdx := result.MaxRawEntropy()
		assert.Equal(t, 1, maxIdx)
		assert.Empty(t, result.Warnings)
	})

	t.Run("missing decoder fails before any step processing", func(t *testing.T) {
		e, err := New(Config{})
		require.NoError(t, err)

		_, err = e.AnalyzeGeneration(context.Background(), denseOutput([]float64{1, 0, 0}), Options{})
		require.Error(t, err)

		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, domain.BackendDense, cfgErr.Backend)
	})

	t.Run("semantic entropy never exceeds raw", func(t *testing.T) {
		e, err := New(Config{TopK: 3})
		require.NoError(t, err)

		out := denseOutput([]float64{0.5, 0.3, 0.2})
		result, err := e.AnalyzeGeneration(context.Background(), out, Options{Decoder: testDecoder})
		require.NoError(t, err)

		m := result.TokenMetrics[0]
		assert.LessOrEqual(t, m.SemanticEntropy, m.RawEntropy+1e-9)
	})
}

func TestAnalyzeGeneration_Batched(t *testing.T) {
	e, err := New(Config{TopK: 5})
	require.NoError(t, err)

	out := &domain.BatchedOutput{
		Text: "four",
		Steps: []domain.BatchedStep{
			{Candidates: []domain.BatchedCandidate{
				{TokenID: 1, Logprob: -0.1, DecodedToken: "four"},
				{TokenID: 2, Logprob: -2.5, DecodedToken: " 4"},
			}},
			{Candidates: nil}, // engine tracked nothing for this step
		},
	}

	result, err := e.AnalyzeGeneration(context.Background(), out, Options{})
	require.NoError(t, err)
	require.Len(t, result.TokenMetrics, 2)

	first := result.TokenMetrics[0]
	assert.Len(t, first.TokenPredictions, 2)
	assert.Greater(t, first.RawEntropy, 0.0)
	// "four" and " 4" cluster together; the merged mass is still below 1
	// because the distribution is truncated, so a small residual remains
	mass := math.Exp(-0.1) + math.Exp(-2.5)
	assert.InDelta(t, -mass*math.Log(mass), first.SemanticEntropy, 1e-9)
	assert.Less(t, first.SemanticEntropy, first.RawEntropy)

	// candidate underflow degrades to a warning, never a failure
	empty := result.TokenMetrics[1]
	assert.Equal(t, 0.0, empty.RawEntropy)
	assert.NotNil(t, empty.TokenPredictions)
	assert.Empty(t, empty.TokenPredictions)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "step 1")
}

func TestAnalyzeGeneration_Remote(t *testing.T) {
	e, err := New(Config{RemoteModel: "m", TopK: 5})
	require.NoError(t, err)

	out := &domain.RemoteAPIOutput{
		Text:          "Paris",
		Tokens:        []string{"Par", "is"},
		TokenIDs:      []int{100, 101},
		TokenLogprobs: []float64{-0.1, -2.3},
	}

	result, err := e.AnalyzeGeneration(context.Background(), out, Options{})
	require.NoError(t, err)
	require.Len(t, result.TokenMetrics, 2)

	// confidence complement, not a true entropy
	assert.InDelta(t, 1-math.Exp(-0.1), result.TokenMetrics[0].RawEntropy, 1e-9)
	assert.InDelta(t, 1-math.Exp(-2.3), result.TokenMetrics[1].RawEntropy, 1e-9)

	for _, m := range result.TokenMetrics {
		assert.Equal(t, 0.0, m.SemanticEntropy)
		assert.Len(t, m.TokenPredictions, 1)
	}
}

func TestAnalyzeGeneration_UnknownShape(t *testing.T) {
	e, err := New(Config{})
	require.NoError(t, err)

	_, err = e.AnalyzeGeneration(context.Background(), nil, Options{})
	require.Error(t, err)

	var unsupported *domain.UnsupportedOutputError
	assert.ErrorAs(t, err, &unsupported)
}

func TestAnalyzeGeneration_InsightFailureIsRecoverable(t *testing.T) {
	insightErr := domain.NewInsightError("m", errors.New("deadline exceeded"))
	anlz := analyzer.New(analyzer.Config{Insight: &failingInsight{err: insightErr}})

	e, err := New(Config{Analyzer: anlz, TopK: 2})
	require.NoError(t, err)

	out := denseOutput([]float64{0.7, 0.2, 0.1})
	result, err := e.AnalyzeGeneration(context.Background(), out, Options{Decoder: testDecoder})
	require.NoError(t, err, "insight failure must not fail the analysis")

	assert.Empty(t, result.OverallInsight)
	require.Len(t, result.TokenMetrics, 1)
	assert.Greater(t, result.TokenMetrics[0].RawEntropy, 0.0)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "insight generation")
}

func TestAnalyzeGeneration_VisionPath(t *testing.T) {
	t.Run("attention maps attached for vision-language outputs", func(t *testing.T) {
		vlm := analyzer.NewVLM(analyzer.Config{})
		e, err := New(Config{Analyzer: vlm, TopK: 2})
		require.NoError(t, err)

		out := denseOutput([]float64{0.8, 0.1, 0.1})
		out.InputLength = 0
		out.Attentions = []domain.AttentionFrame{{0.1, 0.9, 0.4, 0.2}}

		vision := &domain.VisionConfig{PatchSize: 16, ImageSize: 32}
		result, err := e.AnalyzeGeneration(context.Background(), out, Options{Decoder: testDecoder, Vision: vision})
		require.NoError(t, err)

		require.NotNil(t, result.Attention)
		assert.Equal(t, 2, result.Attention.GridRows)
		require.Len(t, result.Attention.TokenMaps, 1)
		assert.Equal(t, "<0>", result.Attention.TokenMaps[0].Token)
		assert.True(t, vlm.VisionConfigured())
	})

	t.Run("text-only analyzer ignores attention frames", func(t *testing.T) {
		e, err := New(Config{TopK: 2})
		require.NoError(t, err)

		out := denseOutput([]float64{0.8, 0.1, 0.1})
		out.Attentions = []domain.AttentionFrame{{0.1, 0.9, 0.4, 0.2}}

		result, err := e.AnalyzeGeneration(context.Background(), out, Options{Decoder: testDecoder})
		require.NoError(t, err)
		assert.Nil(t, result.Attention)
	})
}

func TestAnalyzeBatch(t *testing.T) {
	t.Run("preserves input order", func(t *testing.T) {
		e, err := New(Config{TopK: 2})
		require.NoError(t, err)

		outputs := []domain.GenerationOutput{
			&domain.BatchedOutput{Text: "a", Steps: []domain.BatchedStep{
				{Candidates: []domain.BatchedCandidate{{TokenID: 1, Logprob: -0.1, DecodedToken: "a"}}},
			}},
			&domain.BatchedOutput{Text: "b", Steps: []domain.BatchedStep{
				{Candidates: []domain.BatchedCandidate{{TokenID: 2, Logprob: -0.2, DecodedToken: "b"}}},
			}},
			&domain.BatchedOutput{Text: "c", Steps: []domain.BatchedStep{
				{Candidates: []domain.BatchedCandidate{{TokenID: 3, Logprob: -0.3, DecodedToken: "c"}}},
			}},
		}

		results, err := e.AnalyzeBatch(context.Background(), outputs, Options{})
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "a", results[0].TokenMetrics[0].TokenPredictions[0].Token)
		assert.Equal(t, "b", results[1].TokenMetrics[0].TokenPredictions[0].Token)
		assert.Equal(t, "c", results[2].TokenMetrics[0].TokenPredictions[0].Token)
	})

	t.Run("one fatal analysis fails the batch", func(t *testing.T) {
		e, err := New(Config{TopK: 2})
		require.NoError(t, err)

		outputs := []domain.GenerationOutput{
			&domain.BatchedOutput{Text: "ok"},
			denseOutput([]float64{1, 0, 0}), // no decoder supplied
		}

		_, err = e.AnalyzeBatch(context.Background(), outputs, Options{})
		require.Error(t, err)

		var cfgErr *domain.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestGenerate(t *testing.T) {
	t.Run("requires a remote client and model", func(t *testing.T) {
		e, err := New(Config{})
		require.NoError(t, err)

		_, err = e.Generate(context.Background(), "q", GenerateOptions{})
		require.Error(t, err)

		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, domain.BackendRemote, cfgErr.Backend)
	})

	t.Run("forwards decoding parameters and requests logprobs", func(t *testing.T) {
		client := &fakeCompletionClient{resp: &ports.CompletionResponse{
			Text:          "hi",
			Tokens:        []string{"hi"},
			TokenIDs:      []int{7},
			TokenLogprobs: []float64{-0.3},
		}}

		e, err := New(Config{RemoteClient: client, RemoteModel: "meta-llama/Llama-3-8b"})
		require.NoError(t, err)

		out, err := e.Generate(context.Background(), "what is 2+2", GenerateOptions{MaxTokens: 32, Temperature: 0.5})
		require.NoError(t, err)

		assert.True(t, client.last.Logprobs)
		assert.Equal(t, 32, client.last.MaxTokens)
		assert.InDelta(t, 0.5, client.last.Temperature, 1e-9)
		assert.Equal(t, "meta-llama/Llama-3-8b", client.last.Model)
		require.Len(t, client.last.Messages, 1)
		assert.Equal(t, "what is 2+2", client.last.Messages[0].Content)

		assert.Equal(t, "hi", out.Text)
		assert.Equal(t, []float64{-0.3}, out.TokenLogprobs)
	})

	t.Run("zero options fall back to defaults", func(t *testing.T) {
		client := &fakeCompletionClient{resp: &ports.CompletionResponse{}}
		e, err := New(Config{RemoteClient: client, RemoteModel: "m"})
		require.NoError(t, err)

		_, err = e.Generate(context.Background(), "q", GenerateOptions{})
		require.NoError(t, err)
		assert.Equal(t, 10, client.last.MaxTokens)
		assert.InDelta(t, 0.7, client.last.Temperature, 1e-9)
	})

	t.Run("client errors propagate", func(t *testing.T) {
		client := &fakeCompletionClient{err: errors.New("rate limited")}
		e, err := New(Config{RemoteClient: client, RemoteModel: "m"})
		require.NoError(t, err)

		_, err = e.Generate(context.Background(), "q", GenerateOptions{})
		assert.Error(t, err)
	})
}
