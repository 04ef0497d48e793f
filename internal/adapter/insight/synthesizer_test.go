package insight

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klara-research/klarity/internal/core/domain"
	"github.com/klara-research/klarity/internal/core/ports"
)

type fakeClient struct {
	resp  *ports.CompletionResponse
	err   error
	last  ports.CompletionRequest
	delay time.Duration
}

func (f *fakeClient) ChatCompletion(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	f.last = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func sampleRequest() ports.InsightRequest {
	return ports.InsightRequest{
		Query:         "What is the capital of France?",
		GeneratedText: "Paris",
		Metrics: []domain.UncertaintyMetrics{
			{
				RawEntropy:      0.25,
				SemanticEntropy: 0.1,
				TokenPredictions: []domain.TokenInfo{
					{Token: "Paris", Probability: 0.9},
					{Token: "Lyon", Probability: 0.05},
					{Token: "Nice", Probability: 0.001},
				},
			},
		},
	}
}

func TestSynthesizer_Generate(t *testing.T) {
	t.Run("unconfigured backend yields empty insight without error", func(t *testing.T) {
		s := New(nil, Config{})
		got, err := s.Generate(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing model id yields empty insight without error", func(t *testing.T) {
		s := New(&fakeClient{}, Config{})
		got, err := s.Generate(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("relays the backend explanation trimmed", func(t *testing.T) {
		client := &fakeClient{resp: &ports.CompletionResponse{Text: "  confident throughout  \n"}}
		s := New(client, Config{Model: "qwen-7b"})

		got, err := s.Generate(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.Equal(t, "confident throughout", got)
		assert.Equal(t, "qwen-7b", client.last.Model)
		assert.Equal(t, DefaultMaxTokens, client.last.MaxTokens)
		assert.InDelta(t, DefaultTemperature, client.last.Temperature, 1e-9)
	})

	t.Run("backend failure comes back as InsightError", func(t *testing.T) {
		client := &fakeClient{err: errors.New("boom")}
		s := New(client, Config{Model: "qwen-7b"})

		_, err := s.Generate(context.Background(), sampleRequest())
		require.Error(t, err)

		var insightErr *domain.InsightError
		require.ErrorAs(t, err, &insightErr)
		assert.Equal(t, "qwen-7b", insightErr.Model)
	})

	t.Run("timeout cancels the call", func(t *testing.T) {
		client := &fakeClient{
			resp:  &ports.CompletionResponse{Text: "late"},
			delay: 200 * time.Millisecond,
		}
		s := New(client, Config{Model: "qwen-7b", Timeout: 10 * time.Millisecond})

		_, err := s.Generate(context.Background(), sampleRequest())
		require.Error(t, err)

		var insightErr *domain.InsightError
		require.ErrorAs(t, err, &insightErr)
		assert.ErrorIs(t, insightErr.Err, context.DeadlineExceeded)
	})
}

func TestSynthesizer_BuildPrompt(t *testing.T) {
	t.Run("includes query, answer and per-step metrics", func(t *testing.T) {
		s := New(nil, Config{Model: "m"})
		prompt := s.buildPrompt(sampleRequest())

		assert.Contains(t, prompt, "What is the capital of France?")
		assert.Contains(t, prompt, "Generated answer: Paris")
		assert.Contains(t, prompt, "step 0:")
		assert.Contains(t, prompt, "raw_entropy=")
		assert.Contains(t, prompt, "semantic_entropy=")
	})

	t.Run("filters predictions below the probability floor", func(t *testing.T) {
		s := New(nil, Config{Model: "m", MinTokenProb: 0.01})
		prompt := s.buildPrompt(sampleRequest())

		assert.Contains(t, prompt, "Paris")
		assert.Contains(t, prompt, "Lyon")
		assert.NotContains(t, prompt, "Nice")
	})

	t.Run("limits predictions per step", func(t *testing.T) {
		req := sampleRequest()
		req.Metrics[0].TokenPredictions = []domain.TokenInfo{
			{Token: "a", Probability: 0.4},
			{Token: "b", Probability: 0.3},
			{Token: "c", Probability: 0.2},
			{Token: "dropped", Probability: 0.1},
		}

		s := New(nil, Config{Model: "m"})
		prompt := s.buildPrompt(req)
		assert.NotContains(t, prompt, "dropped")
	})

	t.Run("summarises attention peaks when present", func(t *testing.T) {
		req := sampleRequest()
		req.Attention = &domain.AttentionData{
			GridRows: 2,
			GridCols: 2,
			TokenMaps: []domain.TokenAttention{
				{Token: "cat", Saliency: []float64{0.1, 0.2, 1.0, 0.3}},
			},
		}

		s := New(nil, Config{Model: "m"})
		prompt := s.buildPrompt(req)
		assert.Contains(t, prompt, "patch (1,0)")
	})
}

func TestTopPredictions(t *testing.T) {
	preds := []domain.TokenInfo{
		{Token: "a", Probability: 0.5},
		{Token: "b", Probability: 0.005},
		{Token: "c", Probability: 0.3},
	}

	got := topPredictions(preds, 0.01, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Token)
	assert.Equal(t, "c", got[1].Token)
}

func TestPeakCell(t *testing.T) {
	tests := []struct {
		name     string
		saliency []float64
		cols     int
		wantRow  int
		wantCol  int
	}{
		{"peak mid-grid", []float64{0.1, 0.9, 0.2, 0.4}, 2, 0, 1},
		{"peak in last cell", []float64{0, 0, 0, 0.5}, 2, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, col, weight := peakCell(tt.saliency, tt.cols)
			assert.Equal(t, tt.wantRow, row)
			assert.Equal(t, tt.wantCol, col)
			assert.Greater(t, weight, 0.0)
		})
	}

	t.Run("all-zero saliency reports no peak", func(t *testing.T) {
		_, _, weight := peakCell([]float64{0, 0}, 2)
		assert.Equal(t, 0.0, weight)
	})
}
