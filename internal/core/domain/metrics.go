package domain

// UncertaintyMetrics is the per-step bundle of uncertainty signals for one
// generated token position.
//
// RawEntropy is Shannon entropy over the candidate set the backend supplied.
// When that set is truncated (top-k, or the batched engine's internal top-N)
// the value is an approximation over a partial distribution, not the true
// step entropy. For the remote-API backend it is a confidence complement
// (1 - probability of the chosen token), not an entropy at all - that backend
// never discloses alternative candidates. Consumers comparing RawEntropy
// across backends need to keep this in mind.
type UncertaintyMetrics struct {
	Insight          string      `json:"insight,omitempty"`
	TokenPredictions []TokenInfo `json:"token_predictions"`
	RawEntropy       float64     `json:"raw_entropy"`
	SemanticEntropy  float64     `json:"semantic_entropy"`
}

// TokenAttention is the spatial saliency map for one generated token,
// flattened row-major over the patch grid.
type TokenAttention struct {
	Token    string    `json:"token"`
	Saliency []float64 `json:"saliency"`
}

// AttentionData maps each generated token to its attention weighting over
// image patches. Produced only for vision-language generations.
type AttentionData struct {
	TokenMaps []TokenAttention `json:"token_maps"`
	GridRows  int              `json:"grid_rows"`
	GridCols  int              `json:"grid_cols"`
}

// UncertaintyAnalysisResult is the full outcome of analysing one generation.
// Immutable after construction; one per AnalyzeGeneration call.
//
// Warnings records recoverable conditions (insight backend failure, steps
// with no candidates) so callers can observe them without the analysis
// itself failing.
type UncertaintyAnalysisResult struct {
	OverallInsight string               `json:"overall_insight,omitempty"`
	TokenMetrics   []UncertaintyMetrics `json:"token_metrics"`
	Warnings       []string             `json:"warnings,omitempty"`
	Attention      *AttentionData       `json:"attention_data,omitempty"`
}

// MeanRawEntropy averages raw entropy across steps. Zero for an empty
// generation.
func (r *UncertaintyAnalysisResult) MeanRawEntropy() float64 {
	if len(r.TokenMetrics) == 0 {
		return 0
	}
	var sum float64
	for i := range r.TokenMetrics {
		sum += r.TokenMetrics[i].RawEntropy
	}
	return sum / float64(len(r.TokenMetrics))
}

// MaxRawEntropy returns the highest-entropy step and its index, or -1 when
// the generation produced no steps.
func (r *UncertaintyAnalysisResult) MaxRawEntropy() (float64, int) {
	if len(r.TokenMetrics) == 0 {
		return 0, -1
	}
	best, bestIdx := r.TokenMetrics[0].RawEntropy, 0
	for i := 1; i < len(r.TokenMetrics); i++ {
		if r.TokenMetrics[i].RawEntropy > best {
			best, bestIdx = r.TokenMetrics[i].RawEntropy, i
		}
	}
	return best, bestIdx
}
