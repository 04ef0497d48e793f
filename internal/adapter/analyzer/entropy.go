package analyzer

import (
	"context"
	"log/slog"
	"math"

	"github.com/klara-research/klarity/internal/core/domain"
	"github.com/klara-research/klarity/internal/core/ports"
)

// InsightGenerator produces a natural-language explanation for an aggregated
// uncertainty pattern. Satisfied by the insight synthesizer; kept as a local
// interface so the analyzer never depends on a concrete transport.
type InsightGenerator interface {
	Generate(ctx context.Context, req ports.InsightRequest) (string, error)
}

// Config configures an EntropyAnalyzer. Zero values get sensible defaults:
// a rule-based clusterer and no insight backend.
type Config struct {
	Clusterer    ports.TokenClusterer
	Insight      InsightGenerator
	Logger       *slog.Logger
	MinTokenProb float64
}

// EntropyAnalyzer is the text-only uncertainty engine: Shannon entropy over
// raw candidate probabilities plus a semantic variant that aggregates
// probability mass by meaning before measuring.
type EntropyAnalyzer struct {
	clusterer    ports.TokenClusterer
	insight      InsightGenerator
	logger       *slog.Logger
	minTokenProb float64
}

func New(cfg Config) *EntropyAnalyzer {
	clusterer := cfg.Clusterer
	if clusterer == nil {
		clusterer = NewRuleClusterer(DefaultSimilarityThreshold)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EntropyAnalyzer{
		clusterer:    clusterer,
		insight:      cfg.Insight,
		logger:       logger,
		minTokenProb: cfg.MinTokenProb,
	}
}

// RawEntropy computes -sum(p*ln(p)) over the supplied probability set.
// Zero-probability entries contribute nothing rather than NaN. The result is
// exact when probs covers the full distribution and an approximation when
// the backend only disclosed a truncated top-k slice.
func (a *EntropyAnalyzer) RawEntropy(probs []float64) float64 {
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	if h <= 0 {
		return 0 // clamp the -0.0 a single certain candidate produces
	}
	return h
}

// SemanticEntropy clusters candidates by meaning, sums probability mass per
// cluster and computes Shannon entropy over the cluster masses. Merging can
// only remove entropy, so the result never exceeds RawEntropy over the same
// candidates.
func (a *EntropyAnalyzer) SemanticEntropy(candidates []domain.TokenInfo) float64 {
	if len(candidates) == 0 {
		return 0
	}

	groups := a.clusterer.Cluster(candidates)
	masses := make([]float64, 0, len(groups))
	for _, group := range groups {
		var mass float64
		for _, idx := range group {
			if idx >= 0 && idx < len(candidates) {
				mass += candidates[idx].Probability
			}
		}
		masses = append(masses, mass)
	}

	return a.RawEntropy(masses)
}

// OverallInsight delegates to the configured insight backend. With no
// backend configured there is nothing to explain and no error to report.
func (a *EntropyAnalyzer) OverallInsight(ctx context.Context, req ports.InsightRequest) (string, error) {
	if a.insight == nil {
		return "", nil
	}
	return a.insight.Generate(ctx, req)
}

// MinTokenProb is the candidate-probability floor below which predictions
// are dropped from insight prompts.
func (a *EntropyAnalyzer) MinTokenProb() float64 { return a.minTokenProb }

var _ ports.UncertaintyAnalyzer = (*EntropyAnalyzer)(nil)
