package ports

import (
	"context"

	"github.com/klara-research/klarity/internal/core/domain"
)

// InsightRequest is the aggregated material the insight backend explains:
// the per-step metrics, the user's query, the generated answer and, for
// vision-language generations, the fused attention maps.
type InsightRequest struct {
	Attention     *domain.AttentionData
	Query         string
	GeneratedText string
	Metrics       []domain.UncertaintyMetrics
}

// UncertaintyAnalyzer computes entropy measures over per-step candidate sets
// and, optionally, asks a separate language model to explain the pattern.
type UncertaintyAnalyzer interface {
	// RawEntropy is discrete Shannon entropy over the candidate probability
	// set for one step. Probability-zero candidates contribute nothing.
	// Exact over a full distribution, an approximation over a truncated one.
	RawEntropy(probs []float64) float64

	// SemanticEntropy groups candidates into meaning-equivalence clusters,
	// sums probability mass per cluster and computes Shannon entropy over
	// the cluster distribution.
	SemanticEntropy(candidates []domain.TokenInfo) float64

	// OverallInsight asks the insight backend for a natural-language
	// explanation of the whole generation's uncertainty pattern. Errors are
	// recoverable by contract: callers degrade to an absent insight.
	OverallInsight(ctx context.Context, req InsightRequest) (string, error)
}

// VisionAnalyzer extends UncertaintyAnalyzer with spatial attention fusion
// for vision-language generations.
type VisionAnalyzer interface {
	UncertaintyAnalyzer

	// EnsureVisionConfig installs the patch configuration. First caller
	// wins; later calls are no-ops, safe under concurrency.
	EnsureVisionConfig(cfg domain.VisionConfig)

	// VisionConfigured reports whether a patch configuration is installed.
	VisionConfigured() bool

	// ProcessAttentionFrames fuses per-token attention frames with the
	// image patch grid, one saliency map per generated token.
	ProcessAttentionFrames(frames []domain.AttentionFrame, tokens []string, imageTokens domain.Span) (*domain.AttentionData, error)
}

// TokenClusterer is the pluggable semantic-equivalence strategy behind
// semantic entropy. Cluster partitions candidates by index; every index
// appears in exactly one group.
type TokenClusterer interface {
	Cluster(candidates []domain.TokenInfo) [][]int
}
