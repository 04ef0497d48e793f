package extractor

import (
	"math"
	"sort"

	"github.com/klara-research/klarity/internal/core/domain"
)

// BatchedExtractor handles outputs from high-throughput serving engines that
// report only the top-N log-probabilities they tracked internally, with N
// possibly smaller than any requested top-k.
//
// The candidate set per step is partial and non-normalised: entropy computed
// downstream is over a truncated distribution, an approximation of the true
// step entropy. Steps are never padded to top-k with synthetic candidates.
type BatchedExtractor struct {
	topK int
}

func NewBatchedExtractor(topK int) *BatchedExtractor {
	return &BatchedExtractor{topK: topK}
}

// Extract returns one ranked candidate list per step: exponentiated
// probabilities, sorted descending by log-probability with the engine's
// insertion order breaking ties, truncated to top-k.
func (e *BatchedExtractor) Extract(out *domain.BatchedOutput) ([][]domain.TokenInfo, error) {
	result := make([][]domain.TokenInfo, 0, len(out.Steps))

	for _, step := range out.Steps {
		ranked := make([]domain.BatchedCandidate, len(step.Candidates))
		copy(ranked, step.Candidates)

		// stable keeps engine insertion order on equal logprobs
		sort.SliceStable(ranked, func(a, b int) bool {
			return ranked[a].Logprob > ranked[b].Logprob
		})

		if len(ranked) > e.topK {
			ranked = ranked[:e.topK]
		}

		candidates := make([]domain.TokenInfo, 0, len(ranked))
		for _, c := range ranked {
			candidates = append(candidates, domain.TokenInfo{
				Token:       c.DecodedToken,
				TokenID:     c.TokenID,
				Logit:       c.Logprob,
				Probability: math.Exp(c.Logprob),
			})
		}
		result = append(result, candidates)
	}

	return result, nil
}
