// Package extractor normalises the three backend-specific generation output
// shapes into one per-step candidate stream. This is the reconciliation
// layer: dense full-vocabulary logits, sparse top-N logprob mappings and
// string-only API annotations all leave here looking identical.
package extractor

import (
	"errors"
	"math"
	"sort"

	"github.com/klara-research/klarity/internal/core/domain"
	"github.com/klara-research/klarity/internal/core/ports"
)

var errNilDecoder = errors.New("token decoder not supplied")

// DenseExtractor handles local transformer outputs with full-vocabulary
// score vectors per step. Probabilities come from a numerically stable
// softmax over the whole vocabulary, so the reported top-k masses are true
// probabilities with an implicit remainder.
type DenseExtractor struct {
	topK int
}

func NewDenseExtractor(topK int) *DenseExtractor {
	return &DenseExtractor{topK: topK}
}

// Extract returns one ranked candidate list per generated step. A k larger
// than the vocabulary means the whole vocabulary. When the generated token
// count is known and shorter than the captured score list, excess scores
// are dropped so logits never leak past generation length.
func (e *DenseExtractor) Extract(out *domain.DenseLogitsOutput, decoder ports.TokenDecoder) ([][]domain.TokenInfo, error) {
	if decoder == nil {
		return nil, errNilDecoder
	}

	steps := len(out.Scores)
	if generated := len(out.GeneratedIDs()); generated > 0 && generated < steps {
		steps = generated
	}

	result := make([][]domain.TokenInfo, 0, steps)
	for step := 0; step < steps; step++ {
		candidates, err := e.extractStep(out.Scores[step], decoder)
		if err != nil {
			return nil, domain.NewExtractionError(domain.BackendDense, step, err)
		}
		result = append(result, candidates)
	}
	return result, nil
}

func (e *DenseExtractor) extractStep(logits []float64, decoder ports.TokenDecoder) ([]domain.TokenInfo, error) {
	if len(logits) == 0 {
		return nil, nil
	}

	probs := softmax(logits)

	k := e.topK
	if k > len(logits) {
		k = len(logits)
	}

	indices := make([]int, len(logits))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return probs[indices[a]] > probs[indices[b]]
	})

	candidates := make([]domain.TokenInfo, 0, k)
	for _, id := range indices[:k] {
		candidates = append(candidates, domain.TokenInfo{
			Token:       decoder.Decode([]int{id}),
			TokenID:     id,
			Logit:       logits[id],
			Probability: probs[id],
		})
	}
	return candidates, nil
}

// softmax converts logits to probabilities, shifting by the maximum first so
// large logits cannot overflow the exponentials.
func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}

	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(l - max)
		sum += probs[i]
	}
	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}
	return probs
}
