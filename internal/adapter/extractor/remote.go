package extractor

import (
	"errors"
	"math"

	"github.com/klara-research/klarity/internal/core/domain"
)

var errParallelArrays = errors.New("tokens and token_logprobs lengths differ")

// RemoteExtractor handles hosted-API outputs that annotate each emitted
// token with exactly one log-probability and never disclose alternatives.
// Every step therefore carries a single candidate; true entropy cannot be
// computed from this shape, and the estimator substitutes a
// confidence-complement proxy (1 - probability) in the raw-entropy slot.
type RemoteExtractor struct{}

func NewRemoteExtractor() *RemoteExtractor {
	return &RemoteExtractor{}
}

// Extract returns one single-candidate step per emitted token. TokenIDs may
// be absent (some APIs omit them); missing ids are reported as 0.
func (e *RemoteExtractor) Extract(out *domain.RemoteAPIOutput) ([][]domain.TokenInfo, error) {
	if len(out.Tokens) != len(out.TokenLogprobs) {
		return nil, domain.NewExtractionError(domain.BackendRemote, 0, errParallelArrays)
	}

	result := make([][]domain.TokenInfo, 0, len(out.Tokens))
	for step, token := range out.Tokens {
		logprob := out.TokenLogprobs[step]

		tokenID := 0
		if step < len(out.TokenIDs) {
			tokenID = out.TokenIDs[step]
		}

		result = append(result, []domain.TokenInfo{{
			Token:       token,
			TokenID:     tokenID,
			Logit:       logprob, // logprob, the API never reveals logits
			Probability: math.Exp(logprob),
		}})
	}
	return result, nil
}
