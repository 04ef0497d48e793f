package extractor

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"

	"github.com/klara-research/klarity/internal/core/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Classify inspects a captured generation dump once and produces the tagged
// backend variant the rest of the core switches over. Shape probes run in
// priority order: attention frames mark a dense vision-language output,
// an outputs list marks a batched engine, per-token logprob arrays mark a
// remote API response, bare score vectors mark a text-only dense output.
//
// This is the only place structural duck-typing happens; everything past
// this boundary deals in domain.GenerationOutput variants.
func Classify(raw []byte) (domain.GenerationOutput, error) {
	if len(raw) == 0 {
		return nil, &domain.UnsupportedOutputError{Detail: "empty payload"}
	}
	if !gjson.ValidBytes(raw) {
		return nil, &domain.UnsupportedOutputError{Detail: "payload is not valid JSON"}
	}

	switch {
	case gjson.GetBytes(raw, "attentions").Exists(),
		gjson.GetBytes(raw, "scores").Exists():
		return parseDense(raw)

	case gjson.GetBytes(raw, "outputs").Exists():
		outputs, err := ParseBatched(raw)
		if err != nil {
			return nil, err
		}
		return outputs[0], nil

	case gjson.GetBytes(raw, "token_logprobs").Exists():
		return parseRemote(raw)

	default:
		return nil, &domain.UnsupportedOutputError{Detail: "no scores, outputs or token_logprobs field"}
	}
}

func parseDense(raw []byte) (*domain.DenseLogitsOutput, error) {
	var out domain.DenseLogitsOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.UnsupportedOutputError{Detail: fmt.Sprintf("malformed dense output: %v", err)}
	}
	if len(out.Scores) == 0 {
		return nil, &domain.UnsupportedOutputError{Detail: "dense output has no score vectors"}
	}
	return &out, nil
}

func parseRemote(raw []byte) (*domain.RemoteAPIOutput, error) {
	var out domain.RemoteAPIOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.UnsupportedOutputError{Detail: fmt.Sprintf("malformed remote output: %v", err)}
	}
	return &out, nil
}

// ParseBatched parses every completion in a batched engine dump. The
// per-step logprob mappings are walked with gjson so the engine's document
// order survives; that order is the tie-breaker when candidates share a
// log-probability.
func ParseBatched(raw []byte) ([]*domain.BatchedOutput, error) {
	outputsField := gjson.GetBytes(raw, "outputs")
	if !outputsField.IsArray() {
		return nil, &domain.UnsupportedOutputError{Detail: "outputs field is not a list"}
	}

	var outputs []*domain.BatchedOutput

	outputsField.ForEach(func(_, output gjson.Result) bool {
		parsed := &domain.BatchedOutput{
			Text: output.Get("text").String(),
		}

		logprobs := output.Get("logprobs")
		logprobs.ForEach(func(_, stepMap gjson.Result) bool {
			step := domain.BatchedStep{}
			stepMap.ForEach(func(tokenID, entry gjson.Result) bool {
				step.Candidates = append(step.Candidates, domain.BatchedCandidate{
					TokenID:      int(tokenID.Int()),
					Logprob:      entry.Get("logprob").Float(),
					DecodedToken: entry.Get("decoded_token").String(),
				})
				return true
			})
			parsed.Steps = append(parsed.Steps, step)
			return true
		})

		outputs = append(outputs, parsed)
		return true
	})

	if len(outputs) == 0 {
		return nil, &domain.UnsupportedOutputError{Detail: "outputs list is empty"}
	}
	return outputs, nil
}
