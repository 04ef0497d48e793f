package domain

// Backend identifies which inference source produced a generation output.
type Backend int

const (
	BackendUnknown Backend = iota
	BackendDense
	BackendBatched
	BackendRemote
)

func (b Backend) String() string {
	switch b {
	case BackendDense:
		return "dense"
	case BackendBatched:
		return "batched"
	case BackendRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// GenerationOutput is the tagged union over the three backend output shapes.
// It is sealed: only the three variants below implement it, so a type switch
// over them is exhaustive. Classification from a backend's native shape
// happens once, at the boundary (see adapter/extractor), never again inside
// the core.
type GenerationOutput interface {
	Backend() Backend
	sealed()
}

// AttentionFrame is one generated step's attention weighting over source
// positions, already averaged across layers and heads by the generation
// collaborator.
type AttentionFrame []float64

// Span marks a half-open [Start, End) range of input positions.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) Len() int {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// DenseLogitsOutput is a local transformer generation with full-vocabulary
// score vectors exposed per step. Scores holds exactly one vector per
// generated token, in generation order, as accumulated by the caller's
// generation loop. Sequence is the whole token id sequence including the
// prompt; InputLength slices the generated region out of it.
//
// Attentions and ImageTokens are populated only for vision-language
// generations; an empty Attentions slice means text-only.
type DenseLogitsOutput struct {
	Scores      [][]float64      `json:"scores"`
	Sequence    []int            `json:"sequence"`
	Attentions  []AttentionFrame `json:"attentions,omitempty"`
	ImageTokens Span             `json:"image_tokens,omitzero"`
	InputLength int              `json:"input_length"`
}

func (*DenseLogitsOutput) Backend() Backend { return BackendDense }
func (*DenseLogitsOutput) sealed()          {}

// HasAttentions reports whether this output carries attention frames and can
// take the vision-language path.
func (o *DenseLogitsOutput) HasAttentions() bool { return len(o.Attentions) > 0 }

// GeneratedIDs returns the token ids after the prompt.
func (o *DenseLogitsOutput) GeneratedIDs() []int {
	if o.InputLength >= len(o.Sequence) {
		return nil
	}
	return o.Sequence[o.InputLength:]
}

// BatchedCandidate is one entry of the batched engine's per-step logprob
// mapping: a token id, the log-probability the engine tracked for it, and
// the engine's own decoding of the token.
type BatchedCandidate struct {
	DecodedToken string  `json:"decoded_token"`
	TokenID      int     `json:"token_id"`
	Logprob      float64 `json:"logprob"`
}

// BatchedStep is the candidate set the engine reported for one step.
// Candidates keeps the engine's insertion order; the extractor relies on
// that order for stable tie-breaking when it sorts by logprob.
type BatchedStep struct {
	Candidates []BatchedCandidate `json:"candidates"`
}

// BatchedOutput is one completion from a high-throughput serving engine that
// reports only the top-N log-probabilities it tracked internally. N may be
// smaller than any requested top-k; it is never padded.
type BatchedOutput struct {
	Text  string        `json:"text"`
	Steps []BatchedStep `json:"steps"`
}

func (*BatchedOutput) Backend() Backend { return BackendBatched }
func (*BatchedOutput) sealed()          {}

// RemoteAPIOutput is a hosted chat-completion response with log-probability
// annotations: exactly one log-probability per emitted token, never a ranked
// list of alternatives. Tokens, TokenIDs and TokenLogprobs are parallel.
type RemoteAPIOutput struct {
	Text          string    `json:"text"`
	Tokens        []string  `json:"tokens"`
	TokenIDs      []int     `json:"token_ids"`
	TokenLogprobs []float64 `json:"token_logprobs"`
}

func (*RemoteAPIOutput) Backend() Backend { return BackendRemote }
func (*RemoteAPIOutput) sealed()          {}
