package extractor

import "sync"

// ScoreAccumulator collects per-step score vectors from a generation loop.
// The caller's loop appends one vector per generated token and hands the
// finished slice to DenseLogitsOutput; nothing here is shared with the
// analysis path while generation is still running.
//
// Appends copy their input, so the generation loop may reuse its buffer.
type ScoreAccumulator struct {
	mu     sync.Mutex
	scores [][]float64
}

func NewScoreAccumulator() *ScoreAccumulator {
	return &ScoreAccumulator{}
}

func (a *ScoreAccumulator) Append(stepScores []float64) {
	cp := make([]float64, len(stepScores))
	copy(cp, stepScores)

	a.mu.Lock()
	a.scores = append(a.scores, cp)
	a.mu.Unlock()
}

// Scores returns the accumulated vectors in generation order.
func (a *ScoreAccumulator) Scores() [][]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scores
}

// Len reports how many steps have been captured so far.
func (a *ScoreAccumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.scores)
}

// Reset clears the accumulator for reuse across generations.
func (a *ScoreAccumulator) Reset() {
	a.mu.Lock()
	a.scores = nil
	a.mu.Unlock()
}
