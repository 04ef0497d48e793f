package extractor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreAccumulator(t *testing.T) {
	t.Run("append copies the caller's buffer", func(t *testing.T) {
		acc := NewScoreAccumulator()

		buf := []float64{1, 2, 3}
		acc.Append(buf)
		buf[0] = 99 // generation loop reuses its buffer

		scores := acc.Scores()
		require.Len(t, scores, 1)
		assert.Equal(t, []float64{1, 2, 3}, scores[0])
	})

	t.Run("preserves generation order", func(t *testing.T) {
		acc := NewScoreAccumulator()
		acc.Append([]float64{1})
		acc.Append([]float64{2})
		acc.Append([]float64{3})

		assert.Equal(t, 3, acc.Len())
		assert.Equal(t, [][]float64{{1}, {2}, {3}}, acc.Scores())
	})

	t.Run("reset clears for reuse", func(t *testing.T) {
		acc := NewScoreAccumulator()
		acc.Append([]float64{1})
		acc.Reset()

		assert.Equal(t, 0, acc.Len())
		assert.Empty(t, acc.Scores())
	})

	t.Run("concurrent appends all land", func(t *testing.T) {
		acc := NewScoreAccumulator()

		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func(v float64) {
				defer wg.Done()
				acc.Append([]float64{v})
			}(float64(i))
		}
		wg.Wait()

		assert.Equal(t, 32, acc.Len())
	})
}
