package analyzer

import (
	"errors"
	"math"
	"sync"

	"github.com/klara-research/klarity/internal/core/domain"
	"github.com/klara-research/klarity/internal/core/ports"
)

var errNoFrames = errors.New("no attention frames supplied")

// VLMAnalyzer extends the entropy engine with spatial attention fusion for
// vision-language generations.
//
// The vision patch configuration is a write-once cell: the first valid
// config wins, later calls are no-ops. Concurrent first calls are safe; the
// losers observe the winner's value, never torn state.
type VLMAnalyzer struct {
	*EntropyAnalyzer

	visionMu  sync.RWMutex
	visionCfg domain.VisionConfig
	visionSet bool
}

func NewVLM(cfg Config) *VLMAnalyzer {
	return &VLMAnalyzer{EntropyAnalyzer: New(cfg)}
}

// EnsureVisionConfig installs the patch configuration if none is set.
// Invalid configs are ignored so a bad caller cannot burn the one-shot slot.
func (v *VLMAnalyzer) EnsureVisionConfig(cfg domain.VisionConfig) {
	if !cfg.Valid() {
		return
	}
	v.visionMu.Lock()
	if !v.visionSet {
		v.visionCfg = cfg
		v.visionSet = true
	}
	v.visionMu.Unlock()
}

func (v *VLMAnalyzer) VisionConfigured() bool {
	v.visionMu.RLock()
	defer v.visionMu.RUnlock()
	return v.visionSet
}

func (v *VLMAnalyzer) visionConfig() (domain.VisionConfig, bool) {
	v.visionMu.RLock()
	defer v.visionMu.RUnlock()
	return v.visionCfg, v.visionSet
}

// ProcessAttentionFrames fuses one attention frame per generated token with
// the image patch grid, producing a normalised saliency map per token.
//
// Frames whose vision region does not fill the configured grid exactly are
// tolerated: excess positions are dropped and, when no usable grid can be
// derived from the config, the grid side falls back to floor(sqrt(region)).
func (v *VLMAnalyzer) ProcessAttentionFrames(frames []domain.AttentionFrame, tokens []string, imageTokens domain.Span) (*domain.AttentionData, error) {
	if len(frames) == 0 {
		return nil, errNoFrames
	}

	count := len(frames)
	if len(tokens) < count {
		count = len(tokens)
	}

	cfg, configured := v.visionConfig()

	data := &domain.AttentionData{
		TokenMaps: make([]domain.TokenAttention, 0, count),
	}

	for i := 0; i < count; i++ {
		region := sliceVisionRegion(frames[i], imageTokens)
		if configured && cfg.UseCLSToken && len(region) > 0 {
			region = region[1:]
		}

		side := gridSide(cfg, configured, len(region))
		if side == 0 {
			// degenerate frame, emit an empty map to keep maps aligned
			// with tokens
			data.TokenMaps = append(data.TokenMaps, domain.TokenAttention{Token: tokens[i]})
			continue
		}

		cells := side * side
		saliency := normaliseSaliency(region[:cells])

		data.TokenMaps = append(data.TokenMaps, domain.TokenAttention{
			Token:    tokens[i],
			Saliency: saliency,
		})
		if side > data.GridRows {
			data.GridRows = side
			data.GridCols = side
		}
	}

	return data, nil
}

var _ ports.VisionAnalyzer = (*VLMAnalyzer)(nil)

// sliceVisionRegion cuts the image-token span out of a frame. A missing or
// out-of-range span means the whole frame is treated as vision positions.
func sliceVisionRegion(frame domain.AttentionFrame, span domain.Span) []float64 {
	if span.Len() > 0 && span.Start >= 0 && span.End <= len(frame) {
		return frame[span.Start:span.End]
	}
	return frame
}

// gridSide picks the largest usable grid dimension. The configured side is
// honoured when the region covers it; otherwise fall back to the native
// square the region supports.
func gridSide(cfg domain.VisionConfig, configured bool, regionLen int) int {
	if regionLen == 0 {
		return 0
	}
	if configured {
		if side := cfg.GridSide(); side > 0 && side*side <= regionLen {
			return side
		}
	}
	return int(math.Sqrt(float64(regionLen)))
}

// normaliseSaliency scales weights into [0,1] by the frame maximum. A frame
// of all zeros stays all zeros.
func normaliseSaliency(region []float64) []float64 {
	out := make([]float64, len(region))
	var max float64
	for _, w := range region {
		if w > max {
			max = w
		}
	}
	if max <= 0 {
		return out
	}
	for i, w := range region {
		if w < 0 {
			w = 0
		}
		out[i] = w / max
	}
	return out
}
