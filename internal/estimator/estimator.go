// Package estimator is the top-level entry point: it dispatches a tagged
// generation output to the right extractor, runs the entropy analyzer per
// step, optionally asks the insight backend for an explanation and packages
// everything into one analysis result.
package estimator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/klara-research/klarity/internal/adapter/analyzer"
	"github.com/klara-research/klarity/internal/adapter/extractor"
	"github.com/klara-research/klarity/internal/core/domain"
	"github.com/klara-research/klarity/internal/core/ports"
)

// RemoteTopKCap is the most log-probabilities hosted APIs will disclose per
// step. A remote-backed estimator is clamped to it at construction time so
// truncation never surprises anyone downstream.
const RemoteTopKCap = 5

const DefaultTopK = 100

// Config builds an Estimator. TopK is the candidate count retained per
// step; RemoteModel marks the estimator as remote-API backed and forces the
// top-k cap. RemoteClient is required only when RemoteModel is set.
type Config struct {
	Analyzer     ports.UncertaintyAnalyzer
	RemoteClient ports.CompletionClient
	Logger       *slog.Logger
	RemoteModel  string
	TopK         int
}

// Options carries the per-call collaborators. The dense-logits path cannot
// run without a Decoder; Vision feeds the one-shot patch configuration on
// the first vision-language call.
type Options struct {
	Decoder ports.TokenDecoder
	Vision  *domain.VisionConfig
	Prompt  string
}

// GenerateOptions mirrors the decoding parameters forwarded to the remote
// backend when the estimator itself drives generation.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// Estimator is stateless across calls; the only shared state is the
// analyzer's one-shot vision configuration, so concurrent calls on
// independent outputs are safe.
type Estimator struct {
	analyzer     ports.UncertaintyAnalyzer
	remoteClient ports.CompletionClient
	logger       *slog.Logger

	dense   *extractor.DenseExtractor
	batched *extractor.BatchedExtractor
	remote  *extractor.RemoteExtractor

	remoteModel string
	topK        int
}

func New(cfg Config) (*Estimator, error) {
	topK := cfg.TopK
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 0 {
		return nil, &domain.ConfigValidationError{Field: "top_k", Value: cfg.TopK, Reason: "must be positive"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.RemoteModel != "" && topK > RemoteTopKCap {
		logger.Warn("clamping top_k to remote API logprob cap",
			"requested", topK, "cap", RemoteTopKCap, "model", cfg.RemoteModel)
		topK = RemoteTopKCap
	}

	anlz := cfg.Analyzer
	if anlz == nil {
		anlz = analyzer.New(analyzer.Config{Logger: logger})
	}

	return &Estimator{
		analyzer:     anlz,
		remoteClient: cfg.RemoteClient,
		logger:       logger,
		dense:        extractor.NewDenseExtractor(topK),
		batched:      extractor.NewBatchedExtractor(topK),
		remote:       extractor.NewRemoteExtractor(),
		remoteModel:  cfg.RemoteModel,
		topK:         topK,
	}, nil
}

// TopK returns the effective per-step candidate count after any remote cap.
func (e *Estimator) TopK() int { return e.topK }

// Generate drives a generation through the configured remote backend,
// returning it as the tagged remote variant ready for analysis.
func (e *Estimator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*domain.RemoteAPIOutput, error) {
	if e.remoteClient == nil || e.remoteModel == "" {
		return nil, domain.NewConfigurationError(domain.BackendRemote, "a remote client and model id")
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 10
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}

	resp, err := e.remoteClient.ChatCompletion(ctx, ports.CompletionRequest{
		Model:       e.remoteModel,
		Messages:    []ports.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Logprobs:    true,
	})
	if err != nil {
		return nil, err
	}

	return &domain.RemoteAPIOutput{
		Text:          resp.Text,
		Tokens:        resp.Tokens,
		TokenIDs:      resp.TokenIDs,
		TokenLogprobs: resp.TokenLogprobs,
	}, nil
}

// AnalyzeGeneration normalises one generation output into per-step
// candidate lists, computes entropy metrics per step and assembles the
// final result. Fatal errors are configuration or shape problems; per-step
// anomalies degrade to warnings.
func (e *Estimator) AnalyzeGeneration(ctx context.Context, output domain.GenerationOutput, opts Options) (*domain.UncertaintyAnalysisResult, error) {
	var (
		steps         [][]domain.TokenInfo
		generatedText string
		attention     *domain.AttentionData
		warnings      []string
		remotePath    bool
	)

	switch out := output.(type) {
	case *domain.DenseLogitsOutput:
		if opts.Decoder == nil {
			return nil, domain.NewConfigurationError(domain.BackendDense, "a token decoder")
		}

		if va, ok := e.analyzer.(ports.VisionAnalyzer); ok && out.HasAttentions() {
			attentionData, warn := e.processVision(va, out, opts)
			attention = attentionData
			if warn != "" {
				warnings = append(warnings, warn)
			}
		}

		extracted, err := e.dense.Extract(out, opts.Decoder)
		if err != nil {
			return nil, err
		}
		steps = extracted
		generatedText = opts.Decoder.Decode(out.GeneratedIDs())

	case *domain.BatchedOutput:
		extracted, err := e.batched.Extract(out)
		if err != nil {
			return nil, err
		}
		steps = extracted
		generatedText = out.Text

	case *domain.RemoteAPIOutput:
		extracted, err := e.remote.Extract(out)
		if err != nil {
			return nil, err
		}
		steps = extracted
		generatedText = out.Text
		remotePath = true

	default:
		return nil, &domain.UnsupportedOutputError{Detail: fmt.Sprintf("%T", output)}
	}

	metrics := make([]domain.UncertaintyMetrics, 0, len(steps))
	for i, candidates := range steps {
		m, warn := e.stepMetrics(candidates, remotePath)
		if warn {
			warnings = append(warnings, fmt.Sprintf("step %d: %v", i, domain.ErrNoCandidates))
		}
		metrics = append(metrics, m)
	}

	result := &domain.UncertaintyAnalysisResult{
		TokenMetrics: metrics,
		Attention:    attention,
		Warnings:     warnings,
	}

	insight, err := e.analyzer.OverallInsight(ctx, ports.InsightRequest{
		Metrics:       metrics,
		Query:         opts.Prompt,
		GeneratedText: generatedText,
		Attention:     attention,
	})
	if err != nil {
		// recoverable by contract: the analysis stands, the insight is
		// simply absent
		e.logger.Warn("insight generation failed", "error", err)
		result.Warnings = append(result.Warnings, err.Error())
	} else {
		result.OverallInsight = insight
	}

	return result, nil
}

// AnalyzeBatch analyses independent generation outputs concurrently,
// preserving input order. One fatal analysis fails the batch.
func (e *Estimator) AnalyzeBatch(ctx context.Context, outputs []domain.GenerationOutput, opts Options) ([]*domain.UncertaintyAnalysisResult, error) {
	results := make([]*domain.UncertaintyAnalysisResult, len(outputs))

	g, gctx := errgroup.WithContext(ctx)
	for i, output := range outputs {
		g.Go(func() error {
			result, err := e.AnalyzeGeneration(gctx, output, opts)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// stepMetrics computes the metric bundle for one step. A step the backend
// gave no candidates for still yields a bundle: sentinel entropy 0 and an
// empty prediction list, flagged through the warning return.
func (e *Estimator) stepMetrics(candidates []domain.TokenInfo, remotePath bool) (domain.UncertaintyMetrics, bool) {
	if len(candidates) == 0 {
		return domain.UncertaintyMetrics{TokenPredictions: []domain.TokenInfo{}}, true
	}

	if remotePath {
		// single-candidate steps cannot produce an entropy; substitute the
		// documented confidence complement and skip semantic clustering
		return domain.UncertaintyMetrics{
			RawEntropy:       1 - candidates[0].Probability,
			SemanticEntropy:  0,
			TokenPredictions: candidates,
		}, false
	}

	probs := make([]float64, len(candidates))
	for i, c := range candidates {
		probs[i] = c.Probability
	}

	return domain.UncertaintyMetrics{
		RawEntropy:       e.analyzer.RawEntropy(probs),
		SemanticEntropy:  e.analyzer.SemanticEntropy(candidates),
		TokenPredictions: candidates,
	}, false
}

// processVision decodes the generated tokens individually and fuses their
// attention frames with the patch grid. Failures here never abort the
// analysis; the caller records the warning and carries on without maps.
func (e *Estimator) processVision(va ports.VisionAnalyzer, out *domain.DenseLogitsOutput, opts Options) (*domain.AttentionData, string) {
	if opts.Vision != nil {
		va.EnsureVisionConfig(*opts.Vision)
	}
	if !va.VisionConfigured() {
		e.logger.Debug("vision config not initialised, using native grid fallback")
	}

	tokens := make([]string, 0, len(out.GeneratedIDs()))
	for _, id := range out.GeneratedIDs() {
		text := opts.Decoder.Decode([]int{id})
		tokens = append(tokens, text)
	}

	attention, err := va.ProcessAttentionFrames(out.Attentions, tokens, out.ImageTokens)
	if err != nil {
		e.logger.Warn("attention fusion failed", "error", err)
		return nil, fmt.Sprintf("attention fusion failed: %v", err)
	}
	return attention, ""
}
