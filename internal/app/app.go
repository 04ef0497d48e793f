// Package app wires the configuration, analyzers and estimator into the
// offline dump-analysis tool: read a captured generation output, classify
// it, analyse it, render the result.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/klara-research/klarity/internal/adapter/analyzer"
	"github.com/klara-research/klarity/internal/adapter/extractor"
	"github.com/klara-research/klarity/internal/adapter/insight"
	"github.com/klara-research/klarity/internal/adapter/remote"
	"github.com/klara-research/klarity/internal/config"
	"github.com/klara-research/klarity/internal/core/domain"
	"github.com/klara-research/klarity/internal/core/ports"
	"github.com/klara-research/klarity/internal/estimator"
	"github.com/klara-research/klarity/internal/logger"
)

type Application struct {
	cfg    *config.Config
	logger *logger.StyledLogger
}

func New(cfg *config.Config, styledLogger *logger.StyledLogger) *Application {
	return &Application{cfg: cfg, logger: styledLogger}
}

// Run analyses one captured generation dump and renders the result. A dump
// from a batched engine may hold several sampled completions; they are
// analysed concurrently and rendered in order.
func (a *Application) Run(ctx context.Context, dumpPath string, asJSON bool) error {
	raw, err := os.ReadFile(dumpPath)
	if err != nil {
		return fmt.Errorf("reading generation dump: %w", err)
	}

	output, err := extractor.Classify(raw)
	if err != nil {
		return err
	}
	a.logger.InfoWithBackend("classified generation dump", output.Backend(), "path", dumpPath)

	est, err := a.buildEstimator(output)
	if err != nil {
		return err
	}

	opts := estimator.Options{
		Decoder: dumpDecoder(),
		Vision:  a.visionConfig(),
	}

	if output.Backend() == domain.BackendBatched {
		return a.runBatched(ctx, est, raw, opts, asJSON)
	}

	result, err := est.AnalyzeGeneration(ctx, output, opts)
	if err != nil {
		return err
	}
	return a.render([]*domain.UncertaintyAnalysisResult{result}, asJSON)
}

func (a *Application) runBatched(ctx context.Context, est *estimator.Estimator, raw []byte, opts estimator.Options, asJSON bool) error {
	outputs, err := extractor.ParseBatched(raw)
	if err != nil {
		return err
	}

	generations := make([]domain.GenerationOutput, len(outputs))
	for i, out := range outputs {
		generations[i] = out
	}

	a.logger.InfoWithCount("analysing batched completions", len(generations))
	results, err := est.AnalyzeBatch(ctx, generations, opts)
	if err != nil {
		return err
	}
	return a.render(results, asJSON)
}

// buildEstimator selects the analyzer implementation explicitly: the
// vision-language engine only when the output actually carries attention
// frames, the text-only engine otherwise.
func (a *Application) buildEstimator(output domain.GenerationOutput) (*estimator.Estimator, error) {
	clusterer := analyzer.NewRuleClusterer(a.cfg.Clustering.SimilarityThreshold)
	if a.cfg.Clustering.RulesFile != "" {
		if err := clusterer.LoadRules(a.cfg.Clustering.RulesFile); err != nil {
			return nil, err
		}
		a.logger.Info("loaded clustering rules", "file", a.cfg.Clustering.RulesFile)
	}

	analyzerCfg := analyzer.Config{
		Clusterer:    clusterer,
		Insight:      a.buildInsight(),
		Logger:       a.logger.GetUnderlying(),
		MinTokenProb: a.cfg.Estimator.MinTokenProb,
	}

	var anlz ports.UncertaintyAnalyzer
	if dense, ok := output.(*domain.DenseLogitsOutput); ok && dense.HasAttentions() {
		anlz = analyzer.NewVLM(analyzerCfg)
	} else {
		anlz = analyzer.New(analyzerCfg)
	}

	return estimator.New(estimator.Config{
		TopK:        a.cfg.Estimator.TopK,
		Analyzer:    anlz,
		RemoteModel: a.cfg.Remote.Model,
		Logger:      a.logger.GetUnderlying(),
	})
}

func (a *Application) buildInsight() analyzer.InsightGenerator {
	if !a.cfg.Insight.Enabled {
		return nil
	}

	client := remote.NewClient(remote.Config{
		BaseURL:           a.cfg.Remote.BaseURL,
		APIKey:            a.cfg.RemoteAPIKey(),
		Timeout:           a.cfg.Remote.Timeout,
		RequestsPerSecond: a.cfg.Remote.RequestsPerSecond,
		Burst:             a.cfg.Remote.Burst,
		Logger:            a.logger.GetUnderlying(),
	})

	return insight.New(client, insight.Config{
		Model:        a.cfg.Insight.Model,
		MaxTokens:    a.cfg.Insight.MaxTokens,
		Temperature:  a.cfg.Insight.Temperature,
		MinTokenProb: a.cfg.Estimator.MinTokenProb,
		Timeout:      a.cfg.Insight.Timeout,
		Logger:       a.logger.GetUnderlying(),
	})
}

func (a *Application) visionConfig() *domain.VisionConfig {
	cfg := domain.VisionConfig{
		PatchSize:   a.cfg.Vision.PatchSize,
		ImageSize:   a.cfg.Vision.ImageSize,
		UseCLSToken: a.cfg.Vision.UseCLSToken,
	}
	if !cfg.Valid() {
		return nil
	}
	return &cfg
}

// dumpDecoder is the decoder used for offline dumps, which carry no
// tokenizer. Token ids render as placeholders; live callers supply a real
// decoder instead.
func dumpDecoder() ports.TokenDecoder {
	return ports.TokenDecoderFunc(func(ids []int) string {
		var out string
		for i, id := range ids {
			if i > 0 {
				out += " "
			}
			out += fmt.Sprintf("<%d>", id)
		}
		return out
	})
}
