package app

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pterm/pterm"

	"github.com/klara-research/klarity/internal/core/domain"
	"github.com/klara-research/klarity/pkg/format"
)

// entropy above this renders in the high-uncertainty style
const highEntropyThreshold = 1.0

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (a *Application) render(results []*domain.UncertaintyAnalysisResult, asJSON bool) error {
	if asJSON {
		return a.renderJSON(results)
	}

	for i, result := range results {
		if len(results) > 1 {
			pterm.DefaultSection.Printf("Completion %d", i)
		}
		a.renderTable(result)
	}
	return nil
}

func (a *Application) renderJSON(results []*domain.UncertaintyAnalysisResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if len(results) == 1 {
		return enc.Encode(results[0])
	}
	return enc.Encode(results)
}

func (a *Application) renderTable(result *domain.UncertaintyAnalysisResult) {
	table := pterm.TableData{
		{"step", "raw entropy", "semantic entropy", "top predictions"},
	}

	for i, m := range result.TokenMetrics {
		entropyCell := format.Entropy(m.RawEntropy)
		if m.RawEntropy >= highEntropyThreshold {
			entropyCell = a.logger.Theme.HighEntropy.Sprint(entropyCell)
		}

		table = append(table, []string{
			fmt.Sprintf("%d", i),
			entropyCell,
			format.Entropy(m.SemanticEntropy),
			topPredictionsCell(m.TokenPredictions),
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
		a.logger.Warn("table render failed", "error", err)
	}

	mean := result.MeanRawEntropy()
	peak, peakStep := result.MaxRawEntropy()
	a.logger.InfoWithEntropy("mean raw entropy", mean, highEntropyThreshold)
	if peakStep >= 0 {
		a.logger.InfoWithEntropy(fmt.Sprintf("peak raw entropy (step %d)", peakStep), peak, highEntropyThreshold)
	}

	if result.Attention != nil {
		a.logger.InfoWithCount("attention maps", len(result.Attention.TokenMaps),
			"grid", fmt.Sprintf("%dx%d", result.Attention.GridRows, result.Attention.GridCols))
	}

	if result.OverallInsight != "" {
		pterm.DefaultBox.WithTitle("Insight").Println(result.OverallInsight)
	}

	for _, warning := range result.Warnings {
		a.logger.Warn(warning)
	}
}

func topPredictionsCell(preds []domain.TokenInfo) string {
	limit := 3
	if len(preds) < limit {
		limit = len(preds)
	}

	var cell string
	for i := 0; i < limit; i++ {
		if i > 0 {
			cell += "  "
		}
		cell += fmt.Sprintf("%s %s",
			format.Token(preds[i].Token),
			format.Probability(preds[i].Probability))
	}
	if cell == "" {
		cell = "-"
	}
	return cell
}
