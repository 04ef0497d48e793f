package format

import (
	"fmt"
	"strings"
	"time"
)

const (
	zeroPercent = "0%"
	emptyToken  = "<empty>"
)

// Probability renders a probability for tables and insight prompts.
func Probability(p float64) string {
	return fmt.Sprintf("%.4f", p)
}

// Entropy renders an entropy value in nats.
func Entropy(e float64) string {
	return fmt.Sprintf("%.4f", e)
}

func Percentage(value float64) string {
	if value == 0 {
		return zeroPercent
	}
	if value == 100.0 {
		return "100%"
	}
	return fmt.Sprintf("%.1f%%", value)
}

// Token makes a candidate token safe for single-line display: whitespace is
// made visible and long tokens are truncated.
func Token(tok string) string {
	if tok == "" {
		return emptyToken
	}
	tok = strings.ReplaceAll(tok, "\n", "\\n")
	tok = strings.ReplaceAll(tok, "\t", "\\t")
	if len(tok) > 24 {
		return tok[:21] + "..."
	}
	return tok
}

func Duration(d time.Duration) string {
	if d < time.Second {
		return d.String()
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
