package logger

import (
	"fmt"
	"log/slog"

	"github.com/klara-research/klarity/internal/core/domain"
	"github.com/klara-research/klarity/theme"
)

// StyledLogger wraps slog.Logger with Theme-aware formatting
type StyledLogger struct {
	logger *slog.Logger
	Theme  *theme.Theme
}

func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	return &StyledLogger{
		logger: logger,
		Theme:  theme,
	}
}

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.Theme.Highlight.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

// InfoWithBackend highlights which inference backend a message concerns.
func (sl *StyledLogger) InfoWithBackend(msg string, backend domain.Backend, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.Theme.Accent.Sprint(backend.String()))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithBackend(msg string, backend domain.Backend, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.Theme.Accent.Sprint(backend.String()))
	sl.logger.Warn(styledMsg, args...)
}

// InfoWithModel highlights a model identifier.
func (sl *StyledLogger) InfoWithModel(msg string, model string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.Theme.Highlight.Sprint(model))
	sl.logger.Info(styledMsg, args...)
}

// InfoWithEntropy renders an entropy value with danger styling once it
// crosses the highlight threshold.
func (sl *StyledLogger) InfoWithEntropy(msg string, entropy float64, highThreshold float64, args ...any) {
	style := sl.Theme.Entropy
	if entropy >= highThreshold {
		style = sl.Theme.HighEntropy
	}
	styledMsg := fmt.Sprintf("%s %s", msg, style.Sprintf("%.4f", entropy))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		Theme:  sl.Theme,
	}
}

func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}
	return sl.With(args...)
}

// Sprint helpers used by the analysis renderer so styling stays consistent
// with log output.
func (sl *StyledLogger) StyleToken(token string) string {
	return sl.Theme.Token.Sprint(token)
}

func (sl *StyledLogger) StyleProbability(p float64) string {
	return sl.Theme.Probability.Sprintf("%.4f", p)
}
