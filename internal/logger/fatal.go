package logger

import (
	"log/slog"
	"os"
)

// Fatal logs through the default logger and exits. For use before a
// configured logger exists.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// FatalWithLogger logs through the supplied logger and exits.
func FatalWithLogger(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}
