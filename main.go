package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/klara-research/klarity/internal/app"
	"github.com/klara-research/klarity/internal/config"
	"github.com/klara-research/klarity/internal/logger"
	"github.com/klara-research/klarity/internal/version"
)

func main() {
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}

	asJSON := flag.Bool("json", false, "emit the analysis result as JSON")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [--json] <generation-dump.json>\n", version.Name)
		os.Exit(2)
	}
	dumpPath := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	lcfg := &logger.Config{
		Level:      cfg.Logging.Level,
		Theme:      cfg.Logging.Theme,
		LogDir:     cfg.Logging.Directory,
		FileOutput: cfg.Logging.FileOutput,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.SetDefault(logInstance)

	if !*asJSON {
		version.PrintVersionInfo(false, vlog)
	}

	// setup: graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	application := app.New(cfg, styledLogger)
	if err := application.Run(ctx, dumpPath, *asJSON); err != nil {
		logger.FatalWithLogger(logInstance, "Analysis failed", "error", err)
	}
}
