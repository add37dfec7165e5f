package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tidb-charts/internal/config"
	"tidb-charts/internal/serverapp"

	"github.com/spf13/pflag"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	pflag.Bool("version", false, "Print version and exit")

	cfg, err := config.Load()
	// Flags are parsed even when loading fails, so --version works without a database.
	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("tidb-charts %s (%s)\n", Version, Commit)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}
	if err := checkConfig(cfg, slog.Default()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, loggerProvider, err := serverapp.InitLogger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)

	if err := app.Init(ctx); err != nil {
		return err
	}
	if err := app.Run(ctx); err != nil {
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}

// checkConfig logs every validation finding and fails when any is fatal.
func checkConfig(cfg *config.Config, logger *slog.Logger) error {
	result := cfg.Validate()
	for _, warn := range result.Warnings {
		logger.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if !result.HasErrors() {
		return nil
	}
	for _, verr := range result.Errors {
		logger.Error("configuration error",
			slog.String("field", verr.Field),
			slog.String("message", verr.Message),
			slog.String("hint", verr.Hint),
		)
	}
	return fmt.Errorf("configuration validation failed: %s", result.Error())
}
