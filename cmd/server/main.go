package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/copper/internal/infrastructure/config"
	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/copper/internal/infrastructure/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Parse flags
	port := flag.String("port", "", "Server port (overrides PORT)")
	mode := flag.String("mode", "", "Run mode: standalone or node")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := applyFlags(cfg, *port, *mode, *dev); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(loggerConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	code := run(cfg, logger)
	_ = logger.Sync()
	os.Exit(code)
}

func run(cfg *config.Config, logger *logging.Logger) int {
	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Error("Failed to create server", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error("Failed to start server", zap.Error(err))
		return 1
	}

	// Wait for shutdown signal or error
	code := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully")
	case err := <-srv.Errors():
		if err != nil {
			logger.Error("Server error", zap.Error(err))
			code = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return 1
	}
	return code
}

// loggerConfig starts from the production or development preset and
// overlays the configured level.
func loggerConfig(c config.LogConfig) logging.Config {
	lc := logging.DefaultConfig()
	if c.Development {
		lc = logging.DevelopmentConfig()
	}
	if c.Level != "" {
		lc.Level = c.Level
	}
	return lc
}

// applyFlags overrides loaded configuration with flags that were set.
func applyFlags(cfg *config.Config, port, mode string, dev bool) error {
	if port != "" {
		cfg.Server.Port = port
	}
	switch mode {
	case "":
	case "standalone":
		cfg.Node.Enabled = false
	case "node":
		cfg.Node.Enabled = true
	default:
		return fmt.Errorf("unknown mode %q, want standalone or node", mode)
	}
	if dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	return nil
}
