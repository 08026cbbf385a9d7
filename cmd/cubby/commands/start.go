package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cubbyfs/cubby/internal/logger"
	"github.com/cubbyfs/cubby/pkg/config"
	"github.com/cubbyfs/cubby/pkg/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cubby server",
	Long: `Start the cubby server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/cubby/config.yaml.

Examples:
  # Start with default config location
  cubby start

  # Start with custom config file
  cubby start --config /etc/cubby/config.yaml

  # Start with environment variable overrides
  CUBBY_LOGGING_LEVEL=DEBUG cubby start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := initLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Log level and format follow config file edits without a restart.
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	if _, err := os.Stat(configPath); err == nil {
		stopWatch, err := config.Watch(configPath, logger.With(), func(updated *config.Config) {
			logger.SetLevel(updated.Logging.Level)
			logger.SetFormat(updated.Logging.Format)
		})
		if err != nil {
			logger.Warn("config watching disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Configuration loaded",
		"source", configSource(),
		"port", cfg.Server.Port,
		"data_path", cfg.Storage.DataPath)
	if cfg.Metrics.Enabled {
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		logger.Info("Server stopped")
	}
	return nil
}

// initLogger configures the process logger from the loaded configuration.
func initLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// configSource describes where the configuration came from, for the startup log.
func configSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
