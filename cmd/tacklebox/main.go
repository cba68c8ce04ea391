package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/app"
	"github.com/ternarybob/tacklebox/internal/common"
)

var (
	// Global flags
	configFiles []string // --config/-c may be repeated; later files override earlier ones
	logLevel    string

	// Set by loadConfig
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "tacklebox",
	Short:         "Fishing lure catalog aggregator",
	Long:          `Collects lure product data from manufacturer sites into one normalized catalog.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (trace, debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("Command failed")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

// loadConfig resolves configuration (defaults -> files -> env -> flags),
// validates it and initializes the logger
func loadConfig() error {
	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Validate
	// 4. Initialize logger
	paths := configFiles
	if len(paths) == 0 {
		paths = common.DiscoverConfigFiles()
	}

	cfg, err := common.LoadFromFiles(paths...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(cfg, logLevel)

	if err := cfg.Validate(); err != nil {
		return err
	}

	config = cfg
	logger = common.InitLogger(cfg)

	logger.Debug().
		Strs("config_files", paths).
		Str("catalog_type", cfg.Catalog.Type).
		Str("workflow_path", cfg.Workflow.Path).
		Str("log_level", cfg.Logging.Level).
		Msg("Configuration loaded")

	return nil
}

// openApp loads configuration and opens every store and service
func openApp(ctx context.Context) (*app.App, error) {
	if err := loadConfig(); err != nil {
		return nil, err
	}
	application, err := app.New(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	return application, nil
}
