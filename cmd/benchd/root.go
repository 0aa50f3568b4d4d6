package main

import (
	"fmt"
	"log/slog"
	"os"

	"arc-framework/benchd/internal/config"
	"arc-framework/benchd/internal/telemetry"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "benchd",
	Short: "Benchmark HTTP server launcher",
	Long: `benchd sizes a worker pool from the host's cores, registers the
benchmark application as the boot component and starts the HTTP runtime
on port 8888.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(telemetry.NewLogger(os.Stdout, logLevel))

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// --log-level flag takes precedence over value in config file.
		if cmd.Flags().Changed("log-level") || cfg.Telemetry.LogLevel == "" {
			cfg.Telemetry.LogLevel = logLevel
		}
		if err := initLogger(cfg.Telemetry); err != nil {
			return err
		}

		app, err = buildAppContext(cfg, slog.Default())
		if err != nil {
			return fmt.Errorf("building app context: %w", err)
		}

		return nil
	}

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initLogger installs the default logger. With telemetry.log_file set,
// records are also appended to that file for the life of the process.
func initLogger(tc config.TelemetryConfig) error {
	var extra []slog.Handler
	if tc.LogFile != "" {
		h, _, err := telemetry.FileHandler(tc.LogFile, tc.LogLevel)
		if err != nil {
			return err
		}
		extra = append(extra, h)
	}
	slog.SetDefault(telemetry.NewLogger(os.Stdout, tc.LogLevel, extra...))
	return nil
}
