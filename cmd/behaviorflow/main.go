// BehaviorFlow - extracts absolute behavior models from recorded user sessions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/behaviorflow/behaviorflow/pkg/config"
	"github.com/behaviorflow/behaviorflow/pkg/defaults/metrics"
	"github.com/behaviorflow/behaviorflow/pkg/defaults/tracer"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
	"github.com/behaviorflow/behaviorflow/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configPath string
	logLevel   string
	verbose    bool
)

// Process-wide state built in PersistentPreRunE.
var (
	cfg      *config.Config
	logger   *slog.Logger
	tr       interfaces.Tracer = tracer.NewNoopTracer()
	exporter interfaces.MetricsExporter = metrics.NewNoopMetrics()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if hint := errors.GetCode(err).Hint(); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "behaviorflow",
	Short: "BehaviorFlow - Extract behavior models from session traces",
	Long: `BehaviorFlow turns recorded user sessions into absolute behavior models:
one directed graph per session whose vertices are use cases and whose
transitions count how often one use case followed another, together with
the observed time distances.

Models can be written as JSON, Parquet, DuckDB or Excel and kept in a
local, Redis or S3 model store.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := exporter.Flush(); err != nil {
			logger.Warn("metrics flush failed", "error", err)
		}
		if err := tr.Close(); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (merged over the default search paths)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

// setup loads configuration and builds the logger, tracer and metrics
// shared by all commands.
func setup(cmd *cobra.Command, args []string) error {
	mgr := config.NewManager()
	if err := mgr.Load(); err != nil {
		return err
	}
	if configPath != "" {
		if err := mgr.LoadFile(configPath); err != nil {
			return err
		}
	}
	cfg = mgr.Get()

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if verbose && logLevel == "" {
		cfg.Log.Level = "debug"
	}
	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", "paths", mgr.GetPaths())

	t, err := telemetry.Setup(cmd.Context(), cfg.Telemetry, version)
	if err != nil {
		// tracing is optional; keep running without it
		logger.Warn("telemetry disabled", "error", err)
	} else {
		tr = t
	}

	if verbose {
		exporter = metrics.NewLogMetrics(metrics.WithLogger(logger))
	}
	return nil
}

func newLogger(c config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
