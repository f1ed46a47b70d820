package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"RegulatoryTracker/internal/app"
	"RegulatoryTracker/internal/config"
	"RegulatoryTracker/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "regtracker",
	Short: "Regulatory change tracker for pharmaceutical compliance teams",
	Long: `regtracker fetches regulatory publications from configured sources,
detects new and revised documents, classifies their risk and impact areas,
maps them to catalog products and publishes the resulting assessments.

Commands:
  run    Execute a single batch and print its summary
  serve  Run batches on a schedule and expose the HTTP API
  mcp    Serve recent assessments as MCP tools over stdio`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = config.Load(cfgFile)
		// stdout is reserved for command output and the MCP transport
		logger = logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $REGTRACKER_CONFIG)")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func buildApp(ctx context.Context) (*app.Application, error) {
	return app.New(ctx, cfg, logger)
}
