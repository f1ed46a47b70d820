package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled batches and the HTTP API",
	Long: `Run a batch immediately and then on every scheduler interval, while
serving assessments, manual runs and metrics over HTTP.

Endpoints:
  GET  /assessments       recent assessments (days, risk, source, area, limit)
  GET  /assessments/{id}  a single assessment
  POST /runs              trigger a batch
  GET  /runs/last         summary of the last completed batch
  GET  /metrics           Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	application, err := buildApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer application.Close()

	return application.Serve(ctx)
}
