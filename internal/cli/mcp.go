package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	molymcp "github.com/valter-silva-au/moly-recorder/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the moly MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the moly MCP server on stdio",
	Long: `Start the moly MCP server on stdio transport.

The server exposes read-only session inspection as MCP tools:
list_sessions, check_recovery, inspect_session, get_metrics, get_alerts.
It never opens a session for writing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if LogsRoot == "" {
			return fmt.Errorf("logs root not initialized")
		}

		srv := molymcp.NewServer(LogsRoot, Scanner, Reconstructor, MetricsCalc, AlertEngine, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
