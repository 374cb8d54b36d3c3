package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/edwh/otk/internal/core"
	otkmcp "github.com/edwh/otk/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the otk MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the otk MCP server on stdio",
	Long: `Start the otk MCP server on stdio transport.

The server exposes the hierarchy operations as MCP tools that AI assistants
can call: get_task_hierarchy, get_project_hierarchy, move_task, promote_task,
move_tasks, search_tasks, get_metrics, get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Service == nil {
			return fmt.Errorf("hierarchy service not initialized")
		}
		presenter := Presenter
		if presenter == nil {
			presenter = core.NewTreePresenter(currentConfig().Odoo.BaseURL())
		}

		srv := otkmcp.NewServer(Service, presenter, MetricsCalc, AlertEngine, appVersion)

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
