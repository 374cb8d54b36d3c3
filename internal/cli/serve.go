package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/internal/web"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the hierarchy API over HTTP",
	Long: `Start the otk HTTP API used by the drag-and-drop tree view.

Endpoints:
  GET      /api/hierarchy/project/:id   project tree (?depth=&stage=&priority=)
  GET      /api/hierarchy/task/:id      task tree with parent chain
  GET|POST /api/move-task               task_id, new_parent_id ("root" promotes)
  POST     /api/move-tasks              {"task_ids": [...], "new_parent_id": N}
  GET      /api/settings                connection settings, password redacted
  GET      /healthz`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Service == nil {
			return fmt.Errorf("hierarchy service not initialized")
		}
		cfg := currentConfig()
		if ConfigMgr != nil {
			if err := ConfigMgr.ValidateConfig(cfg); err != nil {
				return err
			}
		}

		host, port := cfg.Server.Host, cfg.Server.Port
		if cmd.Flags().Changed("host") {
			host = serveHost
		}
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		logger := Logger
		if logger == nil {
			logger = log.New(os.Stderr)
		}
		if logger.GetLevel() > log.InfoLevel {
			logger.SetLevel(log.InfoLevel)
		}

		presenter := Presenter
		if presenter == nil {
			presenter = core.NewTreePresenter(cfg.Odoo.BaseURL())
		}

		gin.SetMode(ginMode(debugFlag))
		srv := web.NewServer(Service, presenter, cfg, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return srv.Run(ctx, net.JoinHostPort(host, strconv.Itoa(port)))
	},
}

// ginMode keeps gin's route dump and warnings off stdout unless --debug is set.
func ginMode(debug bool) string {
	if debug {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default: server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: server.port)")
	rootCmd.AddCommand(serveCmd)
}
