package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/guiyumin/vresolve/internal/core/resolver"
	"github.com/guiyumin/vresolve/internal/server"
	"github.com/spf13/cobra"
)

var (
	servePort      int
	serveOutputDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start an HTTP server that resolves URLs and queues transfers.

Examples:
  vresolve serve              # Start server on port 8080
  vresolve serve -p 9000      # Start server on port 9000
  vresolve serve -o ~/dl      # Use custom output directory

API Endpoints:
  GET    /api/health
  POST   /api/resolve               {"url": "..."}
  GET    /api/sessions/:id/:index   # pick a quality
  GET    /api/sessions/:id/audio    # audio-only stream
  POST   /api/jobs                  {"session_id": 1, "index": 0}
  GET    /api/jobs
  GET    /api/jobs/:id
  DELETE /api/jobs/:id              # cancel or remove
  DELETE /api/jobs                  # clear finished jobs`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if serveOutputDir != "" {
			cfg.OutputDir = serveOutputDir
		}

		svc, err := resolver.New(cfg)
		if err != nil {
			return err
		}
		srv := server.NewServer(cfg, svc)

		serverErr := make(chan error, 1)
		go func() { serverErr <- srv.Start() }()

		select {
		case <-cmd.Context().Done():
			slog.Info("shutting down server", "component", "server")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(ctx)
		case err := <-serverErr:
			return err
		}
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP listen port (default: 8080)")
	serveCmd.Flags().StringVarP(&serveOutputDir, "output", "o", "", "output directory for transfers")
	rootCmd.AddCommand(serveCmd)
}
