package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"sharetok/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the lookup API and the cached assets over HTTP",
	Long: `Serve the lookup API:

  GET /by_url/<url>        item for a share or canonical URL
  GET /by_id/<id>          item by its numeric ID
  GET /get_related/<url>   an unwatched item related to <url>
  GET /latest              the most recently stored item
  GET /metrics             Prometheus metrics

Downloaded assets are served from the storage root under /videos, /thumbnails,
/images, /audio, /authors and /hls.`,
	Example: `  sharetok serve --addr :2000
  SHARETOK_DATABASE_DSN=postgres://user:pass@db/sharetok sharetok serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bring storage back within budget before taking traffic
	if report, err := a.service.Sweep(ctx); err != nil {
		a.logger.WithError(err).Warn("Startup sweep failed")
	} else if len(report.Evicted) > 0 {
		a.logger.InfoWithFields("Startup sweep evicted items", map[string]interface{}{
			"evicted":     len(report.Evicted),
			"freed_bytes": report.FreedBytes,
		})
	}

	srv := server.New(a.cfg.Server, a.service, a.storage.Root(), a.registry, a.logger.WithField("component", "server"))
	return srv.Run(ctx)
}
