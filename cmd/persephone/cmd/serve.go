package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tartarus-sandbox/persephone/pkg/hermes"
	"github.com/tartarus-sandbox/persephone/pkg/olympus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the backtest API over HTTP",
	Long: `Serve POST /backtests, POST /sweeps, GET /reports/{id} and GET /backends,
plus /metrics. Every request, /metrics included, must carry
"Authorization: Bearer <server.api_key>" when an API key is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		metrics := hermes.NewPrometheusMetrics(prometheus.DefaultRegisterer)
		svc, cleanup, err := newService(ctx, cfg, logger, metrics, true)
		if err != nil {
			return err
		}
		defer cleanup()

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           newRouter(logger, cfg.Server.APIKey, svc, prometheus.DefaultGatherer),
			ReadHeaderTimeout: 5 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info(ctx, "Serving backtest API", map[string]any{"addr": cfg.Server.Addr})
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	},
}

// newRouter mounts the API and /metrics behind the API key check.
func newRouter(logger hermes.Logger, apiKey string, svc *olympus.Service, g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", olympus.NewHandlers(svc).Routes())
	mux.Handle("/metrics", hermes.Handler(g))
	return olympus.AuthMiddleware(logger, apiKey, mux)
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default server.addr)")
	rootCmd.AddCommand(serveCmd)
}
