package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tartarus-sandbox/persephone/pkg/config"
	"github.com/tartarus-sandbox/persephone/pkg/domain"
	"github.com/tartarus-sandbox/persephone/pkg/hermes"
	"github.com/tartarus-sandbox/persephone/pkg/persephone"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Continuously pull weekly values from Prometheus into the history store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyIngestFlags(cmd, cfg)
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		metrics := hermes.NewPrometheusMetrics(prometheus.DefaultRegisterer)
		ingestor, cleanup, err := newIngestor(ctx, cfg, logger, metrics)
		if err != nil {
			return err
		}
		defer cleanup()

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			cfg.MetricsAddr = addr
		}
		if cfg.MetricsAddr != "" {
			srv := &http.Server{
				Addr:              cfg.MetricsAddr,
				Handler:           metricsMux(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error(ctx, "Metrics server failed", map[string]any{"error": err})
				}
			}()
			defer srv.Shutdown(context.Background())
			logger.Info(ctx, "Serving metrics", map[string]any{"addr": cfg.MetricsAddr})
		}

		logger.Info(ctx, "Starting ingestion", map[string]any{
			"series":   cfg.Prometheus.Series,
			"query":    cfg.Prometheus.Query,
			"interval": cfg.Prometheus.Interval.String(),
		})
		return ingestor.Start(ctx)
	},
}

var backfillCmd = &cobra.Command{
	Use:     "backfill",
	Short:   "Load a historical range of weeks from Prometheus into the history store",
	Example: `  persephone backfill --from 2022-W01 --to 2024-W10 --series signups --query 'sum(increase(signups_total[1w]))'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyIngestFlags(cmd, cfg)
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		fromFlag, _ := cmd.Flags().GetString("from")
		toFlag, _ := cmd.Flags().GetString("to")
		from, err := domain.ParseWeek(fromFlag)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to := domain.WeekOf(time.Now().UTC())
		if toFlag != "" {
			if to, err = domain.ParseWeek(toFlag); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ingestor, cleanup, err := newIngestor(ctx, cfg, logger, hermes.NewNoopMetrics())
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := ingestor.Backfill(ctx, from, to)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backfilled %d weeks of %s (%s to %s)\n", n, cfg.Prometheus.Series, from, to)
		return nil
	},
}

func applyIngestFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("series"); v != "" {
		cfg.Prometheus.Series = v
	}
	if v, _ := cmd.Flags().GetString("query"); v != "" {
		cfg.Prometheus.Query = v
	}
	if v, _ := cmd.Flags().GetString("prometheus"); v != "" {
		cfg.Prometheus.Address = v
	}
}

func newIngestor(ctx context.Context, cfg *config.Config, logger hermes.Logger, metrics hermes.Metrics) (*persephone.Ingestor, func(), error) {
	collector, err := persephone.NewPrometheusCollector(cfg.Prometheus.Address)
	if err != nil {
		return nil, nil, err
	}
	store, err := openHistory(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history store: %w", err)
	}

	ingestor, err := persephone.NewIngestor(persephone.IngestorConfig{
		Collector:    collector,
		Store:        store,
		Series:       cfg.Prometheus.Series,
		Query:        cfg.Prometheus.Query,
		Interval:     cfg.Prometheus.Interval,
		Lookback:     cfg.Prometheus.Lookback,
		ChunkWeeks:   cfg.Prometheus.ChunkWeeks,
		BackfillRate: cfg.Prometheus.BackfillRate,
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return ingestor, func() { store.Close() }, nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", hermes.Handler(prometheus.DefaultGatherer))
	return mux
}

func init() {
	for _, c := range []*cobra.Command{ingestCmd, backfillCmd} {
		c.Flags().String("series", "", "Store pulled weeks under this series name (default prometheus.series)")
		c.Flags().String("query", "", "PromQL query evaluated once per week (default prometheus.query)")
		c.Flags().String("prometheus", "", "Prometheus address (default prometheus.address)")
	}
	ingestCmd.Flags().String("metrics-addr", "", "Serve /metrics on this address (default metrics_addr)")
	backfillCmd.Flags().String("from", "", "First week to load")
	backfillCmd.Flags().String("to", "", "Last week to load (default the current week)")
	backfillCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(ingestCmd, backfillCmd)
}
