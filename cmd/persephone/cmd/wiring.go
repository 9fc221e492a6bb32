package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/tartarus-sandbox/persephone/pkg/config"
	"github.com/tartarus-sandbox/persephone/pkg/erebus"
	"github.com/tartarus-sandbox/persephone/pkg/hermes"
	"github.com/tartarus-sandbox/persephone/pkg/olympus"
	"github.com/tartarus-sandbox/persephone/pkg/persephone"
	"github.com/tartarus-sandbox/persephone/pkg/persephone/evaluator"
)

func newLogger(cfg *config.Config, w io.Writer) (hermes.Logger, error) {
	return hermes.NewSlogAdapterFor(w, cfg.Log.Format, cfg.Log.Level)
}

func openHistory(ctx context.Context, cfg config.StoreConfig) (persephone.HistoryStore, error) {
	switch cfg.Kind {
	case config.StoreRedis:
		return persephone.NewRedisHistoryStore(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Password)
	case config.StorePostgres:
		return persephone.NewPostgresHistoryStore(ctx, cfg.Postgres.DSN)
	case config.StoreLocal:
		return persephone.NewLocalHistoryStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}

func openReports(ctx context.Context, cfg config.ReportsConfig) (erebus.Store, error) {
	switch cfg.Kind {
	case config.ReportsS3:
		return erebus.NewS3Store(ctx, erebus.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
	case config.ReportsLocal:
		return erebus.NewLocalStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown reports kind %q", cfg.Kind)
	}
}

// newService wires the configured stores into an olympus.Service. The
// history store is opened only when withHistory is set; cleanup releases it.
func newService(ctx context.Context, cfg *config.Config, logger hermes.Logger, metrics hermes.Metrics, withHistory bool) (svc *olympus.Service, cleanup func(), err error) {
	svc = &olympus.Service{
		Parallelism: cfg.Backtest.Parallelism,
		Metrics:     metrics,
		Logger:      logger,
	}
	cleanup = func() {}

	if cfg.Backtest.Gate != "" {
		if svc.Gate, err = evaluator.NewGate(cfg.Backtest.Gate); err != nil {
			return nil, nil, err
		}
	}
	if svc.Reports, err = openReports(ctx, cfg.Reports); err != nil {
		return nil, nil, fmt.Errorf("failed to open report store: %w", err)
	}
	if withHistory {
		history, err := openHistory(ctx, cfg.Store)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open history store: %w", err)
		}
		svc.History = history
		cleanup = func() { history.Close() }
	}
	return svc, cleanup, nil
}
