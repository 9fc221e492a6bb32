package persephone

import (
	"context"
	"fmt"
	"time"

	"github.com/tartarus-sandbox/persephone/pkg/domain"
	"github.com/tartarus-sandbox/persephone/pkg/hermes"
	"golang.org/x/time/rate"
)

// Ingestor periodically pulls recent weeks from a collector into a store.
type Ingestor struct {
	collector  MetricsCollector
	store      HistoryStore
	series     string
	query      string
	interval   time.Duration
	lookback   int
	chunkWeeks int
	limiter    *rate.Limiter
	logger     hermes.Logger
	metrics    hermes.Metrics
	now        func() time.Time
}

// IngestorConfig holds configuration for the Ingestor
type IngestorConfig struct {
	Collector MetricsCollector
	Store     HistoryStore
	Series    string        // name the observations are stored under
	Query     string        // Prometheus query string
	Interval  time.Duration // time between pulls
	Lookback  int           // weeks re-read on every pull

	// Backfill splits a range into chunks of ChunkWeeks and issues at most
	// BackfillRate queries per second.
	ChunkWeeks   int
	BackfillRate float64

	Logger  hermes.Logger
	Metrics hermes.Metrics
	Now     func() time.Time
}

// NewIngestor creates a new Ingestor
func NewIngestor(config IngestorConfig) (*Ingestor, error) {
	if config.Collector == nil {
		return nil, fmt.Errorf("collector is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := ValidateSeriesName(config.Series); err != nil {
		return nil, err
	}
	if config.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Lookback <= 0 {
		config.Lookback = 2
	}
	if config.ChunkWeeks <= 0 {
		config.ChunkWeeks = 52
	}
	if config.BackfillRate <= 0 {
		config.BackfillRate = 2
	}
	if config.Logger == nil {
		config.Logger = hermes.NewNoopLogger()
	}
	if config.Metrics == nil {
		config.Metrics = hermes.NewNoopMetrics()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Ingestor{
		collector:  config.Collector,
		store:      config.Store,
		series:     config.Series,
		query:      config.Query,
		interval:   config.Interval,
		lookback:   config.Lookback,
		chunkWeeks: config.ChunkWeeks,
		limiter:    rate.NewLimiter(rate.Limit(config.BackfillRate), 1),
		logger:     config.Logger,
		metrics:    config.Metrics,
		now:        config.Now,
	}, nil
}

// Start runs the ingestion loop until ctx is cancelled.
func (i *Ingestor) Start(ctx context.Context) error {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	i.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			i.tick(ctx)
		}
	}
}

func (i *Ingestor) tick(ctx context.Context) {
	n, err := i.ingest(ctx)
	if err != nil {
		i.metrics.IncCounter("persephone_ingest_errors_total", 1, hermes.Label{Key: "series", Value: i.series})
		i.logger.Error(ctx, "Ingestion failed", map[string]any{
			"series": i.series,
			"error":  err.Error(),
		})
		return
	}
	i.metrics.IncCounter("persephone_ingested_weeks_total", float64(n), hermes.Label{Key: "series", Value: i.series})
	i.logger.Info(ctx, "Ingested weeks", map[string]any{
		"series": i.series,
		"weeks":  n,
	})
}

// ingest re-reads the last lookback weeks, current week included.
func (i *Ingestor) ingest(ctx context.Context) (int, error) {
	to := domain.WeekOf(i.now().UTC())
	from := to.Add(1 - i.lookback)
	return i.pull(ctx, from, to)
}

func (i *Ingestor) pull(ctx context.Context, from, to domain.Week) (int, error) {
	records, err := i.collector.QueryRange(ctx, i.query, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to collect metrics: %w", err)
	}

	if len(records) == 0 {
		return 0, nil
	}

	if err := i.store.Save(ctx, i.series, records); err != nil {
		return 0, fmt.Errorf("failed to save metrics: %w", err)
	}
	return len(records), nil
}

// Backfill loads [from, to] in chunks, waiting on the rate limiter before
// each query. It returns the number of weeks stored.
func (i *Ingestor) Backfill(ctx context.Context, from, to domain.Week) (int, error) {
	if to.Before(from) {
		return 0, fmt.Errorf("invalid backfill range: %s is after %s", from, to)
	}

	total := 0
	for start := from; !start.After(to); start = start.Add(i.chunkWeeks) {
		end := start.Add(i.chunkWeeks - 1)
		if end.After(to) {
			end = to
		}
		if err := i.limiter.Wait(ctx); err != nil {
			return total, err
		}

		n, err := i.pull(ctx, start, end)
		if err != nil {
			return total, fmt.Errorf("backfill %s..%s: %w", start, end, err)
		}
		total += n
		i.logger.Info(ctx, "Backfilled chunk", map[string]any{
			"series": i.series,
			"from":   start.String(),
			"to":     end.String(),
			"weeks":  n,
		})
	}
	i.metrics.IncCounter("persephone_ingested_weeks_total", float64(total), hermes.Label{Key: "series", Value: i.series})
	return total, nil
}
