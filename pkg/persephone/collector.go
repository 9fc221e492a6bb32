package persephone

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/tartarus-sandbox/persephone/pkg/domain"
)

// weekStep is the range-query resolution: one sample per ISO week.
const weekStep = 7 * 24 * time.Hour

// MetricsCollector fetches weekly observations from a metrics backend.
type MetricsCollector interface {
	// QueryRange evaluates query once per week in [from, to].
	QueryRange(ctx context.Context, query string, from, to domain.Week) ([]Observation, error)
}

// PrometheusCollector implements MetricsCollector for Prometheus
type PrometheusCollector struct {
	api v1.API
}

// NewPrometheusCollector creates a new collector using the given address
func NewPrometheusCollector(address string) (*PrometheusCollector, error) {
	client, err := api.NewClient(api.Config{
		Address: address,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return &PrometheusCollector{
		api: v1.NewAPI(client),
	}, nil
}

// QueryRange samples query at the Monday of every week in [from, to]. When the
// query returns several streams their values are summed per week.
func (c *PrometheusCollector) QueryRange(ctx context.Context, query string, from, to domain.Week) ([]Observation, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s is after %s", from, to)
	}
	r := v1.Range{
		Start: monday(from),
		End:   monday(to),
		Step:  weekStep,
	}

	result, _, err := c.api.QueryRange(ctx, query, r)
	if err != nil {
		return nil, fmt.Errorf("prometheus query failed: %w", err)
	}

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result format: %T", result)
	}

	totals := make(map[domain.Week]float64)
	for _, stream := range matrix {
		for _, pair := range stream.Values {
			v := float64(pair.Value)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			totals[domain.WeekOf(pair.Timestamp.Time().UTC())] += v
		}
	}

	records := make([]Observation, 0, len(totals))
	for w, v := range totals {
		records = append(records, Observation{Week: w, Value: v})
	}
	series, err := SeriesFromObservations(records)
	if err != nil {
		return nil, err
	}
	return series.Observations(), nil
}
