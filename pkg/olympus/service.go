package olympus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tartarus-sandbox/persephone/pkg/domain"
	"github.com/tartarus-sandbox/persephone/pkg/erebus"
	"github.com/tartarus-sandbox/persephone/pkg/hermes"
	"github.com/tartarus-sandbox/persephone/pkg/persephone"
	"github.com/tartarus-sandbox/persephone/pkg/persephone/evaluator"
)

var (
	// ErrNoSeries is returned when a request neither names a stored series
	// nor carries inline data.
	ErrNoSeries = errors.New("request carries no series")

	// ErrAmbiguousSeries is returned when a request names a stored series
	// and also carries inline data.
	ErrAmbiguousSeries = errors.New("request names a stored series and carries data")
)

// Metric names recorded by the service.
const (
	MetricBacktests        = "persephone_backtests_total"
	MetricBacktestDuration = "persephone_backtest_duration_seconds"
	MetricBacktestMAPE     = "persephone_backtest_mape"
)

// unknownBackend labels rejected requests so client input never becomes a
// metric label.
const unknownBackend = "unknown"

// Service is Olympus: the front door that resolves series, runs backtests,
// applies the acceptance gate and archives reports.
type Service struct {
	History     persephone.HistoryStore
	Reports     erebus.Store
	Gate        *evaluator.Gate
	Parallelism int
	Metrics     hermes.Metrics
	Logger      hermes.Logger
	Now         func() time.Time
}

// SeriesRef points at the data a backtest runs on: either a stored series,
// optionally narrowed to [From, To], or inline observations. Label names
// inline data in reports.
type SeriesRef struct {
	Name  string                   `json:"name,omitempty"`
	Label string                   `json:"label,omitempty"`
	From  domain.Week              `json:"from,omitempty"`
	To    domain.Week              `json:"to,omitempty"`
	Data  []persephone.Observation `json:"data,omitempty"`
}

func (r SeriesRef) label() string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Label != "":
		return r.Label
	default:
		return "inline"
	}
}

type BacktestRequest struct {
	Series  SeriesRef         `json:"series"`
	Cutoff  domain.Week       `json:"cutoff"`
	Backend string            `json:"backend"`
	Params  persephone.Params `json:"params,omitempty"`
	// Gate overrides the service gate for this request.
	Gate string `json:"gate,omitempty"`
}

// SweepRequest runs explicit Trials, or, when Trials is empty, walk-forward
// folds laid out by MinTrain, Horizon and Step for Backend and every entry of
// Backends. Params go to every backend of the walk-forward layout.
type SweepRequest struct {
	Series   SeriesRef         `json:"series"`
	Trials   []evaluator.Trial `json:"trials,omitempty"`
	Backend  string            `json:"backend,omitempty"`
	Backends []string          `json:"backends,omitempty"`
	Params   persephone.Params `json:"params,omitempty"`
	MinTrain int               `json:"min_train,omitempty"`
	Horizon  int               `json:"horizon,omitempty"`
	Step     int               `json:"step,omitempty"`
	Gate     string            `json:"gate,omitempty"`
}

// Backtest runs one backtest and archives its report. When the gate rejects
// the result, the report is still saved and returned together with an error
// wrapping evaluator.ErrGateFailed.
func (s *Service) Backtest(ctx context.Context, req BacktestRequest) (*Report, error) {
	gate, err := s.gate(req.Gate)
	if err != nil {
		return nil, err
	}
	series, err := s.resolve(ctx, req.Series)
	if err != nil {
		return nil, err
	}

	backend, err := persephone.NewBackend(req.Backend)
	if err != nil {
		s.record(ctx, unknownBackend, "error", err)
		return nil, err
	}

	started := time.Now()
	result, err := evaluator.Run(ctx, series, req.Cutoff, backend, req.Params)
	s.Metrics.ObserveHistogram(MetricBacktestDuration, time.Since(started).Seconds(),
		hermes.Label{Key: "backend", Value: backend.Name()})
	if err != nil {
		s.Logger.Error(ctx, "Backtest failed", map[string]any{
			"series":  req.Series.label(),
			"backend": req.Backend,
			"cutoff":  req.Cutoff.String(),
			"error":   err,
		})
		s.record(ctx, backend.Name(), "error", nil)
		return nil, err
	}

	report := s.newReport(KindBacktest, req.Series.label(), gate, []*evaluator.Result{result})
	gateErr := s.check(ctx, report, gate)
	if err := s.SaveReport(ctx, report); err != nil {
		return nil, err
	}
	return report, gateErr
}

// Sweep runs every trial of req concurrently and archives a single report.
// The gate applies to every result.
func (s *Service) Sweep(ctx context.Context, req SweepRequest) (*Report, error) {
	gate, err := s.gate(req.Gate)
	if err != nil {
		return nil, err
	}
	series, err := s.resolve(ctx, req.Series)
	if err != nil {
		return nil, err
	}

	trials := req.Trials
	if len(trials) == 0 {
		trials, err = walkForward(series, req)
		if err != nil {
			return nil, err
		}
	}

	started := time.Now()
	results, err := evaluator.Sweep(ctx, series, trials, s.Parallelism)
	if err != nil {
		s.Logger.Error(ctx, "Sweep failed", map[string]any{
			"series": req.Series.label(),
			"trials": len(trials),
			"error":  err,
		})
		s.record(ctx, "sweep", "error", nil)
		return nil, err
	}
	s.Metrics.ObserveHistogram(MetricBacktestDuration, time.Since(started).Seconds(),
		hermes.Label{Key: "backend", Value: "sweep"})

	report := s.newReport(KindSweep, req.Series.label(), gate, results)
	gateErr := s.check(ctx, report, gate)
	if err := s.SaveReport(ctx, report); err != nil {
		return nil, err
	}
	return report, gateErr
}

// SaveReport archives report at erebus.ReportKey(report.ID). Without a
// report store it does nothing.
func (s *Service) SaveReport(ctx context.Context, report *Report) error {
	if s.Reports == nil {
		return nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report %s: %w", report.ID, err)
	}
	if err := s.Reports.Put(ctx, erebus.ReportKey(report.ID), bytes.NewReader(data)); err != nil {
		s.Logger.Error(ctx, "Failed to save report", map[string]any{
			"report_id": report.ID,
			"error":     err,
		})
		return fmt.Errorf("failed to save report %s: %w", report.ID, err)
	}
	return nil
}

// LoadReport fetches an archived report. Missing reports return an error
// wrapping erebus.ErrNotFound.
func (s *Service) LoadReport(ctx context.Context, id string) (*Report, error) {
	if s.Reports == nil {
		return nil, fmt.Errorf("report %s: %w", id, erebus.ErrNotFound)
	}
	rc, err := s.Reports.Get(ctx, erebus.ReportKey(id))
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", id, err)
	}
	defer rc.Close()

	var report Report
	if err := json.NewDecoder(rc).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", id, err)
	}
	return &report, nil
}

func (s *Service) resolve(ctx context.Context, ref SeriesRef) (*persephone.Series, error) {
	switch {
	case ref.Name != "" && len(ref.Data) > 0:
		return nil, ErrAmbiguousSeries
	case ref.Name != "":
		if s.History == nil {
			return nil, fmt.Errorf("series %s: no history store configured", ref.Name)
		}
		series, err := s.History.Load(ctx, ref.Name, ref.From, ref.To)
		if err != nil {
			return nil, fmt.Errorf("failed to load series %s: %w", ref.Name, err)
		}
		return series, nil
	case len(ref.Data) > 0:
		series, err := persephone.SeriesFromObservations(ref.Data)
		if err != nil {
			return nil, err
		}
		return series.Range(ref.From, ref.To), nil
	default:
		return nil, ErrNoSeries
	}
}

func walkForward(series *persephone.Series, req SweepRequest) ([]evaluator.Trial, error) {
	backends := req.Backends
	if req.Backend != "" {
		backends = append([]string{req.Backend}, backends...)
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: sweep names no backend", persephone.ErrUnknownBackend)
	}
	for _, name := range backends {
		if _, err := persephone.NewBackend(name); err != nil {
			return nil, err
		}
	}

	step := req.Step
	if step == 0 {
		step = 1
	}
	folds, err := evaluator.WalkForward(series, req.MinTrain, req.Horizon, step)
	if err != nil {
		return nil, err
	}

	var trials []evaluator.Trial
	for _, name := range backends {
		trials = append(trials, evaluator.Trials(folds, name, req.Params)...)
	}
	return trials, nil
}

func (s *Service) gate(expr string) (*evaluator.Gate, error) {
	if expr == "" {
		return s.Gate, nil
	}
	return evaluator.NewGate(expr)
}

// check applies the report's gate to every result, records the outcome and
// returns the joined gate failures.
func (s *Service) check(ctx context.Context, report *Report, gate *evaluator.Gate) error {
	var failures []error
	for _, r := range report.Results {
		outcome := "ok"
		if gate != nil {
			if err := gate.Check(r); err != nil {
				if !errors.Is(err, evaluator.ErrGateFailed) {
					return err
				}
				failures = append(failures, fmt.Errorf("%s at %s: %w", r.Backend, r.Cutoff, err))
				outcome = "failed"
			} else {
				outcome = "passed"
			}
		}
		s.Metrics.SetGauge(MetricBacktestMAPE, r.MAPE,
			hermes.Label{Key: "backend", Value: r.Backend},
			hermes.Label{Key: "series", Value: report.Series})
		s.record(ctx, r.Backend, outcome, nil)
	}

	if gate != nil {
		passed := len(failures) == 0
		report.Passed = &passed
	}

	fields := map[string]any{
		"report_id": report.ID,
		"kind":      report.Kind,
		"series":    report.Series,
		"results":   len(report.Results),
	}
	if len(report.Results) == 1 {
		r := report.Results[0]
		fields["backend"] = r.Backend
		fields["cutoff"] = r.Cutoff.String()
		fields["mape"] = r.MAPE
		fields["mse"] = r.MSE
	}
	if len(failures) > 0 {
		fields["gate"] = report.Gate
		fields["failures"] = len(failures)
		s.Logger.Warn(ctx, "Backtest rejected by gate", fields)
		return errors.Join(failures...)
	}
	s.Logger.Info(ctx, "Backtest completed", fields)
	return nil
}

func (s *Service) record(ctx context.Context, backend, outcome string, err error) {
	s.Metrics.IncCounter(MetricBacktests, 1,
		hermes.Label{Key: "backend", Value: backend},
		hermes.Label{Key: "outcome", Value: outcome})
	if err != nil {
		s.Logger.Error(ctx, "Backtest rejected", map[string]any{
			"backend": backend,
			"error":   err,
		})
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
