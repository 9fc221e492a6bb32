package persephone

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tartarus-sandbox/persephone/pkg/domain"
)

// ProphetName is the registry name of the additive-seasonal backend.
const ProphetName = "prophet"

const (
	defaultChangepoints          = 25
	defaultChangepointRange      = 0.8
	defaultChangepointPriorScale = 0.05
	defaultSeasonalityPriorScale = 10.0
	defaultYearlyOrder           = 10

	yearDays = 365.25

	// noiseScale is the assumed observation noise on the scaled target; ridge
	// weights are noiseScale^2 / priorScale^2.
	noiseScale = 0.1
)

// Seasonality modes.
const (
	Additive       = "additive"
	Multiplicative = "multiplicative"
)

// ProphetBackend fits a decomposable trend-plus-seasonality model on calendar
// dates: a piecewise-linear trend with automatic changepoints and a yearly
// Fourier seasonality, estimated as penalised least squares.
//
// Params:
//
//	growth                  "linear" | "flat"              (linear)
//	seasonality_mode        "additive" | "multiplicative"  (additive)
//	yearly_seasonality      "auto" | true | false | order  (auto)
//	n_changepoints          int                            (25)
//	changepoint_range       (0, 1]                         (0.8)
//	changepoint_prior_scale > 0                            (0.05)
//	seasonality_prior_scale > 0                            (10)
//
// Weeks are placed at their Monday. Predict uses Horizon.Weeks and ignores
// the offset, so it can restate the training window and forecast any date.
type ProphetBackend struct{}

// NewProphetBackend creates the additive-seasonal backend.
func NewProphetBackend() *ProphetBackend {
	return &ProphetBackend{}
}

// ProphetModel is a fitted trend and seasonality decomposition.
type ProphetModel struct {
	Growth      string
	Mode        string
	YearlyOrder int

	Start time.Time // date mapped to t = 0
	Span  float64   // days mapped to t = 1
	Scale float64   // target divisor

	Changepoints []float64 // changepoint locations in t
	K, M         float64   // base slope and offset
	Delta        []float64 // slope changes at each changepoint
	Beta         []float64 // Fourier coefficients, sin/cos interleaved
}

type prophetConfig struct {
	growth           string
	mode             string
	yearly           string
	changepoints     int
	changepointRange float64
	changepointPrior float64
	seasonalityPrior float64
}

func (b *ProphetBackend) Name() string { return ProphetName }

func (b *ProphetBackend) Fit(ctx context.Context, train *Series, params Params) (Model, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	cfg, err := prophetParams(params)
	if err != nil {
		return nil, err
	}
	n := train.Len()
	if n < 2 {
		return nil, fmt.Errorf("%w: prophet needs at least 2 observations, got %d", ErrInsufficientHistory, n)
	}

	weeks := train.Weeks()
	values := train.Values()

	m := &ProphetModel{
		Growth: cfg.growth,
		Mode:   cfg.mode,
		Start:  monday(weeks[0]),
	}
	m.Span = monday(weeks[n-1]).Sub(m.Start).Hours() / 24

	m.YearlyOrder, err = yearlyOrder(cfg.yearly, m.Span)
	if err != nil {
		return nil, err
	}

	for _, v := range values {
		m.Scale = math.Max(m.Scale, math.Abs(v))
	}
	if m.Scale == 0 {
		m.Scale = 1
	}

	ts := make([]float64, n)
	dates := make([]time.Time, n)
	y := make([]float64, n)
	for i, w := range weeks {
		dates[i] = monday(w)
		ts[i] = m.t(dates[i])
		y[i] = values[i] / m.Scale
	}

	if m.Growth == "linear" {
		m.Changepoints = changepoints(ts, cfg.changepoints, cfg.changepointRange)
	}

	switch m.Mode {
	case Additive:
		err = m.fitAdditive(ts, dates, y, cfg)
	case Multiplicative:
		err = m.fitMultiplicative(ts, dates, y, cfg)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (b *ProphetBackend) Predict(ctx context.Context, model Model, h Horizon) ([]float64, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	m, ok := model.(*ProphetModel)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrInvalidModel, model)
	}

	out := make([]float64, h.Len())
	for i, w := range h.Weeks {
		date := monday(w)
		trend := m.trend(m.t(date))
		seasonal := dot(m.Beta, fourier(date, m.YearlyOrder))
		if m.Mode == Multiplicative {
			out[i] = trend * (1 + seasonal) * m.Scale
		} else {
			out[i] = (trend + seasonal) * m.Scale
		}
	}
	return out, nil
}

func prophetParams(params Params) (prophetConfig, error) {
	cfg := prophetConfig{}
	err := params.CheckKeys("growth", "seasonality_mode", "yearly_seasonality",
		"n_changepoints", "changepoint_range", "changepoint_prior_scale", "seasonality_prior_scale")
	if err != nil {
		return cfg, err
	}

	if cfg.growth, err = params.String("growth", "linear"); err != nil {
		return cfg, err
	}
	if cfg.growth != "linear" && cfg.growth != "flat" {
		return cfg, fmt.Errorf("%w: growth must be linear or flat, got %q", ErrInvalidParams, cfg.growth)
	}

	if cfg.mode, err = params.String("seasonality_mode", Additive); err != nil {
		return cfg, err
	}
	if cfg.mode != Additive && cfg.mode != Multiplicative {
		return cfg, fmt.Errorf("%w: seasonality_mode must be %s or %s, got %q", ErrInvalidParams, Additive, Multiplicative, cfg.mode)
	}

	switch v := params["yearly_seasonality"].(type) {
	case nil:
		cfg.yearly = "auto"
	case bool:
		cfg.yearly = strconv.FormatBool(v)
	case string:
		cfg.yearly = strings.ToLower(strings.TrimSpace(v))
	default:
		order, err := params.Int("yearly_seasonality", 0)
		if err != nil {
			return cfg, err
		}
		cfg.yearly = strconv.Itoa(order)
	}

	if cfg.changepoints, err = params.Int("n_changepoints", defaultChangepoints); err != nil {
		return cfg, err
	}
	if cfg.changepoints < 0 {
		return cfg, fmt.Errorf("%w: n_changepoints must be >= 0, got %d", ErrInvalidParams, cfg.changepoints)
	}
	if cfg.changepointRange, err = params.Float("changepoint_range", defaultChangepointRange); err != nil {
		return cfg, err
	}
	if cfg.changepointRange <= 0 || cfg.changepointRange > 1 {
		return cfg, fmt.Errorf("%w: changepoint_range must be in (0, 1], got %v", ErrInvalidParams, cfg.changepointRange)
	}
	if cfg.changepointPrior, err = params.Float("changepoint_prior_scale", defaultChangepointPriorScale); err != nil {
		return cfg, err
	}
	if cfg.seasonalityPrior, err = params.Float("seasonality_prior_scale", defaultSeasonalityPriorScale); err != nil {
		return cfg, err
	}
	if cfg.changepointPrior <= 0 || cfg.seasonalityPrior <= 0 {
		return cfg, fmt.Errorf("%w: prior scales must be positive", ErrInvalidParams)
	}
	return cfg, nil
}

// yearlyOrder resolves the yearly_seasonality setting against the history
// length in days.
func yearlyOrder(setting string, spanDays float64) (int, error) {
	switch setting {
	case "auto":
		if spanDays >= 2*yearDays {
			return defaultYearlyOrder, nil
		}
		return 0, nil
	case "true":
		return defaultYearlyOrder, nil
	case "false":
		return 0, nil
	}
	order, err := strconv.Atoi(setting)
	if err != nil || order < 0 {
		return 0, fmt.Errorf("%w: yearly_seasonality must be auto, true, false or a non-negative order, got %q", ErrInvalidParams, setting)
	}
	return order, nil
}

// changepoints spreads up to count changepoints uniformly over the first
// fraction of the training timestamps, excluding the first point.
func changepoints(ts []float64, count int, fraction float64) []float64 {
	history := int(math.Floor(float64(len(ts)) * fraction))
	if count > history-1 {
		count = history - 1
	}
	if count <= 0 {
		return nil
	}
	out := make([]float64, 0, count)
	step := float64(history-1) / float64(count)
	for i := 1; i <= count; i++ {
		idx := int(math.Round(float64(i) * step))
		out = append(out, ts[idx])
	}
	return out
}

func (m *ProphetModel) t(date time.Time) float64 {
	if m.Span == 0 {
		return 0
	}
	return date.Sub(m.Start).Hours() / 24 / m.Span
}

func (m *ProphetModel) trend(t float64) float64 {
	v := m.K*t + m.M
	for j, s := range m.Changepoints {
		if t > s {
			v += m.Delta[j] * (t - s)
		}
	}
	return v
}

// trendColumns is the number of trend regressors: offset, slope and one per
// changepoint.
func (m *ProphetModel) trendColumns() int {
	if m.Growth == "flat" {
		return 1
	}
	return 2 + len(m.Changepoints)
}

func (m *ProphetModel) trendRow(t float64) []float64 {
	row := make([]float64, 0, m.trendColumns())
	row = append(row, 1)
	if m.Growth == "flat" {
		return row
	}
	row = append(row, t)
	for _, s := range m.Changepoints {
		row = append(row, math.Max(0, t-s))
	}
	return row
}

func (m *ProphetModel) setTrend(coef []float64) {
	m.M = coef[0]
	if m.Growth == "flat" {
		return
	}
	m.K = coef[1]
	m.Delta = append([]float64(nil), coef[2:]...)
}

func (m *ProphetModel) fitAdditive(ts []float64, dates []time.Time, y []float64, cfg prophetConfig) error {
	tc := m.trendColumns()
	sc := 2 * m.YearlyOrder
	ds := newDesign(tc + sc)
	for j := range m.Changepoints {
		ds.penalty[2+j] = ridge(cfg.changepointPrior)
	}
	for j := 0; j < sc; j++ {
		ds.penalty[tc+j] = ridge(cfg.seasonalityPrior)
	}
	for i := range ts {
		row := append(m.trendRow(ts[i]), fourier(dates[i], m.YearlyOrder)...)
		ds.addRow(y[i], row...)
	}

	coef, err := ds.solve()
	if err != nil {
		return err
	}
	m.setTrend(coef[:tc])
	m.Beta = append([]float64(nil), coef[tc:]...)
	return nil
}

// fitMultiplicative fits the trend first, then the seasonal factor on the
// relative residual y/trend - 1.
func (m *ProphetModel) fitMultiplicative(ts []float64, dates []time.Time, y []float64, cfg prophetConfig) error {
	tc := m.trendColumns()
	trend := newDesign(tc)
	for j := range m.Changepoints {
		trend.penalty[2+j] = ridge(cfg.changepointPrior)
	}
	for i := range ts {
		trend.addRow(y[i], m.trendRow(ts[i])...)
	}
	coef, err := trend.solve()
	if err != nil {
		return err
	}
	m.setTrend(coef)

	sc := 2 * m.YearlyOrder
	if sc == 0 {
		return nil
	}
	seasonal := newDesign(sc)
	for j := 0; j < sc; j++ {
		seasonal.penalty[j] = ridge(cfg.seasonalityPrior)
	}
	for i := range ts {
		level := m.trend(ts[i])
		if math.Abs(level) < 1e-9 {
			return fmt.Errorf("%w: multiplicative seasonality needs a non-zero trend (week at %s)", ErrInvalidParams, dates[i].Format(time.DateOnly))
		}
		seasonal.addRow(y[i]/level-1, fourier(dates[i], m.YearlyOrder)...)
	}
	beta, err := seasonal.solve()
	if err != nil {
		return err
	}
	m.Beta = beta
	return nil
}

func ridge(priorScale float64) float64 {
	return noiseScale * noiseScale / (priorScale * priorScale)
}

// fourier returns sin/cos pairs of the yearly cycle at date, keyed on days
// since the Unix epoch.
func fourier(date time.Time, order int) []float64 {
	if order == 0 {
		return nil
	}
	days := float64(date.Unix()) / 86400
	out := make([]float64, 0, 2*order)
	for k := 1; k <= order; k++ {
		x := 2 * math.Pi * float64(k) * days / yearDays
		out = append(out, math.Sin(x), math.Cos(x))
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func monday(w domain.Week) time.Time {
	return w.Date(time.Monday)
}
