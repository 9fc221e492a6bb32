package persephone

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartarus-sandbox/persephone/pkg/domain"
)

func seriesOf(t *testing.T, start domain.Week, n int, f func(i int, date time.Time) float64) *Series {
	t.Helper()
	weeks := weeksFrom(start, n)
	values := make([]float64, n)
	for i, w := range weeks {
		values[i] = f(i, w.Date(time.Monday))
	}
	s, err := NewSeries(weeks, values)
	require.NoError(t, err)
	return s
}

func yearly(date time.Time) float64 {
	days := float64(date.Unix()) / 86400
	return math.Sin(2 * math.Pi * days / 365.25)
}

func TestProphet_RecoversLinearTrend(t *testing.T) {
	start := domain.MustWeek(2023, 1)
	s := seriesOf(t, start, 30, func(i int, _ time.Time) float64 { return 100 + 2*float64(i) })

	out := fitPredict(t, NewProphetBackend(), s, nil, 0, 40)
	for i, v := range out {
		assert.InDelta(t, 100+2*float64(i), v, 1e-6, "week %d", i)
	}
}

func TestProphet_FlatGrowth(t *testing.T) {
	s := mustSeries(t, domain.MustWeek(2024, 1), 3, 5, 4, 6)
	out := fitPredict(t, NewProphetBackend(), s, Params{"growth": "flat", "yearly_seasonality": false}, 0, 6)
	for _, v := range out {
		assert.InDelta(t, 4.5, v, 1e-9)
	}
}

func TestProphet_AdditiveYearly(t *testing.T) {
	s := seriesOf(t, domain.MustWeek(2019, 1), 4*52, func(_ int, date time.Time) float64 {
		return 50 + 10*yearly(date)
	})

	ctx := context.Background()
	b := NewProphetBackend()
	model, err := b.Fit(ctx, s, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultYearlyOrder, model.(*ProphetModel).YearlyOrder)

	// Forecast the following year.
	last, _ := s.Last()
	weeks := weeksFrom(last.Add(1), 52)
	out, err := b.Predict(ctx, model, Horizon{Offset: s.Len(), Weeks: weeks})
	require.NoError(t, err)
	for i, w := range weeks {
		assert.InDelta(t, 50+10*yearly(w.Date(time.Monday)), out[i], 0.5, w.String())
	}
}

func TestProphet_Multiplicative(t *testing.T) {
	s := seriesOf(t, domain.MustWeek(2019, 1), 4*52, func(i int, date time.Time) float64 {
		return (50 + 0.5*float64(i)) * (1 + 0.2*yearly(date))
	})

	out := fitPredict(t, NewProphetBackend(), s, Params{"seasonality_mode": Multiplicative}, 0, s.Len())
	var pct float64
	for i, actual := range s.Values() {
		pct += math.Abs(actual-out[i]) / actual
	}
	assert.Less(t, pct/float64(s.Len()), 0.05)
}

func TestProphet_YearlySetting(t *testing.T) {
	short := mustSeries(t, domain.MustWeek(2024, 1), 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	ctx := context.Background()

	cases := map[any]int{"auto": 0, true: defaultYearlyOrder, false: 0, 3: 3, "4": 4}
	for setting, want := range cases {
		model, err := NewProphetBackend().Fit(ctx, short, Params{"yearly_seasonality": setting})
		require.NoError(t, err, "%v", setting)
		assert.Equal(t, want, model.(*ProphetModel).YearlyOrder, "%v", setting)
	}
}

func TestProphet_InvalidParams(t *testing.T) {
	s := mustSeries(t, domain.MustWeek(2024, 1), 1, 2, 3, 4)
	cases := []Params{
		{"growth": "logistic"},
		{"seasonality_mode": "both"},
		{"yearly_seasonality": "maybe"},
		{"n_changepoints": -1},
		{"changepoint_range": 1.5},
		{"changepoint_prior_scale": 0},
		{"weekly_seasonality": true},
	}
	for _, params := range cases {
		_, err := NewProphetBackend().Fit(context.Background(), s, params)
		assert.ErrorIs(t, err, ErrInvalidParams, "%v", params)
	}

	_, err := NewProphetBackend().Fit(context.Background(), mustSeries(t, domain.MustWeek(2024, 1), 1), nil)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestProphet_RejectsForeignModel(t *testing.T) {
	_, err := NewProphetBackend().Predict(context.Background(), "model", Horizon{})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestChangepoints(t *testing.T) {
	ts := make([]float64, 11)
	for i := range ts {
		ts[i] = float64(i) / 10
	}
	// history = 8 points -> at most 7 changepoints strictly after the first.
	cps := changepoints(ts, 25, 0.8)
	require.Len(t, cps, 7)
	assert.InDelta(t, 0.1, cps[0], 1e-12)
	assert.InDelta(t, 0.7, cps[6], 1e-12)

	assert.Len(t, changepoints(ts, 0, 0.8), 0)
	assert.Len(t, changepoints(ts[:1], 25, 0.8), 0)
}
