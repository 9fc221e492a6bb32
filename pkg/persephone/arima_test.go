package persephone

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartarus-sandbox/persephone/pkg/domain"
)

func ar1Series(t *testing.T, n int, c, phi float64, seed int64) *Series {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	prev := c / (1 - phi)
	for i := range values {
		prev = c + phi*prev + rng.NormFloat64()
		values[i] = prev
	}
	return mustSeries(t, domain.MustWeek(2010, 1), values...)
}

func TestARIMA_RecoversAR1(t *testing.T) {
	s := ar1Series(t, 500, 2, 0.6, 42)

	model, err := NewARIMABackend().Fit(context.Background(), s, Params{"order": []int{1, 0, 0}})
	require.NoError(t, err)

	m := model.(*ARIMAModel)
	require.Len(t, m.AR, 1)
	assert.InDelta(t, 0.6, m.AR[0], 0.1)
	assert.InDelta(t, 5.0, m.Constant/(1-m.AR[0]), 0.5)
	assert.InDelta(t, 1.0, m.Sigma2, 0.25)

	// Long-range forecasts converge to the process mean.
	out, err := NewARIMABackend().Predict(context.Background(), model, Horizon{
		Offset: s.Len(),
		Weeks:  weeksFrom(domain.MustWeek(2020, 1), 60),
	})
	require.NoError(t, err)
	assert.InDelta(t, m.Constant/(1-m.AR[0]), out[59], 1e-6)
}

func TestARIMA_RandomWalkForecastsLastValue(t *testing.T) {
	s := mustSeries(t, domain.MustWeek(2024, 1), 5, 7, 6, 9, 8)
	out := fitPredict(t, NewARIMABackend(), s, Params{"order": "0,1,0"}, 0, 8)

	assert.True(t, math.IsNaN(out[0]))
	assert.Equal(t, []float64{5, 7, 6, 9}, out[1:5])
	assert.Equal(t, []float64{8, 8, 8}, out[5:])
}

func TestARIMA_InSampleAndForecastAgree(t *testing.T) {
	s := ar1Series(t, 120, 1, 0.5, 7)
	b := NewARIMABackend()
	ctx := context.Background()
	model, err := b.Fit(ctx, s, Params{"p": 2, "d": 0, "q": 1})
	require.NoError(t, err)

	first, _ := s.First()
	all, err := b.Predict(ctx, model, Horizon{Offset: 0, Weeks: weeksFrom(first, s.Len()+4)})
	require.NoError(t, err)
	tail, err := b.Predict(ctx, model, Horizon{Offset: s.Len(), Weeks: weeksFrom(first.Add(s.Len()), 4)})
	require.NoError(t, err)

	assert.Equal(t, all[s.Len():], tail)
	for _, v := range all {
		assert.False(t, math.IsNaN(v))
	}
}

func TestARIMA_DifferencedWithMA(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	values := make([]float64, 200)
	level := 100.0
	for i := range values {
		level += 0.5 + rng.NormFloat64()
		values[i] = level
	}
	s := mustSeries(t, domain.MustWeek(2015, 1), values...)

	out := fitPredict(t, NewARIMABackend(), s, Params{"order": []any{1, 1, 1}, "trend": "n"}, 0, 210)
	assert.True(t, math.IsNaN(out[0]))
	for _, v := range out[1:] {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestARIMA_ConstantOnlyIsMean(t *testing.T) {
	s := mustSeries(t, domain.MustWeek(2024, 1), 10, 12, 11, 13)
	out := fitPredict(t, NewARIMABackend(), s, Params{"order": []int{0, 0, 0}}, 0, 6)
	for _, v := range out {
		assert.InDelta(t, 11.5, v, 1e-9)
	}
}

func TestARIMA_InvalidParams(t *testing.T) {
	s := mustSeries(t, domain.MustWeek(2024, 1), 1, 2, 3, 4, 5, 6, 7, 8)
	cases := []Params{
		{"order": []int{1, 0}},
		{"order": []int{-1, 0, 0}},
		{"order": []int{1, 0, 0}, "p": 2},
		{"trend": "t"},
		{"seasonal_order": []int{1, 0, 0, 52}},
	}
	for _, params := range cases {
		_, err := NewARIMABackend().Fit(context.Background(), s, params)
		assert.ErrorIs(t, err, ErrInvalidParams, "%v", params)
	}

	_, err := NewARIMABackend().Fit(context.Background(), mustSeries(t, domain.MustWeek(2024, 1), 1, 2), Params{"order": []int{3, 0, 0}})
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestDifferenceIntegrate(t *testing.T) {
	y := []float64{1, 4, 9, 16, 25}
	d2 := difference(y, 2)
	assert.Equal(t, []float64{2, 2, 2}, d2)
	for i := 2; i < len(y); i++ {
		assert.Equal(t, y[i], integrate(d2[i-2], y, i, 2))
	}
}
