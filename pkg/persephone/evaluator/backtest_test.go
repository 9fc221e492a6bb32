package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartarus-sandbox/persephone/pkg/domain"
	"github.com/tartarus-sandbox/persephone/pkg/persephone"
)

// stubBackend predicts a constant and records how it was called.
type stubBackend struct {
	value      float64
	fitErr     error
	predictErr error
	short      bool

	fits     int
	params   persephone.Params
	horizons []persephone.Horizon
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Fit(ctx context.Context, train *persephone.Series, params persephone.Params) (persephone.Model, error) {
	b.fits++
	b.params = params
	if b.fitErr != nil {
		return nil, b.fitErr
	}
	return train.Len(), nil
}

func (b *stubBackend) Predict(ctx context.Context, model persephone.Model, h persephone.Horizon) ([]float64, error) {
	b.horizons = append(b.horizons, h)
	if b.predictErr != nil {
		return nil, b.predictErr
	}
	n := h.Len()
	if b.short {
		n--
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = b.value
	}
	return out, nil
}

func exampleSeries(t *testing.T) *persephone.Series {
	t.Helper()
	weeks := make([]domain.Week, 5)
	for i := range weeks {
		weeks[i] = domain.MustWeek(2024, i+1)
	}
	s, err := persephone.NewSeries(weeks, []float64{10, 12, 11, 13, 14})
	require.NoError(t, err)
	return s
}

func TestRun_ConstantBackend(t *testing.T) {
	backend := &stubBackend{value: 12}
	res, err := Run(context.Background(), exampleSeries(t), domain.MustWeek(2024, 4), backend, nil)
	require.NoError(t, err)

	assert.InDelta(t, (1.0/13+2.0/14)/2, res.MAPE, 1e-12)
	assert.InDelta(t, 0.1099, res.MAPE, 1e-4)
	assert.InDelta(t, 2.5, res.MSE, 1e-12)
	assert.Equal(t, res.MAPE, res.Metrics.MAPE)
	assert.InDelta(t, 1.5, res.Metrics.MAE, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), res.Metrics.RMSE, 1e-12)

	require.Len(t, res.Rows, 5)
	assert.Equal(t, 3, res.TrainSize)
	assert.Equal(t, 2, res.ValidationSize)
	assert.Equal(t, "stub", res.Backend)
	for i, row := range res.Rows {
		assert.Equal(t, domain.MustWeek(2024, i+1), row.Week)
		assert.Equal(t, i >= 3, row.Validation)
		assert.Equal(t, 12.0, row.Predicted)
	}
	assert.Len(t, res.Train(), 3)
	assert.Len(t, res.Validation(), 2)
}

func TestRun_HorizonOffsets(t *testing.T) {
	backend := &stubBackend{value: 1}
	_, err := Run(context.Background(), exampleSeries(t), domain.MustWeek(2024, 4), backend, nil)
	require.NoError(t, err)

	require.Len(t, backend.horizons, 2)
	assert.Equal(t, 0, backend.horizons[0].Offset)
	assert.Equal(t, []domain.Week{domain.MustWeek(2024, 1), domain.MustWeek(2024, 2), domain.MustWeek(2024, 3)}, backend.horizons[0].Weeks)
	assert.Equal(t, 3, backend.horizons[1].Offset)
	assert.Equal(t, []domain.Week{domain.MustWeek(2024, 4), domain.MustWeek(2024, 5)}, backend.horizons[1].Weeks)
}

func TestRun_MeanBackend(t *testing.T) {
	backend, err := persephone.NewBackend(persephone.MeanName)
	require.NoError(t, err)

	res, err := Run(context.Background(), exampleSeries(t), domain.MustWeek(2024, 4), backend, nil)
	require.NoError(t, err)

	for _, row := range res.Rows {
		assert.InDelta(t, 11.0, row.Predicted, 1e-12)
	}
	assert.InDelta(t, (2.0/13+3.0/14)/2, res.MAPE, 1e-12)
	assert.InDelta(t, 6.5, res.MSE, 1e-12)
}

func TestRun_ForwardsParams(t *testing.T) {
	backend := &stubBackend{value: 1}
	params := persephone.Params{"seasonality_mode": "multiplicative"}
	_, err := Run(context.Background(), exampleSeries(t), domain.MustWeek(2024, 4), backend, params)
	require.NoError(t, err)
	assert.Equal(t, params, backend.params)
}

func TestRun_InsufficientData(t *testing.T) {
	s := exampleSeries(t)
	for _, cutoff := range []domain.Week{domain.MustWeek(2024, 1), domain.MustWeek(2023, 30)} {
		backend := &stubBackend{}
		_, err := Run(context.Background(), s, cutoff, backend, nil)
		assert.ErrorIs(t, err, ErrInsufficientData, cutoff.String())
		assert.Zero(t, backend.fits)
	}
}

func TestRun_EmptyValidation(t *testing.T) {
	backend := &stubBackend{}
	_, err := Run(context.Background(), exampleSeries(t), domain.MustWeek(2024, 6), backend, nil)
	assert.ErrorIs(t, err, ErrEmptyValidation)
	assert.Zero(t, backend.fits)
}

func TestRun_FitError(t *testing.T) {
	cause := errors.New("boom")
	_, err := Run(context.Background(), exampleSeries(t), domain.MustWeek(2024, 4), &stubBackend{fitErr: cause}, nil)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "stub", be.Backend)
	assert.Equal(t, OpFit, be.Op)
	assert.ErrorIs(t, err, cause)
}

func TestRun_PredictErrors(t *testing.T) {
	cause := errors.New("no model")
	_, err := Run(context.Background(), exampleSeries(t), domain.MustWeek(2024, 4), &stubBackend{predictErr: cause}, nil)
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, OpPredict, be.Op)
	assert.ErrorIs(t, err, cause)

	_, err = Run(context.Background(), exampleSeries(t), domain.MustWeek(2024, 4), &stubBackend{short: true}, nil)
	require.ErrorAs(t, err, &be)
	assert.Equal(t, OpPredict, be.Op)

	_, err = Run(context.Background(), exampleSeries(t), domain.MustWeek(2024, 4), &stubBackend{value: math.NaN()}, nil)
	require.ErrorAs(t, err, &be)
	assert.Equal(t, OpPredict, be.Op)
}

func TestRun_InvalidParamsWrapped(t *testing.T) {
	backend, err := persephone.NewBackend(persephone.SmoothingName)
	require.NoError(t, err)

	_, err = Run(context.Background(), exampleSeries(t), domain.MustWeek(2024, 4), backend, persephone.Params{"beta": 0.1})
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, OpFit, be.Op)
	assert.ErrorIs(t, err, persephone.ErrInvalidParams)
}

func TestRun_MissingInSampleIsNull(t *testing.T) {
	backend, err := persephone.NewBackend(persephone.NaiveName)
	require.NoError(t, err)

	res, err := Run(context.Background(), exampleSeries(t), domain.MustWeek(2024, 4), backend, nil)
	require.NoError(t, err)
	assert.True(t, res.Rows[0].Missing())
	assert.Equal(t, 10.0, res.Rows[1].Predicted)
	assert.Equal(t, 11.0, res.Rows[3].Predicted)
	assert.Equal(t, 11.0, res.Rows[4].Predicted)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded struct {
		Rows []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded.Rows[0]["predicted"])
	assert.Equal(t, "2024-W01", decoded.Rows[0]["week"])

	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Rows[0].Missing())
	assert.Equal(t, res.Rows[1:], back.Rows[1:])
}

func TestRun_RowsCoverSeries(t *testing.T) {
	s := exampleSeries(t)
	for n := 2; n <= 5; n++ {
		res, err := Run(context.Background(), s, domain.MustWeek(2024, n), &stubBackend{value: 1}, nil)
		require.NoError(t, err)
		require.Len(t, res.Rows, s.Len())
		assert.Equal(t, n-1, res.TrainSize)
		for i, row := range res.Rows {
			w, _ := s.At(i)
			assert.Equal(t, w, row.Week)
		}
	}
}
