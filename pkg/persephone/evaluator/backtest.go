package evaluator

import (
	"context"
	"fmt"
	"math"

	"github.com/tartarus-sandbox/persephone/pkg/domain"
	"github.com/tartarus-sandbox/persephone/pkg/persephone"
)

// Run performs one backtest: the series is split at cutoff, backend is fitted
// on the weeks before it, and the fitted model restates the training weeks
// and forecasts the weeks from cutoff on. Metrics cover the validation weeks
// only. params is passed to the backend untouched.
func Run(ctx context.Context, series *persephone.Series, cutoff domain.Week, backend persephone.Backend, params persephone.Params) (*Result, error) {
	train, validation := series.SplitAt(cutoff)
	if train.Len() == 0 {
		return nil, fmt.Errorf("%w: cutoff %s", ErrInsufficientData, cutoff)
	}
	if validation.Len() == 0 {
		return nil, fmt.Errorf("%w: cutoff %s", ErrEmptyValidation, cutoff)
	}

	name := backend.Name()
	model, err := backend.Fit(ctx, train, params)
	if err != nil {
		return nil, &BackendError{Backend: name, Op: OpFit, Err: err}
	}

	trainWeeks := train.Weeks()
	predTrain, err := predict(ctx, backend, model, persephone.Horizon{Offset: 0, Weeks: trainWeeks})
	if err != nil {
		return nil, err
	}

	validWeeks := validation.Weeks()
	predValid, err := predict(ctx, backend, model, persephone.Horizon{Offset: train.Len(), Weeks: validWeeks})
	if err != nil {
		return nil, err
	}
	for i, p := range predValid {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, &BackendError{
				Backend: name,
				Op:      OpPredict,
				Err:     fmt.Errorf("no finite prediction for validation week %s", validWeeks[i]),
			}
		}
	}

	rows := make([]Row, 0, series.Len())
	for i, v := range train.Values() {
		rows = append(rows, Row{Week: trainWeeks[i], Actual: v, Predicted: predTrain[i]})
	}
	actuals := validation.Values()
	for i, v := range actuals {
		rows = append(rows, Row{Week: validWeeks[i], Actual: v, Predicted: predValid[i], Validation: true})
	}

	metrics := CalculateMetrics(predValid, actuals)
	return &Result{
		Backend:        name,
		Cutoff:         cutoff,
		TrainSize:      train.Len(),
		ValidationSize: validation.Len(),
		Rows:           rows,
		MAPE:           metrics.MAPE,
		MSE:            metrics.MSE,
		Metrics:        metrics,
	}, nil
}

func predict(ctx context.Context, backend persephone.Backend, model persephone.Model, h persephone.Horizon) ([]float64, error) {
	out, err := backend.Predict(ctx, model, h)
	if err != nil {
		return nil, &BackendError{Backend: backend.Name(), Op: OpPredict, Err: err}
	}
	if len(out) != h.Len() {
		return nil, &BackendError{
			Backend: backend.Name(),
			Op:      OpPredict,
			Err:     fmt.Errorf("returned %d predictions for %d weeks", len(out), h.Len()),
		}
	}
	return out, nil
}
