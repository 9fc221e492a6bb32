package persephone

import (
	"context"
	"fmt"
	"math"
)

// Baseline backend names.
const (
	SmoothingName = "smoothing"
	MeanName      = "mean"
	NaiveName     = "naive"
)

// positionalModel is the fitted state shared by backends that predict by
// position: one-step in-sample predictions plus a multi-step forecaster.
type positionalModel struct {
	backend  string
	inSample []float64
	ahead    func(steps int) []float64
}

func (m *positionalModel) predict(h Horizon) ([]float64, error) {
	if h.Offset < 0 {
		return nil, fmt.Errorf("%w: negative horizon offset %d", ErrInvalidParams, h.Offset)
	}
	n := len(m.inSample)
	end := h.Offset + h.Len()

	var future []float64
	if end > n {
		future = m.ahead(end - n)
	}

	out := make([]float64, h.Len())
	for i := range out {
		k := h.Offset + i
		if k < n {
			out[i] = m.inSample[k]
		} else {
			out[i] = future[k-n]
		}
	}
	return out, nil
}

func predictPositional(ctx context.Context, name string, model Model, h Horizon) ([]float64, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	m, ok := model.(*positionalModel)
	if !ok || m.backend != name {
		return nil, fmt.Errorf("%w: %T", ErrInvalidModel, model)
	}
	return m.predict(h)
}

func constant(v float64) func(int) []float64 {
	return func(steps int) []float64 {
		out := make([]float64, steps)
		for i := range out {
			out[i] = v
		}
		return out
	}
}

// SmoothingBackend is simple exponential smoothing: the level follows each
// observation by a factor alpha and the forecast stays flat at the final level.
type SmoothingBackend struct{}

// NewSmoothingBackend creates a smoothing backend. Params: alpha in (0, 1),
// default 0.3.
func NewSmoothingBackend() *SmoothingBackend {
	return &SmoothingBackend{}
}

func (b *SmoothingBackend) Name() string { return SmoothingName }

func (b *SmoothingBackend) Fit(ctx context.Context, train *Series, params Params) (Model, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := params.CheckKeys("alpha"); err != nil {
		return nil, err
	}
	alpha, err := params.Float("alpha", 0.3)
	if err != nil {
		return nil, err
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("%w: alpha must be in (0, 1), got %v", ErrInvalidParams, alpha)
	}
	if train.Len() == 0 {
		return nil, fmt.Errorf("%w: smoothing needs at least one observation", ErrInvalidParams)
	}

	values := train.Values()
	fitted := make([]float64, len(values))

	// Initialize level with first value
	level := values[0]
	for i, observed := range values {
		fitted[i] = level
		level = alpha*observed + (1-alpha)*level
	}

	return &positionalModel{
		backend:  SmoothingName,
		inSample: fitted,
		ahead:    constant(level),
	}, nil
}

func (b *SmoothingBackend) Predict(ctx context.Context, model Model, h Horizon) ([]float64, error) {
	return predictPositional(ctx, SmoothingName, model, h)
}

// MeanBackend predicts the training mean everywhere.
type MeanBackend struct{}

func NewMeanBackend() *MeanBackend { return &MeanBackend{} }

func (b *MeanBackend) Name() string { return MeanName }

func (b *MeanBackend) Fit(ctx context.Context, train *Series, params Params) (Model, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := params.CheckKeys(); err != nil {
		return nil, err
	}
	mean := train.Mean()
	if math.IsNaN(mean) {
		return nil, fmt.Errorf("%w: mean of an empty series", ErrInvalidParams)
	}
	return &positionalModel{
		backend:  MeanName,
		inSample: constant(mean)(train.Len()),
		ahead:    constant(mean),
	}, nil
}

func (b *MeanBackend) Predict(ctx context.Context, model Model, h Horizon) ([]float64, error) {
	return predictPositional(ctx, MeanName, model, h)
}

// NaiveBackend repeats the previous observation; out of sample it repeats the
// last training value.
type NaiveBackend struct{}

func NewNaiveBackend() *NaiveBackend { return &NaiveBackend{} }

func (b *NaiveBackend) Name() string { return NaiveName }

func (b *NaiveBackend) Fit(ctx context.Context, train *Series, params Params) (Model, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := params.CheckKeys(); err != nil {
		return nil, err
	}
	values := train.Values()
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: naive needs at least one observation", ErrInvalidParams)
	}

	fitted := make([]float64, len(values))
	fitted[0] = math.NaN()
	copy(fitted[1:], values[:len(values)-1])

	return &positionalModel{
		backend:  NaiveName,
		inSample: fitted,
		ahead:    constant(values[len(values)-1]),
	}, nil
}

func (b *NaiveBackend) Predict(ctx context.Context, model Model, h Horizon) ([]float64, error) {
	return predictPositional(ctx, NaiveName, model, h)
}
