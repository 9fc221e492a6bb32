package persephone

import (
	"context"
	"fmt"
	"math"
)

// ARIMAName is the registry name of the autoregressive backend.
const ARIMAName = "arima"

// ARIMABackend fits ARIMA(p, d, q) on the value sequence alone.
//
// Params:
//
//	order: [p, d, q]        (or separate p, d, q keys; default [1, 0, 0])
//	trend: "c" | "n"        (constant or none; default "c" when d == 0)
//
// Coefficients are estimated with the Hannan-Rissanen procedure: a long
// autoregression supplies innovation estimates, then the ARMA regression on
// lagged values and lagged innovations is solved by least squares.
//
// Predictions are positional. Requested positions start = Offset+1 through
// end = Offset+len, 1-indexed relative to the fitted series: positions up to
// n are one-step in-sample predictions (the first d are missing), positions
// beyond n are recursive forecasts with future innovations set to zero.
type ARIMABackend struct{}

// NewARIMABackend creates the ARIMA backend.
func NewARIMABackend() *ARIMABackend {
	return &ARIMABackend{}
}

// ARIMAModel is a fitted ARIMA(p, d, q).
type ARIMAModel struct {
	P, D, Q  int
	Constant float64   // intercept of the differenced series
	AR       []float64 // phi_1..phi_p
	MA       []float64 // theta_1..theta_q
	Sigma2   float64   // innovation variance

	levels    []float64 // training values
	diffed    []float64 // d-times differenced training values
	residuals []float64 // one-step innovations on diffed
	presample float64   // value assumed for diffed before its start

	positions *positionalModel
}

func (b *ARIMABackend) Name() string { return ARIMAName }

func (b *ARIMABackend) Fit(ctx context.Context, train *Series, params Params) (Model, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	p, d, q, withConstant, err := arimaOrder(params)
	if err != nil {
		return nil, err
	}

	levels := train.Values()
	if len(levels) <= d {
		return nil, fmt.Errorf("%w: %d observations cannot be differenced %d times", ErrInsufficientHistory, len(levels), d)
	}
	diffed := difference(levels, d)

	m := &ARIMAModel{P: p, D: d, Q: q, levels: levels, diffed: diffed}
	if err := m.estimate(withConstant); err != nil {
		return nil, err
	}
	m.filter()
	m.positions = &positionalModel{
		backend:  ARIMAName,
		inSample: m.inSample(),
		ahead:    m.forecast,
	}
	return m, nil
}

func (b *ARIMABackend) Predict(ctx context.Context, model Model, h Horizon) ([]float64, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	m, ok := model.(*ARIMAModel)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrInvalidModel, model)
	}
	return m.positions.predict(h)
}

func arimaOrder(params Params) (p, d, q int, withConstant bool, err error) {
	if err = params.CheckKeys("order", "p", "d", "q", "trend"); err != nil {
		return
	}

	p, d, q = 1, 0, 0
	if params.Has("order") {
		if params.Has("p") || params.Has("d") || params.Has("q") {
			err = fmt.Errorf("%w: use either order or p/d/q, not both", ErrInvalidParams)
			return
		}
		var order []int
		if order, err = params.Ints("order", nil); err != nil {
			return
		}
		if len(order) != 3 {
			err = fmt.Errorf("%w: order must have three elements (p, d, q), got %v", ErrInvalidParams, order)
			return
		}
		p, d, q = order[0], order[1], order[2]
	} else {
		if p, err = params.Int("p", p); err != nil {
			return
		}
		if d, err = params.Int("d", d); err != nil {
			return
		}
		if q, err = params.Int("q", q); err != nil {
			return
		}
	}
	if p < 0 || d < 0 || q < 0 {
		err = fmt.Errorf("%w: orders must be non-negative, got (%d, %d, %d)", ErrInvalidParams, p, d, q)
		return
	}

	defaultTrend := "n"
	if d == 0 {
		defaultTrend = "c"
	}
	trend, err := params.String("trend", defaultTrend)
	if err != nil {
		return
	}
	switch trend {
	case "c":
		withConstant = true
	case "n":
	default:
		err = fmt.Errorf("%w: trend must be \"c\" or \"n\", got %q", ErrInvalidParams, trend)
	}
	return
}

// estimate runs Hannan-Rissanen on m.diffed.
func (m *ARIMAModel) estimate(withConstant bool) error {
	w := m.diffed
	n := len(w)
	k := m.P + m.Q
	if withConstant {
		k++
	}

	innovations := make([]float64, n)
	start := m.P
	if m.Q > 0 {
		long := 2*(m.P+m.Q) + 1
		if long > n/3 {
			long = n / 3
		}
		if long < m.Q {
			return fmt.Errorf("%w: %d differenced observations for ARIMA(%d,%d,%d)", ErrInsufficientHistory, n, m.P, m.D, m.Q)
		}
		e, err := longAutoregression(w, long, withConstant)
		if err != nil {
			return err
		}
		innovations = e
		start = max(m.P, long+m.Q)
	}
	if n-start < k+1 {
		return fmt.Errorf("%w: %d differenced observations for ARIMA(%d,%d,%d)", ErrInsufficientHistory, n, m.P, m.D, m.Q)
	}

	ds := newDesign(k)
	row := make([]float64, k)
	for t := start; t < n; t++ {
		c := 0
		if withConstant {
			row[c] = 1
			c++
		}
		for i := 1; i <= m.P; i++ {
			row[c] = w[t-i]
			c++
		}
		for j := 1; j <= m.Q; j++ {
			row[c] = innovations[t-j]
			c++
		}
		ds.addRow(w[t], row...)
	}

	coef, err := ds.solve()
	if err != nil {
		return err
	}

	c := 0
	if withConstant {
		m.Constant = coef[0]
		c++
	}
	m.AR = append([]float64(nil), coef[c:c+m.P]...)
	m.MA = append([]float64(nil), coef[c+m.P:]...)

	// Presample values sit at the process mean when it exists.
	m.presample = 0
	if withConstant {
		denom := 1.0
		for _, phi := range m.AR {
			denom -= phi
		}
		if math.Abs(denom) > 1e-9 {
			m.presample = m.Constant / denom
		}
	}
	return nil
}

// longAutoregression fits AR(order) by least squares and returns its
// residuals, zero where lags are unavailable.
func longAutoregression(w []float64, order int, withConstant bool) ([]float64, error) {
	n := len(w)
	k := order
	if withConstant {
		k++
	}
	if n-order < k+1 {
		return nil, fmt.Errorf("%w: %d observations for a long AR(%d)", ErrInsufficientHistory, n, order)
	}

	ds := newDesign(k)
	row := make([]float64, k)
	for t := order; t < n; t++ {
		c := 0
		if withConstant {
			row[c] = 1
			c++
		}
		for i := 1; i <= order; i++ {
			row[c] = w[t-i]
			c++
		}
		ds.addRow(w[t], row...)
	}
	coef, err := ds.solve()
	if err != nil {
		return nil, err
	}

	residuals := make([]float64, n)
	for t := order; t < n; t++ {
		pred := 0.0
		c := 0
		if withConstant {
			pred = coef[0]
			c++
		}
		for i := 1; i <= order; i++ {
			pred += coef[c+i-1] * w[t-i]
		}
		residuals[t] = w[t] - pred
	}
	return residuals, nil
}

// step returns the one-step prediction of the differenced series at t given
// its history and innovations (indexes below zero use the presample level
// and zero innovations).
func (m *ARIMAModel) step(t int, w, e []float64) float64 {
	pred := m.Constant
	for i, phi := range m.AR {
		lag := t - 1 - i
		if lag >= 0 {
			pred += phi * w[lag]
		} else {
			pred += phi * m.presample
		}
	}
	for j, theta := range m.MA {
		lag := t - 1 - j
		if lag >= 0 {
			pred += theta * e[lag]
		}
	}
	return pred
}

// filter computes one-step innovations over the training window with the
// final coefficients.
func (m *ARIMAModel) filter() {
	w := m.diffed
	m.residuals = make([]float64, len(w))
	var sse float64
	for t := range w {
		m.residuals[t] = w[t] - m.step(t, w, m.residuals)
		sse += m.residuals[t] * m.residuals[t]
	}
	if len(w) > 0 {
		m.Sigma2 = sse / float64(len(w))
	}
}

// inSample returns one-step predictions on the original scale.
func (m *ARIMAModel) inSample() []float64 {
	out := missing(len(m.levels))
	for i := m.D; i < len(m.levels); i++ {
		t := i - m.D
		out[i] = integrate(m.diffed[t]-m.residuals[t], m.levels, i, m.D)
	}
	return out
}

// forecast returns the next steps values after the training window.
func (m *ARIMAModel) forecast(steps int) []float64 {
	n := len(m.diffed)
	w := append(make([]float64, 0, n+steps), m.diffed...)
	e := append(make([]float64, 0, n+steps), m.residuals...)
	levels := append(make([]float64, 0, len(m.levels)+steps), m.levels...)

	out := make([]float64, steps)
	for h := 0; h < steps; h++ {
		next := m.step(n+h, w, e)
		w = append(w, next)
		e = append(e, 0)

		level := integrate(next, levels, len(levels), m.D)
		levels = append(levels, level)
		out[h] = level
	}
	return out
}

// difference applies first differences d times.
func difference(values []float64, d int) []float64 {
	out := append([]float64(nil), values...)
	for i := 0; i < d; i++ {
		next := make([]float64, len(out)-1)
		for j := 1; j < len(out); j++ {
			next[j-1] = out[j] - out[j-1]
		}
		out = next
	}
	return out
}

// integrate inverts the d-th difference at position i:
// y_i = Δ^d y_i - sum_{k=1..d} C(d,k) (-1)^k y_{i-k}.
func integrate(diff float64, levels []float64, i, d int) float64 {
	y := diff
	binom := 1.0
	sign := 1.0
	for k := 1; k <= d; k++ {
		binom = binom * float64(d-k+1) / float64(k)
		sign = -sign
		y -= binom * sign * levels[i-k]
	}
	return y
}
