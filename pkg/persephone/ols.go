package persephone

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInsufficientHistory is returned by Fit when the training window is
	// too short for the requested model.
	ErrInsufficientHistory = errors.New("insufficient history for model")

	// ErrSingularFit is returned when the least-squares system has no
	// stable solution.
	ErrSingularFit = errors.New("least-squares system is singular")
)

// jitter is the ridge weight added to every column when the unpenalised
// system turns out rank deficient (for example a constant series regressed
// on its own lags).
const jitter = 1e-8

// design is a dense row-major regression problem.
type design struct {
	rows, cols int
	x          []float64
	y          []float64
	// penalty[j] is the ridge weight on coefficient j (0 = unpenalised).
	penalty []float64
}

func newDesign(cols int) *design {
	return &design{cols: cols, penalty: make([]float64, cols)}
}

func (d *design) addRow(target float64, features ...float64) {
	if len(features) != d.cols {
		panic(fmt.Sprintf("persephone: design row has %d features, want %d", len(features), d.cols))
	}
	d.x = append(d.x, features...)
	d.y = append(d.y, target)
	d.rows++
}

// solve returns the coefficients minimising
// ||y - Xb||^2 + sum_j penalty[j] * b_j^2.
func (d *design) solve() ([]float64, error) {
	if d.cols == 0 {
		return []float64{}, nil
	}
	if d.rows == 0 {
		return nil, fmt.Errorf("%w: no rows to fit", ErrInsufficientHistory)
	}

	coef, err := d.solveWith(0)
	if err == nil {
		return coef, nil
	}
	coef, err = d.solveWith(jitter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularFit, err)
	}
	return coef, nil
}

func (d *design) solveWith(extra float64) ([]float64, error) {
	// Ridge terms become extra rows sqrt(w_j) * e_j with target 0.
	var ridge []int
	for j, w := range d.penalty {
		if w+extra > 0 {
			ridge = append(ridge, j)
		}
	}
	rows := d.rows + len(ridge)
	if rows < d.cols {
		return nil, fmt.Errorf("%w: %d rows for %d coefficients", ErrInsufficientHistory, d.rows, d.cols)
	}

	data := make([]float64, rows*d.cols)
	copy(data, d.x)
	target := make([]float64, rows)
	copy(target, d.y)
	for r, j := range ridge {
		data[(d.rows+r)*d.cols+j] = math.Sqrt(d.penalty[j] + extra)
	}

	a := mat.NewDense(rows, d.cols, data)
	b := mat.NewVecDense(rows, target)

	var coef mat.VecDense
	if err := coef.SolveVec(a, b); err != nil {
		return nil, err
	}

	out := make([]float64, d.cols)
	for j := range out {
		out[j] = coef.AtVec(j)
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil, fmt.Errorf("coefficient %d is not finite", j)
		}
	}
	return out, nil
}
