package evaluator

import (
	"encoding/json"
	"math"

	"github.com/tartarus-sandbox/persephone/pkg/domain"
)

// Row is one week of a backtest. Predicted is NaN when the backend could not
// restate that training week.
type Row struct {
	Week       domain.Week
	Actual     float64
	Predicted  float64
	Validation bool
}

type rowJSON struct {
	Week       domain.Week `json:"week"`
	Actual     float64     `json:"actual"`
	Predicted  *float64    `json:"predicted"`
	Validation bool        `json:"validation"`
}

// MarshalJSON encodes a missing prediction as null.
func (r Row) MarshalJSON() ([]byte, error) {
	out := rowJSON{Week: r.Week, Actual: r.Actual, Validation: r.Validation}
	if !math.IsNaN(r.Predicted) {
		p := r.Predicted
		out.Predicted = &p
	}
	return json.Marshal(out)
}

func (r *Row) UnmarshalJSON(data []byte) error {
	var in rowJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Row{Week: in.Week, Actual: in.Actual, Predicted: math.NaN(), Validation: in.Validation}
	if in.Predicted != nil {
		r.Predicted = *in.Predicted
	}
	return nil
}

// Missing reports whether the row has no prediction.
func (r Row) Missing() bool {
	return math.IsNaN(r.Predicted)
}

// Result contains the outcome of a single backtest: every week of the series
// in order, training rows first, and the error metrics over the validation
// rows.
type Result struct {
	Backend        string       `json:"backend"`
	Cutoff         domain.Week  `json:"cutoff"`
	TrainSize      int          `json:"train_size"`
	ValidationSize int          `json:"validation_size"`
	Rows           []Row        `json:"rows"`
	MAPE           float64      `json:"mape"`
	MSE            float64      `json:"mse"`
	Metrics        MetricResult `json:"metrics"`
}

// Train returns the training rows.
func (r *Result) Train() []Row {
	return r.Rows[:r.TrainSize:r.TrainSize]
}

// Validation returns the validation rows.
func (r *Result) Validation() []Row {
	return r.Rows[r.TrainSize:]
}
