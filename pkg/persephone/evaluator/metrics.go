package evaluator

import (
	"math"
)

// epsilon floors the MAPE denominator so a zero actual yields a large but
// finite error.
const epsilon = 2.220446049250313e-16

// MetricResult holds the calculated error metrics
type MetricResult struct {
	MAPE float64 `json:"mape" yaml:"mape"` // Mean Absolute Percentage Error, as a fraction
	MSE  float64 `json:"mse" yaml:"mse"`   // Mean Squared Error
	MAE  float64 `json:"mae" yaml:"mae"`   // Mean Absolute Error
	RMSE float64 `json:"rmse" yaml:"rmse"` // Root Mean Square Error
}

// CalculateMetrics computes accuracy metrics for predictions vs actuals.
// The slices must be aligned and of equal, non-zero length; otherwise every
// metric is NaN.
func CalculateMetrics(predictions []float64, actuals []float64) MetricResult {
	if len(predictions) != len(actuals) || len(predictions) == 0 {
		nan := math.NaN()
		return MetricResult{MAPE: nan, MSE: nan, MAE: nan, RMSE: nan}
	}

	var sumAbsError float64
	var sumSquaredError float64
	var sumPctError float64

	n := float64(len(predictions))

	for i := 0; i < len(predictions); i++ {
		pred := predictions[i]
		act := actuals[i]

		err := act - pred
		absErr := math.Abs(err)

		sumAbsError += absErr
		sumSquaredError += err * err
		sumPctError += absErr / math.Max(math.Abs(act), epsilon)
	}

	return MetricResult{
		MAPE: sumPctError / n,
		MSE:  sumSquaredError / n,
		MAE:  sumAbsError / n,
		RMSE: math.Sqrt(sumSquaredError / n),
	}
}

// MAPE is the mean absolute percentage error as a fraction (0.1 = 10%).
func MAPE(predictions, actuals []float64) float64 {
	return CalculateMetrics(predictions, actuals).MAPE
}

// MSE is the mean squared error.
func MSE(predictions, actuals []float64) float64 {
	return CalculateMetrics(predictions, actuals).MSE
}
