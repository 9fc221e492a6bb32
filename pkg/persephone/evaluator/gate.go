package evaluator

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Gate is a compiled acceptance condition over a backtest result, such as
// `mape < 0.15 && validation_size >= 4`.
//
// Variables: mape, mse, mae, rmse (double), backend (string), train_size and
// validation_size (int).
type Gate struct {
	expr string
	prg  cel.Program
}

// NewGate compiles expr. The expression must evaluate to a bool.
func NewGate(expr string) (*Gate, error) {
	env, err := cel.NewEnv(
		cel.Variable("mape", cel.DoubleType),
		cel.Variable("mse", cel.DoubleType),
		cel.Variable("mae", cel.DoubleType),
		cel.Variable("rmse", cel.DoubleType),
		cel.Variable("backend", cel.StringType),
		cel.Variable("train_size", cel.IntType),
		cel.Variable("validation_size", cel.IntType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidGate, expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w %q: evaluates to %s, want bool", ErrInvalidGate, expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidGate, expr, err)
	}
	return &Gate{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (g *Gate) String() string {
	return g.expr
}

// Check returns nil when result passes, an error wrapping ErrGateFailed when
// it does not, and any other error if evaluation fails.
func (g *Gate) Check(result *Result) error {
	vars := map[string]interface{}{
		"mape":            result.Metrics.MAPE,
		"mse":             result.Metrics.MSE,
		"mae":             result.Metrics.MAE,
		"rmse":            result.Metrics.RMSE,
		"backend":         result.Backend,
		"train_size":      int64(result.TrainSize),
		"validation_size": int64(result.ValidationSize),
	}

	out, _, err := g.prg.Eval(vars)
	if err != nil {
		return fmt.Errorf("gate %q: %w", g.expr, err)
	}
	pass, ok := out.Value().(bool)
	if !ok {
		return fmt.Errorf("gate %q: non-boolean result %v", g.expr, out.Value())
	}
	if !pass {
		return fmt.Errorf("%w: %s (mape=%.4f mse=%.4f)", ErrGateFailed, g.expr, result.Metrics.MAPE, result.Metrics.MSE)
	}
	return nil
}
