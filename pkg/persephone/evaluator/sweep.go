package evaluator

import (
	"context"
	"fmt"
	"runtime"

	"github.com/tartarus-sandbox/persephone/pkg/domain"
	"github.com/tartarus-sandbox/persephone/pkg/persephone"
	"golang.org/x/sync/errgroup"
)

// Trial is one backtest configuration in a sweep.
type Trial struct {
	Cutoff  domain.Week       `json:"cutoff" yaml:"cutoff"`
	Until   domain.Week       `json:"until,omitempty" yaml:"until,omitempty"` // last validation week; zero = end of series
	Backend string            `json:"backend" yaml:"backend"`
	Params  persephone.Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// Sweep runs every trial against series with at most limit backtests in
// flight (limit <= 0 means GOMAXPROCS). Results come back in trial order. The
// first failure cancels the remaining trials and is returned annotated with
// the trial that raised it.
func Sweep(ctx context.Context, series *persephone.Series, trials []Trial, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make([]*Result, len(trials))
	for i, trial := range trials {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			backend, err := persephone.NewBackend(trial.Backend)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}

			window := series
			if !trial.Until.IsZero() {
				window = series.Range(domain.Week{}, trial.Until)
			}
			res, err := Run(ctx, window, trial.Cutoff, backend, trial.Params)
			if err != nil {
				return fmt.Errorf("trial %d (%s at %s): %w", i, trial.Backend, trial.Cutoff, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
