package evaluator

import (
	"fmt"

	"github.com/tartarus-sandbox/persephone/pkg/domain"
	"github.com/tartarus-sandbox/persephone/pkg/persephone"
)

// Fold is one walk-forward window: train on weeks before Cutoff, validate on
// [Cutoff, Until]. A zero Until runs to the end of the series.
type Fold struct {
	Cutoff domain.Week `json:"cutoff"`
	Until  domain.Week `json:"until,omitempty"`
}

// WalkForward lays out expanding-window folds over series. The first fold
// trains on minTrain weeks; each fold validates on horizon weeks (0 means the
// rest of the series) and the next cutoff moves step weeks later. Folds whose
// validation window would run past the end are dropped.
func WalkForward(series *persephone.Series, minTrain, horizon, step int) ([]Fold, error) {
	if minTrain < 1 {
		return nil, fmt.Errorf("walk-forward: minTrain must be >= 1, got %d", minTrain)
	}
	if horizon < 0 {
		return nil, fmt.Errorf("walk-forward: horizon must be >= 0, got %d", horizon)
	}
	if step < 1 {
		return nil, fmt.Errorf("walk-forward: step must be >= 1, got %d", step)
	}

	n := series.Len()
	weeks := series.Weeks()
	var folds []Fold
	for i := minTrain; i < n; i += step {
		fold := Fold{Cutoff: weeks[i]}
		if horizon > 0 {
			if i+horizon > n {
				break
			}
			fold.Until = weeks[i+horizon-1]
		}
		folds = append(folds, fold)
	}
	if len(folds) == 0 {
		return nil, fmt.Errorf("%w: %d weeks leave no fold after %d training weeks", ErrInsufficientData, n, minTrain)
	}
	return folds, nil
}

// Trials expands folds into one trial per fold for the given backend.
func Trials(folds []Fold, backend string, params persephone.Params) []Trial {
	trials := make([]Trial, len(folds))
	for i, f := range folds {
		trials[i] = Trial{Cutoff: f.Cutoff, Until: f.Until, Backend: backend, Params: params.Clone()}
	}
	return trials
}
