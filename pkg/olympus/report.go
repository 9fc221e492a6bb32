package olympus

import (
	"time"

	"github.com/google/uuid"
	"github.com/tartarus-sandbox/persephone/pkg/persephone/evaluator"
)

// Report kinds.
const (
	KindBacktest = "backtest"
	KindSweep    = "sweep"
)

// Report is the archived outcome of a backtest or sweep. Passed is set only
// when a gate was applied.
type Report struct {
	ID        string              `json:"id"`
	Kind      string              `json:"kind"`
	CreatedAt time.Time           `json:"created_at"`
	Series    string              `json:"series"`
	Gate      string              `json:"gate,omitempty"`
	Passed    *bool               `json:"passed,omitempty"`
	Results   []*evaluator.Result `json:"results"`
}

// Best returns the result with the lowest MAPE, or nil for an empty report.
func (r *Report) Best() *evaluator.Result {
	var best *evaluator.Result
	for _, res := range r.Results {
		if best == nil || res.MAPE < best.MAPE {
			best = res
		}
	}
	return best
}

func (s *Service) newReport(kind, series string, gate *evaluator.Gate, results []*evaluator.Result) *Report {
	report := &Report{
		ID:        uuid.New().String(),
		Kind:      kind,
		CreatedAt: s.now().UTC(),
		Series:    series,
		Results:   results,
	}
	if gate != nil {
		report.Gate = gate.String()
	}
	return report
}
