package persephone

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tartarus-sandbox/persephone/pkg/domain"
	"gonum.org/v1/gonum/stat"
)

// ErrInvalidSeries is returned when a series violates its construction
// invariants: equal lengths, strictly increasing weeks and finite values.
var ErrInvalidSeries = errors.New("invalid series")

// Observation is one weekly value.
type Observation struct {
	Week  domain.Week `json:"week"`
	Value float64     `json:"value"`
}

// Series is an immutable, strictly week-ordered sequence of observations.
// The zero value is an empty series.
type Series struct {
	weeks  []domain.Week
	values []float64
}

// NewSeries validates and copies weeks and values into a new Series.
func NewSeries(weeks []domain.Week, values []float64) (*Series, error) {
	if len(weeks) != len(values) {
		return nil, fmt.Errorf("%w: %d weeks but %d values", ErrInvalidSeries, len(weeks), len(values))
	}
	for i, w := range weeks {
		if !w.Valid() {
			return nil, fmt.Errorf("%w: week %d (%v) is not a valid ISO week", ErrInvalidSeries, i, w)
		}
		if i > 0 && !weeks[i-1].Before(w) {
			return nil, fmt.Errorf("%w: week %d (%s) does not follow %s", ErrInvalidSeries, i, w, weeks[i-1])
		}
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return nil, fmt.Errorf("%w: value at %s is not finite", ErrInvalidSeries, w)
		}
	}

	s := &Series{
		weeks:  make([]domain.Week, len(weeks)),
		values: make([]float64, len(values)),
	}
	copy(s.weeks, weeks)
	copy(s.values, values)
	return s, nil
}

// SeriesFromObservations sorts observations by week and builds a Series.
// Duplicate weeks are rejected.
func SeriesFromObservations(obs []Observation) (*Series, error) {
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Week.Before(sorted[j].Week)
	})

	weeks := make([]domain.Week, len(sorted))
	values := make([]float64, len(sorted))
	for i, o := range sorted {
		weeks[i] = o.Week
		values[i] = o.Value
	}
	return NewSeries(weeks, values)
}

// Len returns the number of observations.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.weeks)
}

// At returns the i-th observation.
func (s *Series) At(i int) (domain.Week, float64) {
	return s.weeks[i], s.values[i]
}

// Weeks returns a copy of the week index.
func (s *Series) Weeks() []domain.Week {
	out := make([]domain.Week, s.Len())
	if s != nil {
		copy(out, s.weeks)
	}
	return out
}

// Values returns a copy of the observed values.
func (s *Series) Values() []float64 {
	out := make([]float64, s.Len())
	if s != nil {
		copy(out, s.values)
	}
	return out
}

// Observations returns the series as week/value pairs.
func (s *Series) Observations() []Observation {
	out := make([]Observation, s.Len())
	for i := range out {
		out[i] = Observation{Week: s.weeks[i], Value: s.values[i]}
	}
	return out
}

// First and Last return the bounding weeks; ok is false for an empty series.
func (s *Series) First() (w domain.Week, ok bool) {
	if s.Len() == 0 {
		return domain.Week{}, false
	}
	return s.weeks[0], true
}

func (s *Series) Last() (w domain.Week, ok bool) {
	if s.Len() == 0 {
		return domain.Week{}, false
	}
	return s.weeks[len(s.weeks)-1], true
}

// Index returns the position of the first week >= w, or Len() if none.
func (s *Series) Index(w domain.Week) int {
	n := s.Len()
	return sort.Search(n, func(i int) bool {
		return !s.weeks[i].Before(w)
	})
}

// SplitAt partitions the series at cutoff: train holds every week strictly
// before cutoff, validation every week at or after it. Either side may be
// empty. Both share storage with s; capacities are clipped so neither can
// grow into the other.
func (s *Series) SplitAt(cutoff domain.Week) (train, validation *Series) {
	i := s.Index(cutoff)
	n := s.Len()
	if n == 0 {
		return &Series{}, &Series{}
	}
	train = &Series{
		weeks:  s.weeks[0:i:i],
		values: s.values[0:i:i],
	}
	validation = &Series{
		weeks:  s.weeks[i:n:n],
		values: s.values[i:n:n],
	}
	return train, validation
}

// Range returns the sub-series with weeks in [from, to]. A zero bound is open.
func (s *Series) Range(from, to domain.Week) *Series {
	n := s.Len()
	if n == 0 {
		return &Series{}
	}
	lo := 0
	if !from.IsZero() {
		lo = s.Index(from)
	}
	hi := n
	if !to.IsZero() {
		hi = s.Index(to.Add(1))
	}
	if hi < lo {
		hi = lo
	}
	return &Series{
		weeks:  s.weeks[lo:hi:hi],
		values: s.values[lo:hi:hi],
	}
}

// Mean returns the arithmetic mean of the values, or NaN when empty.
func (s *Series) Mean() float64 {
	if s.Len() == 0 {
		return math.NaN()
	}
	return stat.Mean(s.values, nil)
}
