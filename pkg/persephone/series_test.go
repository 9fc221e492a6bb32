package persephone

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartarus-sandbox/persephone/pkg/domain"
)

func weeksFrom(start domain.Week, n int) []domain.Week {
	out := make([]domain.Week, n)
	for i := range out {
		out[i] = start.Add(i)
	}
	return out
}

func mustSeries(t *testing.T, start domain.Week, values ...float64) *Series {
	t.Helper()
	s, err := NewSeries(weeksFrom(start, len(values)), values)
	require.NoError(t, err)
	return s
}

func TestNewSeries_Validation(t *testing.T) {
	w1, w2 := domain.MustWeek(2024, 1), domain.MustWeek(2024, 2)

	_, err := NewSeries([]domain.Week{w1, w2}, []float64{1})
	assert.ErrorIs(t, err, ErrInvalidSeries)

	_, err = NewSeries([]domain.Week{w2, w1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrInvalidSeries)

	_, err = NewSeries([]domain.Week{w1, w1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrInvalidSeries)

	_, err = NewSeries([]domain.Week{{Year: 2024, Number: 60}}, []float64{1})
	assert.ErrorIs(t, err, ErrInvalidSeries)

	_, err = NewSeries([]domain.Week{w1}, []float64{math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidSeries)

	empty, err := NewSeries(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestNewSeries_CopiesInput(t *testing.T) {
	weeks := weeksFrom(domain.MustWeek(2024, 1), 3)
	values := []float64{1, 2, 3}
	s, err := NewSeries(weeks, values)
	require.NoError(t, err)

	values[0] = 100
	weeks[0] = domain.MustWeek(2020, 1)
	got := s.Values()
	got[1] = 200

	assert.Equal(t, []float64{1, 2, 3}, s.Values())
	first, ok := s.First()
	require.True(t, ok)
	assert.Equal(t, domain.MustWeek(2024, 1), first)
}

func TestSeriesFromObservations(t *testing.T) {
	s, err := SeriesFromObservations([]Observation{
		{Week: domain.MustWeek(2024, 3), Value: 3},
		{Week: domain.MustWeek(2024, 1), Value: 1},
		{Week: domain.MustWeek(2024, 2), Value: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, s.Values())

	_, err = SeriesFromObservations([]Observation{
		{Week: domain.MustWeek(2024, 1), Value: 1},
		{Week: domain.MustWeek(2024, 1), Value: 2},
	})
	assert.ErrorIs(t, err, ErrInvalidSeries)
}

func TestSplitAt_ConcatenationAndOrdering(t *testing.T) {
	start := domain.MustWeek(2023, 50)
	s := mustSeries(t, start, 10, 12, 11, 13, 14, 9)
	weeks := s.Weeks()

	for off := -2; off <= s.Len()+2; off++ {
		cutoff := start.Add(off)
		train, validation := s.SplitAt(cutoff)

		joined := append(train.Weeks(), validation.Weeks()...)
		assert.Equal(t, weeks, joined, cutoff.String())
		assert.Equal(t, s.Values(), append(train.Values(), validation.Values()...))

		for _, w := range train.Weeks() {
			assert.True(t, w.Before(cutoff))
		}
		for _, w := range validation.Weeks() {
			assert.False(t, w.Before(cutoff))
		}
	}
}

func TestSplitAt_Edges(t *testing.T) {
	s := mustSeries(t, domain.MustWeek(2024, 1), 10, 12, 11, 13, 14)

	train, validation := s.SplitAt(domain.MustWeek(2023, 40))
	assert.Equal(t, 0, train.Len())
	assert.Equal(t, s.Observations(), validation.Observations())

	train, validation = s.SplitAt(domain.MustWeek(2024, 1))
	assert.Equal(t, 0, train.Len())
	assert.Equal(t, 5, validation.Len())

	train, validation = s.SplitAt(domain.MustWeek(2024, 6))
	assert.Equal(t, s.Observations(), train.Observations())
	assert.Equal(t, 0, validation.Len())

	train, validation = s.SplitAt(domain.MustWeek(2024, 4))
	assert.Equal(t, []float64{10, 12, 11}, train.Values())
	assert.Equal(t, []float64{13, 14}, validation.Values())

	var empty Series
	train, validation = empty.SplitAt(domain.MustWeek(2024, 1))
	assert.Equal(t, 0, train.Len())
	assert.Equal(t, 0, validation.Len())
}

func TestSplitAt_ResplitIdempotent(t *testing.T) {
	start := domain.MustWeek(2024, 1)
	s := mustSeries(t, start, 1, 2, 3, 4, 5, 6, 7, 8)
	train, validation := s.SplitAt(start.Add(5))

	for off := 0; off <= 5; off++ {
		c := start.Add(off)
		a1, b1 := train.SplitAt(c)
		a2, _ := s.SplitAt(c)
		assert.Equal(t, a2.Observations(), a1.Observations())
		assert.Equal(t, train.Len()-a1.Len(), b1.Len())
	}
	for off := 5; off <= 8; off++ {
		c := start.Add(off)
		_, b1 := validation.SplitAt(c)
		_, b2 := s.SplitAt(c)
		assert.Equal(t, b2.Observations(), b1.Observations())
	}
}

func TestSplitAt_SharedStorageIsClipped(t *testing.T) {
	s := mustSeries(t, domain.MustWeek(2024, 1), 1, 2, 3, 4)
	train, _ := s.SplitAt(domain.MustWeek(2024, 3))

	assert.Equal(t, len(train.values), cap(train.values))
	assert.Equal(t, len(train.weeks), cap(train.weeks))

	grown := append(train.values, 99)
	grown[0] = -1
	assert.Equal(t, []float64{1, 2, 3, 4}, s.Values())
}

func TestSeries_RangeAndIndex(t *testing.T) {
	start := domain.MustWeek(2024, 1)
	s := mustSeries(t, start, 1, 2, 3, 4, 5)

	assert.Equal(t, 0, s.Index(domain.MustWeek(2023, 1)))
	assert.Equal(t, 2, s.Index(start.Add(2)))
	assert.Equal(t, 5, s.Index(start.Add(10)))

	assert.Equal(t, []float64{2, 3, 4}, s.Range(start.Add(1), start.Add(3)).Values())
	assert.Equal(t, []float64{1, 2}, s.Range(domain.Week{}, start.Add(1)).Values())
	assert.Equal(t, []float64{4, 5}, s.Range(start.Add(3), domain.Week{}).Values())
	assert.Equal(t, 0, s.Range(start.Add(4), start.Add(2)).Len())
}

func TestSeries_Mean(t *testing.T) {
	s := mustSeries(t, domain.MustWeek(2024, 1), 10, 12, 11)
	assert.InDelta(t, 11.0, s.Mean(), 1e-12)

	var empty Series
	assert.True(t, math.IsNaN(empty.Mean()))
}
