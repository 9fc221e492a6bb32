package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidWeek is returned when a week cannot be parsed or is out of range.
var ErrInvalidWeek = errors.New("invalid ISO week")

// epochMonday is the Monday of ISO week 1970-W02, the origin of Ordinal.
var epochMonday = time.Date(1970, time.January, 5, 0, 0, 0, 0, time.UTC)

const secondsPerWeek = 7 * 24 * 60 * 60

// Week is an ISO-8601 week. It is the period unit of every series in this
// repository: totally ordered, comparable with ==, and convertible to a
// calendar date for backends that work on dates.
type Week struct {
	Year   int
	Number int
}

// NewWeek validates and returns the ISO week (year, number).
func NewWeek(year, number int) (Week, error) {
	w := Week{Year: year, Number: number}
	if !w.Valid() {
		return Week{}, fmt.Errorf("%w: %04d-W%02d", ErrInvalidWeek, year, number)
	}
	return w, nil
}

// MustWeek is NewWeek for constants; it panics on an invalid week.
func MustWeek(year, number int) Week {
	w, err := NewWeek(year, number)
	if err != nil {
		panic(err)
	}
	return w
}

// WeekOf returns the ISO week containing t.
func WeekOf(t time.Time) Week {
	y, n := t.ISOWeek()
	return Week{Year: y, Number: n}
}

// WeeksInYear returns 52 or 53, the number of ISO weeks in an ISO year.
func WeeksInYear(year int) int {
	// December 28th always falls in the last ISO week of its year.
	_, n := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return n
}

// ParseWeek accepts "2024-W05", "2024W05", "202405" and calendar dates
// ("2024-01-29"), the latter mapping to the week that contains the date.
func ParseWeek(s string) (Week, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)

	switch {
	case len(upper) == 8 && upper[4] == '-' && upper[5] == 'W':
		return parseYearNumber(upper[:4], upper[6:], s)
	case len(upper) == 7 && upper[4] == 'W':
		return parseYearNumber(upper[:4], upper[5:], s)
	case len(upper) == 6:
		return parseYearNumber(upper[:4], upper[4:], s)
	case len(upper) == 10 && upper[4] == '-' && upper[7] == '-':
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return Week{}, fmt.Errorf("%w: %q", ErrInvalidWeek, s)
		}
		return WeekOf(t), nil
	}
	return Week{}, fmt.Errorf("%w: %q", ErrInvalidWeek, s)
}

func parseYearNumber(year, number, raw string) (Week, error) {
	if !allDigits(year) || !allDigits(number) {
		return Week{}, fmt.Errorf("%w: %q", ErrInvalidWeek, raw)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Week{}, fmt.Errorf("%w: %q", ErrInvalidWeek, raw)
	}
	n, err := strconv.Atoi(number)
	if err != nil {
		return Week{}, fmt.Errorf("%w: %q", ErrInvalidWeek, raw)
	}
	return NewWeek(y, n)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// WeekFromOrdinal is the inverse of Week.Ordinal.
func WeekFromOrdinal(n int64) Week {
	return WeekOf(epochMonday.AddDate(0, 0, 7*int(n)))
}

// IsZero reports whether w is the zero Week, used as an open bound.
func (w Week) IsZero() bool {
	return w == Week{}
}

// Valid reports whether w names an existing ISO week.
func (w Week) Valid() bool {
	return w.Year >= 1 && w.Year <= 9999 && w.Number >= 1 && w.Number <= WeeksInYear(w.Year)
}

// Date returns the calendar date (UTC midnight) of the given weekday in w.
func (w Week) Date(day time.Weekday) time.Time {
	jan4 := time.Date(w.Year, time.January, 4, 0, 0, 0, 0, time.UTC)
	week1 := jan4.AddDate(0, 0, -isoOffset(jan4.Weekday()))
	return week1.AddDate(0, 0, (w.Number-1)*7+isoOffset(day))
}

// isoOffset maps Monday..Sunday to 0..6.
func isoOffset(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Add returns the week n weeks after w (n may be negative).
func (w Week) Add(n int) Week {
	return WeekOf(w.Date(time.Monday).AddDate(0, 0, 7*n))
}

// Ordinal is the number of weeks between 1970-W02 and w. It is monotonic in w
// and used as a numeric score by stores.
func (w Week) Ordinal() int64 {
	return (w.Date(time.Monday).Unix() - epochMonday.Unix()) / secondsPerWeek
}

// Compare returns -1, 0 or +1 as w is before, equal to or after o.
func (w Week) Compare(o Week) int {
	switch {
	case w.Year < o.Year:
		return -1
	case w.Year > o.Year:
		return 1
	case w.Number < o.Number:
		return -1
	case w.Number > o.Number:
		return 1
	}
	return 0
}

func (w Week) Before(o Week) bool { return w.Compare(o) < 0 }
func (w Week) After(o Week) bool  { return w.Compare(o) > 0 }

func (w Week) String() string {
	return fmt.Sprintf("%04d-W%02d", w.Year, w.Number)
}

func (w Week) MarshalText() ([]byte, error) {
	if w.IsZero() {
		return []byte{}, nil
	}
	return []byte(w.String()), nil
}

func (w *Week) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*w = Week{}
		return nil
	}
	parsed, err := ParseWeek(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
