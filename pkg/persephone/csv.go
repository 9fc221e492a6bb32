package persephone

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tartarus-sandbox/persephone/pkg/domain"
)

// Default CSV column names.
const (
	DefaultWeekColumn  = "week"
	DefaultValueColumn = "value"
)

// ReadCSV reads a series from CSV with a header row. weekCol and valueCol
// name the columns (empty means the defaults). Weeks accept any form
// domain.ParseWeek does. Rows may come in any order; a repeated week is an
// error.
func ReadCSV(r io.Reader, weekCol, valueCol string) (*Series, error) {
	if weekCol == "" {
		weekCol = DefaultWeekColumn
	}
	if valueCol == "" {
		valueCol = DefaultValueColumn
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty csv", ErrInvalidSeries)
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	wi, vi := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case weekCol:
			wi = i
		case valueCol:
			vi = i
		}
	}
	if wi < 0 || vi < 0 {
		return nil, fmt.Errorf("%w: csv header %v lacks %q or %q", ErrInvalidSeries, header, weekCol, valueCol)
	}

	seen := make(map[domain.Week]int)
	var obs []Observation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		w, err := domain.ParseWeek(strings.TrimSpace(record[wi]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidSeries, line, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[vi]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidSeries, line, err)
		}
		if prev, dup := seen[w]; dup {
			return nil, fmt.Errorf("%w: week %s repeated on lines %d and %d", ErrInvalidSeries, w, prev, line)
		}
		seen[w] = line
		obs = append(obs, Observation{Week: w, Value: v})
	}
	return SeriesFromObservations(obs)
}

// WriteCSV writes s with a week,value header.
func WriteCSV(w io.Writer, s *Series) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{DefaultWeekColumn, DefaultValueColumn}); err != nil {
		return err
	}
	for _, o := range s.Observations() {
		if err := writer.Write([]string{o.Week.String(), strconv.FormatFloat(o.Value, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
