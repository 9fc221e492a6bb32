package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tartarus-sandbox/persephone/pkg/domain"
	"github.com/tartarus-sandbox/persephone/pkg/olympus"
	"github.com/tartarus-sandbox/persephone/pkg/persephone"
)

// seriesFlags selects the input series: a CSV file or a stored series.
type seriesFlags struct {
	csv      string
	name     string
	from     string
	to       string
	weekCol  string
	valueCol string
	params   []string
}

func (f *seriesFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.csv, "csv", "", "Read the series from a CSV file")
	cmd.Flags().StringVar(&f.name, "series", "", "Load the named series from the history store")
	cmd.Flags().StringVar(&f.from, "from", "", "First week to include (e.g. 2024-W01)")
	cmd.Flags().StringVar(&f.to, "to", "", "Last week to include")
	cmd.Flags().StringVar(&f.weekCol, "week-column", persephone.DefaultWeekColumn, "CSV column holding the week")
	cmd.Flags().StringVar(&f.valueCol, "value-column", persephone.DefaultValueColumn, "CSV column holding the value")
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "Backend parameter key=value (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("csv", "series")
	cmd.MarkFlagsOneRequired("csv", "series")
}

func (f *seriesFlags) ref() (olympus.SeriesRef, error) {
	from, err := parseOptionalWeek(f.from)
	if err != nil {
		return olympus.SeriesRef{}, fmt.Errorf("--from: %w", err)
	}
	to, err := parseOptionalWeek(f.to)
	if err != nil {
		return olympus.SeriesRef{}, fmt.Errorf("--to: %w", err)
	}
	ref := olympus.SeriesRef{Name: f.name, From: from, To: to}

	if f.csv != "" {
		file, err := os.Open(f.csv)
		if err != nil {
			return olympus.SeriesRef{}, err
		}
		defer file.Close()

		series, err := persephone.ReadCSV(file, f.weekCol, f.valueCol)
		if err != nil {
			return olympus.SeriesRef{}, fmt.Errorf("%s: %w", f.csv, err)
		}
		ref.Data = series.Observations()
		ref.Label = strings.TrimSuffix(filepath.Base(f.csv), filepath.Ext(f.csv))
	}
	return ref, nil
}

func (f *seriesFlags) backendParams() (persephone.Params, error) {
	return persephone.ParseParams(f.params)
}

// wantsHistory reports whether the command reads from the history store.
func (f *seriesFlags) wantsHistory() bool {
	return f.name != ""
}

func parseOptionalWeek(s string) (domain.Week, error) {
	if s == "" {
		return domain.Week{}, nil
	}
	return domain.ParseWeek(s)
}
