package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/tartarus-sandbox/persephone/pkg/olympus"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// outputFormat resolves --output, defaulting to a table on a terminal and
// JSON everywhere else.
func outputFormat(w io.Writer) (string, error) {
	switch output {
	case formatTable, formatJSON, formatYAML:
		return output, nil
	case "":
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return formatTable, nil
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", output)
	}
}

// encode writes v as JSON or YAML. The YAML form goes through JSON so that
// both share field names and null predictions.
func encode(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if format == formatJSON {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func printReport(w io.Writer, report *olympus.Report) error {
	format, err := outputFormat(w)
	if err != nil {
		return err
	}
	if format != formatTable {
		return encode(w, format, report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "Report:\t%s\n", report.ID)
	fmt.Fprintf(tw, "Series:\t%s\n", report.Series)
	fmt.Fprintf(tw, "Created:\t%s\n", report.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if report.Gate != "" {
		verdict := "failed"
		if report.Passed != nil && *report.Passed {
			verdict = "passed"
		}
		fmt.Fprintf(tw, "Gate:\t%s (%s)\n", report.Gate, verdict)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "BACKEND\tCUTOFF\tTRAIN\tVALIDATION\tMAPE\tMSE\tMAE\tRMSE")
	for _, r := range report.Results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.4f\t%.4f\t%.4f\t%.4f\n",
			r.Backend, r.Cutoff, r.TrainSize, r.ValidationSize,
			r.Metrics.MAPE, r.Metrics.MSE, r.Metrics.MAE, r.Metrics.RMSE)
	}

	if len(report.Results) == 1 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "WEEK\tACTUAL\tPREDICTED\tSET")
		for _, row := range report.Results[0].Rows {
			predicted := "-"
			if !row.Missing() {
				predicted = strconv.FormatFloat(row.Predicted, 'f', 2, 64)
			}
			set := "train"
			if row.Validation {
				set = "validation"
			}
			fmt.Fprintf(tw, "%s\t%g\t%s\t%s\n", row.Week, row.Actual, predicted, set)
		}
	}
	return tw.Flush()
}
