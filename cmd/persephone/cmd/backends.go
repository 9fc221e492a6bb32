package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tartarus-sandbox/persephone/pkg/hermes"
	"github.com/tartarus-sandbox/persephone/pkg/persephone"
)

var backendDescriptions = map[string]string{
	persephone.ProphetName:   "piecewise-linear trend, changepoints and yearly Fourier seasonality",
	persephone.ARIMAName:     "ARIMA(p,d,q) estimated by Hannan-Rissanen regression",
	persephone.SmoothingName: "simple exponential smoothing",
	persephone.MeanName:      "training mean",
	persephone.NaiveName:     "last observed value",
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the registered forecasting backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		names := persephone.Backends()
		if format != formatTable {
			return encode(cmd.OutOrStdout(), format, names)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tDESCRIPTION")
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%s\n", name, backendDescriptions[name])
		}
		return w.Flush()
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect archived reports",
}

var reportShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show an archived backtest report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		svc, cleanup, err := newService(cmd.Context(), cfg, logger, hermes.NewNoopMetrics(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := svc.LoadReport(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printReport(cmd.OutOrStdout(), report)
	},
}

func init() {
	reportCmd.AddCommand(reportShowCmd)
	rootCmd.AddCommand(backendsCmd, reportCmd)
}
