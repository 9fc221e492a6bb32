package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tartarus-sandbox/persephone/pkg/domain"
	"github.com/tartarus-sandbox/persephone/pkg/hermes"
	"github.com/tartarus-sandbox/persephone/pkg/olympus"
	"github.com/tartarus-sandbox/persephone/pkg/persephone/evaluator"
)

var backtestInput seriesFlags

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Fit a backend before a cutoff week and score it on the weeks after",
	Example: `  persephone backtest --csv signups.csv --cutoff 2024-W10 --backend arima -p order=1,1,0
  persephone backtest --series signups --cutoff 2024-W10 --gate 'mape < 0.15'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		cutoffFlag, _ := cmd.Flags().GetString("cutoff")
		cutoff, err := domain.ParseWeek(cutoffFlag)
		if err != nil {
			return fmt.Errorf("--cutoff: %w", err)
		}
		backend, _ := cmd.Flags().GetString("backend")
		if backend == "" {
			backend = cfg.Backtest.Backend
		}
		gate, _ := cmd.Flags().GetString("gate")

		ref, err := backtestInput.ref()
		if err != nil {
			return err
		}
		params, err := backtestInput.backendParams()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		svc, cleanup, err := newService(ctx, cfg, logger, hermes.NewNoopMetrics(), backtestInput.wantsHistory())
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := svc.Backtest(ctx, olympus.BacktestRequest{
			Series:  ref,
			Cutoff:  cutoff,
			Backend: backend,
			Params:  params,
			Gate:    gate,
		})
		if report != nil {
			if perr := printReport(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
		}
		if errors.Is(err, evaluator.ErrGateFailed) {
			return fmt.Errorf("report %s: %w", report.ID, err)
		}
		return err
	},
}

func init() {
	backtestInput.register(backtestCmd)
	backtestCmd.Flags().String("cutoff", "", "First validation week (e.g. 2024-W10)")
	backtestCmd.Flags().String("backend", "", "Forecasting backend (default from backtest.backend)")
	backtestCmd.Flags().String("gate", "", "CEL acceptance condition, e.g. 'mape < 0.15' (default from backtest.gate)")
	backtestCmd.MarkFlagRequired("cutoff")
	rootCmd.AddCommand(backtestCmd)
}
