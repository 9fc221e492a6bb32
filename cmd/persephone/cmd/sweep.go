package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tartarus-sandbox/persephone/pkg/hermes"
	"github.com/tartarus-sandbox/persephone/pkg/olympus"
	"github.com/tartarus-sandbox/persephone/pkg/persephone/evaluator"
)

var sweepInput seriesFlags

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run walk-forward backtests for one or more backends",
	Long: `Lay out expanding-window folds over the series and backtest every backend on
each fold concurrently. The first fold trains on --min-train weeks and
validates on --horizon weeks (0 runs to the end); later folds move --step
weeks forward.`,
	Example: `  persephone sweep --series signups --backends prophet,arima,naive --min-train 104 --horizon 4 --step 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		backends, _ := cmd.Flags().GetStringSlice("backends")
		if len(backends) == 0 {
			backends = []string{cfg.Backtest.Backend}
		}
		minTrain, _ := cmd.Flags().GetInt("min-train")
		horizon, _ := cmd.Flags().GetInt("horizon")
		step, _ := cmd.Flags().GetInt("step")
		gate, _ := cmd.Flags().GetString("gate")
		if parallelism, _ := cmd.Flags().GetInt("parallelism"); parallelism > 0 {
			cfg.Backtest.Parallelism = parallelism
		}

		ref, err := sweepInput.ref()
		if err != nil {
			return err
		}
		params, err := sweepInput.backendParams()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		svc, cleanup, err := newService(ctx, cfg, logger, hermes.NewNoopMetrics(), sweepInput.wantsHistory())
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := svc.Sweep(ctx, olympus.SweepRequest{
			Series:   ref,
			Backends: backends,
			Params:   params,
			MinTrain: minTrain,
			Horizon:  horizon,
			Step:     step,
			Gate:     gate,
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
	sweepInput.register(sweepCmd)
	sweepCmd.Flags().StringSlice("backends", nil, "Comma-separated backends (default from backtest.backend)")
	sweepCmd.Flags().Int("min-train", 52, "Training weeks of the first fold")
	sweepCmd.Flags().Int("horizon", 4, "Validation weeks per fold (0 = to the end of the series)")
	sweepCmd.Flags().Int("step", 4, "Weeks between fold cutoffs")
	sweepCmd.Flags().Int("parallelism", 0, "Concurrent backtests (default from backtest.parallelism, 0 = GOMAXPROCS)")
	sweepCmd.Flags().String("gate", "", "CEL acceptance condition applied to every fold")
	rootCmd.AddCommand(sweepCmd)
}
