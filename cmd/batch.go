package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	batchTarget    int
	batchDryRun    bool
	batchRetry     bool
	batchRatesFile string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Generate a batch of events for the most deficient years",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, batchRatesFile)
		if err != nil {
			return err
		}
		defer env.Close()

		target := batchTarget
		if target <= 0 {
			target = cfg.Batch.TargetCount
		}

		if batchDryRun {
			strategy, err := env.Planner.SelectWork(ctx, target)
			if err != nil {
				return eris.Wrap(err, "select work")
			}
			zap.L().Info("dry run, no generation performed",
				zap.Int("target_years", len(strategy.TargetYears)),
				zap.String("priority", string(strategy.Priority)),
				zap.Float64("estimated_cost_usd", strategy.EstimatedCostUSD),
			)
			return printJSON(strategy)
		}

		if batchRetry {
			result, err := env.Orchestrator.RetryFailed(ctx)
			if err != nil {
				return eris.Wrap(err, "retry failed years")
			}
			return printJSON(result)
		}

		result, err := env.Orchestrator.GenerateDailyBatch(ctx, target)
		if err != nil {
			return eris.Wrap(err, "generate batch")
		}
		return printJSON(result)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchTarget, "target", 0, "number of years to generate for (default from config)")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "print the coverage strategy without generating")
	batchCmd.Flags().BoolVar(&batchRetry, "retry-failed", false, "process the failed-year retry queue instead of planning new work")
	batchCmd.Flags().StringVar(&batchRatesFile, "rates-file", "", "yaml file overriding per-model token pricing")
	rootCmd.AddCommand(batchCmd)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
