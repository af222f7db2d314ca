package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/timewise-games/content-cli/internal/coverage"
	"github.com/timewise-games/content-cli/internal/monitoring"
)

var (
	coveragePlanCount int
	coverageAlert     bool
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Inspect event-pool coverage",
}

var coveragePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which years the next batch would target",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		count := coveragePlanCount
		if count <= 0 {
			count = cfg.Batch.TargetCount
		}

		planner := coverage.NewPlanner(st, cfg.Coverage.MinYear, cfg.Coverage.MaxYear)
		strategy, err := planner.SelectWork(ctx, count)
		if err != nil {
			return eris.Wrap(err, "select work")
		}
		return printJSON(strategy)
	},
}

var coverageStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pool health and evaluate alert thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx)
		if err != nil {
			return err
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		for _, alert := range alerts {
			zap.L().Warn("threshold breached",
				zap.String("type", string(alert.Type)),
				zap.String("severity", alert.Severity),
				zap.String("message", alert.Message),
			)
		}
		if coverageAlert && len(alerts) > 0 {
			sent := alerter.SendAlerts(ctx, alerts)
			zap.L().Info("alerts dispatched", zap.Int("sent", sent), zap.Int("total", len(alerts)))
		}

		return printJSON(struct {
			Snapshot *monitoring.PoolSnapshot `json:"snapshot"`
			Alerts   []monitoring.Alert       `json:"alerts,omitempty"`
		}{snap, alerts})
	},
}

func init() {
	coveragePlanCmd.Flags().IntVar(&coveragePlanCount, "count", 0, "number of years to plan for (default from config)")
	coverageStatusCmd.Flags().BoolVar(&coverageAlert, "alert", false, "send webhook alerts for breached thresholds")
	coverageCmd.AddCommand(coveragePlanCmd)
	coverageCmd.AddCommand(coverageStatusCmd)
	rootCmd.AddCommand(coverageCmd)
}
