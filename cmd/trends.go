package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-research/pricewatch/internal/analytics"
)

var (
	trendsMetric string
	trendsSave   bool
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Compute trend snapshots for a metric",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		engine := analytics.NewEngine(st, analytics.Options{
			WindowDays:       cfg.Trends.WindowDays,
			AnomalyThreshold: cfg.Trends.AnomalyThreshold,
		})

		now := time.Now().UTC()
		snapshots, err := engine.ComputeMetric(ctx, trendsMetric, now)
		if err != nil {
			return eris.Wrap(err, "compute trends")
		}
		if len(snapshots) == 0 {
			return eris.Errorf("no evidence for metric: %s", trendsMetric)
		}

		if trendsSave {
			for _, snap := range snapshots {
				if err := st.InsertTrendSnapshot(ctx, snap); err != nil {
					return eris.Wrap(err, "persist snapshot")
				}
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshots)
	},
}

func init() {
	trendsCmd.Flags().StringVar(&trendsMetric, "metric", "", "metric name (required)")
	trendsCmd.Flags().BoolVar(&trendsSave, "save", false, "persist computed snapshots")
	_ = trendsCmd.MarkFlagRequired("metric")
	rootCmd.AddCommand(trendsCmd)
}
