package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-research/pricewatch/internal/scheduler"
)

var scheduleOnce bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run sources on their cron schedules",
	Long:  "Groups sources by cron expression and runs each group's sources sequentially with a stagger delay. With --once, runs only the groups due right now and exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		connectors, err := loadConnectors()
		if err != nil {
			return err
		}

		orch := buildOrchestrator(st)
		sched, err := scheduler.New(orch, connectors,
			time.Duration(cfg.Scheduler.StaggerSecs)*time.Second)
		if err != nil {
			return err
		}

		if len(sched.Groups()) == 0 {
			return eris.New("no sources carry a schedule; run `pricewatch ingest` instead")
		}

		if scheduleOnce {
			runs := sched.RunDue(ctx, time.Now())
			fmt.Printf("executed %d run(s)\n", len(runs))
			return nil
		}

		err = sched.Start(ctx)
		if eris.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "run due groups once and exit")
	rootCmd.AddCommand(scheduleCmd)
}
