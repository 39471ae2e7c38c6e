package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-research/pricewatch/internal/connector"
	"github.com/meridian-research/pricewatch/internal/model"
)

var (
	ingestSource string
	ingestActor  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run ingestion for all configured sources, or one with --source",
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
		if ingestSource != "" {
			connectors = filterBySource(connectors, ingestSource)
			if len(connectors) == 0 {
				return eris.Errorf("unknown source: %s", ingestSource)
			}
		}

		orch := buildOrchestrator(st)
		run, err := orch.Run(ctx, connectors, model.TriggerManual, ingestActor)
		if err != nil {
			return eris.Wrap(err, "ingestion run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func filterBySource(connectors []connector.Connector, sourceID string) []connector.Connector {
	var out []connector.Connector
	for _, conn := range connectors {
		if conn.Config().SourceID == sourceID {
			out = append(out, conn)
		}
	}
	return out
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "run only this source ID")
	ingestCmd.Flags().StringVar(&ingestActor, "actor", "cli", "actor recorded on the run")
	rootCmd.AddCommand(ingestCmd)
}
