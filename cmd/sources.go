package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meridian-research/pricewatch/internal/connector"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect the source catalog",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		configs, err := connector.LoadCatalog(cfg.Sources.CatalogPath)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tKIND\tCATEGORY\tGRADE\tSCHEDULE\tURL")
		for i := range configs {
			c := &configs[i]
			schedule := c.Schedule
			if schedule == "" {
				schedule = "manual"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				c.SourceID, c.Kind, c.Category, connector.GradeFor(c.SourceID), schedule, c.SourceURL)
		}
		return w.Flush()
	},
}

var sourcesHealthLimit int

var sourcesHealthCmd = &cobra.Command{
	Use:   "health [source-id]",
	Short: "Show recent connector health, optionally for one source",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sourceID := ""
		if len(args) == 1 {
			sourceID = args[0]
		}

		rows, err := st.ListConnectorHealth(ctx, sourceID, sourcesHealthLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RECORDED\tSOURCE\tSTATUS\tEXTRACTED\tCREATED\tSKIPPED\tERROR")
		for _, h := range rows {
			errCol := string(h.ErrorType)
			if h.ErrorMessage != "" {
				errCol = fmt.Sprintf("%s: %s", h.ErrorType, h.ErrorMessage)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				h.RecordedAt.Format("2006-01-02 15:04"), h.SourceID, h.Status,
				h.ItemsExtracted, h.ItemsCreated, h.ItemsSkipped, errCol)
		}
		return w.Flush()
	},
}

func init() {
	sourcesHealthCmd.Flags().IntVar(&sourcesHealthLimit, "limit", 20, "max rows to show")
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesHealthCmd)
	rootCmd.AddCommand(sourcesCmd)
}
