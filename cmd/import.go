package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-research/pricewatch/internal/connector"
	"github.com/meridian-research/pricewatch/internal/model"
)

// bulkImporter is implemented by stores with a fast batch path.
type bulkImporter interface {
	BulkImportEvidence(ctx context.Context, records []model.EvidenceRecord) (int64, error)
}

var importFile string

// importCmd loads historical evidence from a CSV export. Expected columns:
// source_id, source_url, item_name, category, geography, metric, value,
// unit, captured_at (YYYY-MM-DD). A header row is required.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import historical evidence records from CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(importFile)
		if err != nil {
			return eris.Wrap(err, "open import file")
		}
		defer f.Close()

		records, err := parseImportCSV(f.Name(), f)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return eris.New("import file contains no usable rows")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if bulk, ok := st.(bulkImporter); ok {
			n, err := bulk.BulkImportEvidence(ctx, records)
			if err != nil {
				return eris.Wrap(err, "bulk import")
			}
			fmt.Printf("imported %d record(s)\n", n)
			return nil
		}

		imported := 0
		for _, rec := range records {
			if existing, err := st.FindEvidenceByDedupKey(ctx, rec.DedupKey()); err != nil {
				return eris.Wrap(err, "dedup lookup")
			} else if existing != nil {
				continue
			}
			if _, err := st.CreateEvidenceRecord(ctx, rec); err != nil {
				return eris.Wrap(err, "insert record")
			}
			imported++
		}
		fmt.Printf("imported %d record(s)\n", imported)
		return nil
	},
}

func parseImportCSV(name string, f *os.File) ([]model.EvidenceRecord, error) {
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "parse %s", name)
	}

	now := time.Now().UTC()
	var records []model.EvidenceRecord
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if len(row) < 9 {
			zap.L().Warn("import row too short, skipping", zap.Int("row", i+1))
			continue
		}

		category := model.Category(strings.TrimSpace(row[3]))
		if !category.Valid() {
			zap.L().Warn("import row has unknown category, skipping",
				zap.Int("row", i+1), zap.String("category", row[3]))
			continue
		}

		capturedAt, err := time.Parse("2006-01-02", strings.TrimSpace(row[8]))
		if err != nil {
			zap.L().Warn("import row has bad captured_at, skipping",
				zap.Int("row", i+1), zap.String("captured_at", row[8]))
			continue
		}

		var value *float64
		if v, err := strconv.ParseFloat(strings.TrimSpace(row[6]), 64); err == nil {
			value = &v
		}

		sourceID := strings.TrimSpace(row[0])
		grade := connector.GradeFor(sourceID)
		records = append(records, model.EvidenceRecord{
			SourceID:  sourceID,
			SourceURL: strings.TrimSpace(row[1]),
			ItemName:  strings.TrimSpace(row[2]),
			Category:  category,
			Geography: strings.TrimSpace(row[4]),
			Evidence: model.NormalizedEvidence{
				Metric:     strings.TrimSpace(row[5]),
				Value:      value,
				Unit:       strings.TrimSpace(row[7]),
				Confidence: connector.Confidence(grade, &capturedAt, now),
				Grade:      grade,
				Summary:    strings.TrimSpace(row[2]),
				Tags:       []string{"import", sourceID},
			},
			CapturedAt: capturedAt,
		})
	}
	return records, nil
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "CSV file to import (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
