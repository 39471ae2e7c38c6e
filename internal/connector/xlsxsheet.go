package connector

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/meridian-research/pricewatch/internal/model"
)

// xlsxConnector downloads a price-sheet workbook and reads one row per
// item. No LLM involved; the sheet layout is the contract.
type xlsxConnector struct {
	cfg  *Config
	http *http.Client
}

func newXLSXConnector(cfg *Config, _ Deps) *xlsxConnector {
	return &xlsxConnector{
		cfg: cfg,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *xlsxConnector) Config() *Config { return c.cfg }

func (c *xlsxConnector) Fetch(ctx context.Context) model.RawPayload {
	payload := model.RawPayload{
		URL:       c.cfg.SourceURL,
		FetchedAt: time.Now().UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SourceURL, nil)
	if err != nil {
		payload.Err = "create request: " + err.Error()
		return payload
	}

	resp, err := c.http.Do(req)
	if err != nil {
		payload.Err = "download sheet: " + err.Error()
		return payload
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload.Err = "unexpected status " + resp.Status
		return payload
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32*1024*1024))
	if err != nil {
		payload.Err = "read sheet: " + err.Error()
		return payload
	}

	payload.StatusCode = resp.StatusCode
	payload.Data = data
	return payload
}

// Extract reads rows as (item, price, date?, region?) and turns each into
// a candidate evidence item.
func (c *xlsxConnector) Extract(_ context.Context, payload model.RawPayload) ([]model.ExtractedEvidence, error) {
	f, err := xlsx.OpenBinary(payload.Data)
	if err != nil {
		return nil, err
	}

	sheet, err := c.sheet(f)
	if err != nil {
		return nil, err
	}

	var items []model.ExtractedEvidence
	for i, row := range sheet.Rows {
		if i < c.cfg.SkipRows {
			continue
		}
		cells := rowToStrings(row)
		item, ok := c.rowToEvidence(cells)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *xlsxConnector) sheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if c.cfg.SheetName != "" {
		sheet, ok := f.Sheet[c.cfg.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", c.cfg.SheetName)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

// rowToEvidence maps one sheet row to a candidate item. Expected columns:
// item name, price text, optional published date, optional region.
func (c *xlsxConnector) rowToEvidence(cells []string) (model.ExtractedEvidence, bool) {
	if len(cells) < 2 {
		return model.ExtractedEvidence{}, false
	}
	name := strings.TrimSpace(cells[0])
	price := strings.TrimSpace(cells[1])
	if name == "" || price == "" {
		return model.ExtractedEvidence{}, false
	}

	item := model.ExtractedEvidence{
		Title:     name,
		RawText:   name + ": " + price,
		Category:  c.cfg.Category,
		Geography: c.cfg.Geography,
		SourceURL: c.cfg.SourceURL,
	}
	if len(cells) > 2 {
		if ts, err := time.Parse("2006-01-02", strings.TrimSpace(cells[2])); err == nil {
			item.PublishedDate = &ts
		}
	}
	if len(cells) > 3 && strings.TrimSpace(cells[3]) != "" {
		item.Geography = strings.TrimSpace(cells[3])
	}
	return item, true
}

func (c *xlsxConnector) Normalize(item model.ExtractedEvidence) model.NormalizedEvidence {
	return normalize(c.cfg, item, time.Now().UTC())
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
