package connector

import (
	"context"
	"time"

	"github.com/meridian-research/pricewatch/internal/crawl"
	"github.com/meridian-research/pricewatch/internal/extract"
	"github.com/meridian-research/pricewatch/internal/model"
)

// pageConnector handles single-page sources: reports and listings.
type pageConnector struct {
	cfg       *Config
	fetcher   crawl.PageFetcher
	extractor extract.Extractor
}

func newPageConnector(cfg *Config, deps Deps) *pageConnector {
	return &pageConnector{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
	}
}

func (c *pageConnector) Config() *Config { return c.cfg }

func (c *pageConnector) Fetch(ctx context.Context) model.RawPayload {
	return c.fetcher.Fetch(ctx, c.cfg.SourceURL)
}

func (c *pageConnector) Extract(ctx context.Context, payload model.RawPayload) ([]model.ExtractedEvidence, error) {
	if payload.RenderedText == "" {
		return nil, nil
	}
	return c.extractor.ExtractEvidence(ctx, extract.Request{
		SourceURL: payload.URL,
		Category:  c.cfg.Category,
		Geography: c.cfg.Geography,
		Hints:     c.cfg.ExtractionHints,
		Content:   payload.RenderedText,
	})
}

func (c *pageConnector) Normalize(item model.ExtractedEvidence) model.NormalizedEvidence {
	return normalize(c.cfg, item, time.Now().UTC())
}
