package connector

import (
	"context"
	"time"

	"github.com/meridian-research/pricewatch/internal/crawl"
	"github.com/meridian-research/pricewatch/internal/extract"
	"github.com/meridian-research/pricewatch/internal/model"
)

// catalogConnector walks a multi-page catalog site and extracts pricing
// evidence from every page it collects.
type catalogConnector struct {
	cfg       *Config
	crawler   *crawl.Crawler
	extractor extract.Extractor
}

func newCatalogConnector(cfg *Config, deps Deps) *catalogConnector {
	opts := crawl.Options{
		MaxDepth: cfg.MaxDepth,
		MaxPages: cfg.MaxPages,
		Delay:    cfg.Delay(),
	}
	return &catalogConnector{
		cfg:       cfg,
		crawler:   crawl.New(deps.Fetcher, crawl.NewPathMatcher(deps.CrawlExcludes), opts),
		extractor: deps.Extractor,
	}
}

func (c *catalogConnector) Config() *Config { return c.cfg }

func (c *catalogConnector) Fetch(ctx context.Context) model.RawPayload {
	payload := model.RawPayload{
		URL:       c.cfg.SourceURL,
		FetchedAt: time.Now().UTC(),
	}

	pages, err := c.crawler.Crawl(ctx, c.cfg.SourceURL)
	if err != nil {
		payload.Err = "crawl: " + err.Error()
		return payload
	}
	if len(pages) == 0 {
		payload.Err = "crawl: no pages collected"
		return payload
	}

	payload.Pages = pages
	payload.StatusCode = pages[0].StatusCode
	return payload
}

func (c *catalogConnector) Extract(ctx context.Context, payload model.RawPayload) ([]model.ExtractedEvidence, error) {
	var items []model.ExtractedEvidence
	for _, page := range payload.Pages {
		if page.Text == "" {
			continue
		}
		pageItems, err := c.extractor.ExtractEvidence(ctx, extract.Request{
			SourceURL: page.URL,
			Category:  c.cfg.Category,
			Geography: c.cfg.Geography,
			Hints:     c.cfg.ExtractionHints,
			Content:   page.Text,
		})
		if err != nil {
			return items, err
		}
		items = append(items, pageItems...)
	}
	return items, nil
}

func (c *catalogConnector) Normalize(item model.ExtractedEvidence) model.NormalizedEvidence {
	return normalize(c.cfg, item, time.Now().UTC())
}
