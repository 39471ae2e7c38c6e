package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/meridian-research/pricewatch/internal/analytics"
	"github.com/meridian-research/pricewatch/internal/connector"
	"github.com/meridian-research/pricewatch/internal/extract"
	"github.com/meridian-research/pricewatch/internal/fetch"
	"github.com/meridian-research/pricewatch/internal/ingest"
	"github.com/meridian-research/pricewatch/internal/render"
	"github.com/meridian-research/pricewatch/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "pricewatch.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// buildConnectorDeps wires the fetch, render, and extract collaborators.
// Missing API keys degrade to null objects rather than failing startup.
func buildConnectorDeps() connector.Deps {
	var renderer render.Renderer = render.Noop{}
	if cfg.Render.Key != "" {
		renderer = render.NewClient(cfg.Render.Key, render.WithBaseURL(cfg.Render.BaseURL))
	}

	fetcher := fetch.New(fetch.Options{
		Timeout:        time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:     cfg.Fetch.MaxRetries,
		BackoffBase:    time.Duration(cfg.Fetch.BackoffBaseMS) * time.Millisecond,
		RespectRobots:  cfg.Fetch.RespectRobots,
		RequestsPerSec: cfg.Fetch.RequestsPerSec,
	}, renderer)

	var extractor extract.Extractor = extract.Noop{}
	if cfg.Anthropic.Key != "" {
		extractor = extract.NewClient(cfg.Anthropic.Key, extract.Options{
			Model:     cfg.Anthropic.Model,
			MaxTokens: int64(cfg.Anthropic.MaxTokens),
		})
	}

	return connector.Deps{
		Fetcher:       fetcher,
		Extractor:     extractor,
		CrawlExcludes: cfg.Crawl.ExcludePaths,
	}
}

// loadConnectors builds all connectors from the source catalog.
func loadConnectors() ([]connector.Connector, error) {
	configs, err := connector.LoadCatalog(cfg.Sources.CatalogPath)
	if err != nil {
		return nil, eris.Wrap(err, "load source catalog")
	}
	return connector.Build(configs, buildConnectorDeps())
}

// buildOrchestrator assembles the full pipeline over an opened store.
func buildOrchestrator(st store.Store) *ingest.Orchestrator {
	opts := analytics.Options{
		WindowDays:       cfg.Trends.WindowDays,
		AnomalyThreshold: cfg.Trends.AnomalyThreshold,
	}
	return ingest.New(st,
		analytics.NewDetector(st),
		analytics.NewEngine(st, opts),
		cfg.Ingest.MaxConcurrentSources,
	)
}
