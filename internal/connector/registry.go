package connector

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/meridian-research/pricewatch/internal/crawl"
	"github.com/meridian-research/pricewatch/internal/extract"
)

// Deps carries the shared collaborators connectors are built with.
type Deps struct {
	Fetcher       crawl.PageFetcher
	Extractor     extract.Extractor
	CrawlExcludes []string
	FTPTimeout    time.Duration
}

// factory builds one connector kind.
type factory func(cfg *Config, deps Deps) Connector

// registry maps source kinds to constructors. Dispatch over connector
// kinds is a closed lookup, not inheritance.
var registry = map[Kind]factory{
	KindCatalog: func(cfg *Config, deps Deps) Connector {
		return newCatalogConnector(cfg, deps)
	},
	KindReport: func(cfg *Config, deps Deps) Connector {
		return newPageConnector(cfg, deps)
	},
	KindListing: func(cfg *Config, deps Deps) Connector {
		return newPageConnector(cfg, deps)
	},
	KindXLSXSheet: func(cfg *Config, deps Deps) Connector {
		return newXLSXConnector(cfg, deps)
	},
	KindFTPFeed: func(cfg *Config, deps Deps) Connector {
		return newFTPFeedConnector(cfg, deps)
	},
}

// Kinds returns the registered connector kinds.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}

// New builds a connector for the given source configuration.
func New(cfg *Config, deps Deps) (Connector, error) {
	f, ok := registry[cfg.Kind]
	if !ok {
		return nil, eris.Errorf("connector: unknown kind %q for source %s", cfg.Kind, cfg.SourceID)
	}
	return f(cfg, deps), nil
}

// Build constructs connectors for every catalog entry. Unknown kinds fail
// the whole build; a catalog typo should not silently drop a source.
func Build(configs []Config, deps Deps) ([]Connector, error) {
	out := make([]Connector, 0, len(configs))
	for i := range configs {
		c, err := New(&configs[i], deps)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
