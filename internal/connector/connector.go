// Package connector defines the source-adapter contract and the concrete
// connectors that turn external pricing sources into normalized evidence.
package connector

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/meridian-research/pricewatch/internal/model"
)

// Kind selects a connector implementation for a source.
type Kind string

const (
	KindCatalog   Kind = "catalog"
	KindReport    Kind = "report"
	KindListing   Kind = "listing"
	KindXLSXSheet Kind = "xlsxsheet"
	KindFTPFeed   Kind = "ftpfeed"
)

// Config is the per-source connector configuration. It is created once per
// source and mutated only by the orchestrator's post-run bookkeeping.
type Config struct {
	SourceID   string `yaml:"source_id"`
	SourceName string `yaml:"source_name"`
	SourceURL  string `yaml:"source_url"`
	Kind       Kind   `yaml:"kind"`

	Category  model.Category `yaml:"category"`
	Geography string         `yaml:"geography,omitempty"`

	RequestDelayMS  int    `yaml:"request_delay_ms,omitempty"`
	MaxDepth        int    `yaml:"max_depth,omitempty"`
	MaxPages        int    `yaml:"max_pages,omitempty"`
	ExtractionHints string `yaml:"extraction_hints,omitempty"`
	Schedule        string `yaml:"schedule,omitempty"`

	// XLSX sheet layout.
	SheetName string `yaml:"sheet_name,omitempty"`
	SkipRows  int    `yaml:"skip_rows,omitempty"`

	LastSuccessfulFetch *time.Time `yaml:"last_successful_fetch,omitempty"`
}

// Delay returns the configured per-request delay.
func (c Config) Delay() time.Duration {
	if c.RequestDelayMS <= 0 {
		return 750 * time.Millisecond
	}
	return time.Duration(c.RequestDelayMS) * time.Millisecond
}

// Connector is the closed interface every source adapter implements.
// Fetch never returns a Go error; failures travel inside the RawPayload.
type Connector interface {
	Config() *Config
	Fetch(ctx context.Context) model.RawPayload
	Extract(ctx context.Context, payload model.RawPayload) ([]model.ExtractedEvidence, error)
	Normalize(item model.ExtractedEvidence) model.NormalizedEvidence
}

// catalogFile is the on-disk shape of sources.yaml.
type catalogFile struct {
	Sources []Config `yaml:"sources"`
}

// LoadCatalog reads the source catalog from a YAML file.
func LoadCatalog(path string) ([]Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "connector: read catalog %s", path)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrap(err, "connector: parse catalog")
	}

	for i := range file.Sources {
		c := &file.Sources[i]
		if c.SourceID == "" || c.SourceURL == "" {
			return nil, eris.Errorf("connector: catalog entry %d missing source_id or source_url", i)
		}
		if c.Kind == "" {
			c.Kind = KindReport
		}
		if c.Category == "" {
			c.Category = model.CategoryReport
		}
	}

	return file.Sources, nil
}
