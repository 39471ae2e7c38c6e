// Package extract wraps the language-model text-extraction collaborator.
// Extraction is best-effort: an unavailable service or malformed output
// yields zero evidence items, never a crash.
package extract

import (
	"context"

	"github.com/meridian-research/pricewatch/internal/model"
)

// Request describes one extraction call over fetched page content.
type Request struct {
	SourceURL string
	Category  model.Category
	Geography string
	Hints     string
	Content   string
}

// Extractor turns raw page content into candidate evidence items.
type Extractor interface {
	ExtractEvidence(ctx context.Context, req Request) ([]model.ExtractedEvidence, error)
}

// Noop is the null extractor used when no extraction service is
// configured. It always yields zero items.
type Noop struct{}

// NewNoop returns the null extractor.
func NewNoop() Noop { return Noop{} }

// ExtractEvidence returns no items.
func (Noop) ExtractEvidence(_ context.Context, _ Request) ([]model.ExtractedEvidence, error) {
	return nil, nil
}
