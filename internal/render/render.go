// Package render provides the headless-rendering collaborator used by the
// fetch layer for JavaScript-heavy pages. Absence of a configured service
// degrades silently to the plain fetch path.
package render

import "context"

// Result holds rendered page content.
type Result struct {
	Title   string
	Content string
}

// Renderer fetches a URL through a rendering service and returns its
// readable content.
type Renderer interface {
	Render(ctx context.Context, targetURL string) (*Result, error)
}

// Noop is the null renderer used when no rendering service is configured.
// It always reports empty content so callers fall back to plain fetch.
type Noop struct{}

// NewNoop returns the null renderer.
func NewNoop() Noop { return Noop{} }

// Render returns an empty result.
func (Noop) Render(_ context.Context, _ string) (*Result, error) {
	return &Result{}, nil
}
