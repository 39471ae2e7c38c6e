package crawl

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research/pricewatch/internal/model"
)

// fakeFetcher serves an in-memory link graph keyed by normalized URL.
type fakeFetcher struct {
	pages map[string]string
	hits  atomic.Int64
}

func (f *fakeFetcher) Fetch(_ context.Context, targetURL string) model.RawPayload {
	f.hits.Add(1)
	html, ok := f.pages[targetURL]
	if !ok {
		return model.RawPayload{URL: targetURL, Err: "status 404"}
	}
	return model.RawPayload{
		URL:          targetURL,
		StatusCode:   200,
		HTML:         html,
		RenderedText: html,
	}
}

func site() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{
		"https://example.com/": `<html><title>Home</title>
			<a href="/pricing">Pricing</a>
			<a href="/reports">Reports</a>
			<a href="/cart/checkout">Cart</a>
			<a href="https://other.example.org/away">Away</a></html>`,
		"https://example.com/pricing": `<html><title>Pricing</title>
			<a href="/pricing/widgets">Widgets</a>
			<a href="/">Back home</a></html>`,
		"https://example.com/reports": `<html><title>Reports</title></html>`,
		"https://example.com/pricing/widgets": `<html><title>Widgets</title>
			<a href="/pricing/widgets/pro">Pro</a></html>`,
		"https://example.com/pricing/widgets/pro": `<html><title>Pro</title></html>`,
	}}
}

func TestCrawl_BreadthFirstWithDepthLimit(t *testing.T) {
	fetcher := site()
	c := New(fetcher, nil, Options{MaxDepth: 1, MaxPages: 25})

	pages, err := c.Crawl(context.Background(), "https://example.com/")
	require.NoError(t, err)

	var urls []string
	for _, p := range pages {
		urls = append(urls, p.URL)
	}
	// Depth 1 stops before /pricing/widgets.
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/pricing",
		"https://example.com/reports",
	}, urls)
}

func TestCrawl_PageBudget(t *testing.T) {
	fetcher := site()
	c := New(fetcher, nil, Options{MaxDepth: 5, MaxPages: 2})

	pages, err := c.Crawl(context.Background(), "https://example.com/")
	require.NoError(t, err)

	assert.Len(t, pages, 2)
	assert.Equal(t, int64(2), fetcher.hits.Load())
}

func TestCrawl_CycleSafe(t *testing.T) {
	// Home and /pricing link to each other; each is fetched exactly once.
	fetcher := site()
	c := New(fetcher, nil, Options{MaxDepth: 5, MaxPages: 25})

	pages, err := c.Crawl(context.Background(), "https://example.com/")
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, p := range pages {
		seen[p.URL]++
	}
	for u, n := range seen {
		assert.Equal(t, 1, n, u)
	}
	assert.Equal(t, int64(len(fetcher.pages)), fetcher.hits.Load())
}

func TestCrawl_SkipsExcludedAndCrossOrigin(t *testing.T) {
	fetcher := site()
	c := New(fetcher, nil, Options{MaxDepth: 3, MaxPages: 25})

	pages, err := c.Crawl(context.Background(), "https://example.com/")
	require.NoError(t, err)

	for _, p := range pages {
		assert.NotContains(t, p.URL, "/cart/")
		assert.NotContains(t, p.URL, "other.example.org")
	}
}

func TestCrawl_FailedPageDoesNotStopWalk(t *testing.T) {
	fetcher := site()
	delete(fetcher.pages, "https://example.com/pricing")

	c := New(fetcher, nil, Options{MaxDepth: 2, MaxPages: 25})
	pages, err := c.Crawl(context.Background(), "https://example.com/")
	require.NoError(t, err)

	var urls []string
	for _, p := range pages {
		urls = append(urls, p.URL)
	}
	assert.Contains(t, urls, "https://example.com/reports")
	assert.NotContains(t, urls, "https://example.com/pricing")
}

func TestCrawl_CancelledContextReturnsPartial(t *testing.T) {
	fetcher := site()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(fetcher, nil, Options{MaxDepth: 2, MaxPages: 25})
	pages, err := c.Crawl(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestDiscoverLinks(t *testing.T) {
	base, _ := url.Parse("https://example.com/reports/")
	html := `<html>
		<a href="/pricing">abs path</a>
		<a href="q3-update">relative</a>
		<a href="/pricing">duplicate</a>
		<a href="#section">anchor</a>
		<a href="javascript:void(0)">js</a>
		<a href="mailto:team@example.com">mail</a>
		<a href="https://cdn.example.org/asset">other host</a>
		<a href="/pricing?utm=x#frag">tracked</a>
	</html>`

	links := DiscoverLinks(html, base)
	assert.Equal(t, []string{
		"https://example.com/pricing",
		"https://example.com/reports/q3-update",
	}, links)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "https://example.com/"},
		{"https://example.com", "https://example.com/"},
		{"https://example.com/pricing/", "https://example.com/pricing"},
		{"https://example.com/pricing?utm=1#top", "https://example.com/pricing"},
		{"http://example.com/a/b/", "http://example.com/a/b"},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
