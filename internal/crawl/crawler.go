// Package crawl implements breadth-first, depth- and budget-limited
// traversal of a single origin with cycle-safe link discovery.
package crawl

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-research/pricewatch/internal/fetch"
	"github.com/meridian-research/pricewatch/internal/model"
)

// PageFetcher retrieves one URL. fetch.Fetcher satisfies this.
type PageFetcher interface {
	Fetch(ctx context.Context, targetURL string) model.RawPayload
}

// Options configures a crawl.
type Options struct {
	MaxDepth int
	MaxPages int
	Delay    time.Duration
}

// Crawler walks same-origin pages from a start URL.
type Crawler struct {
	fetcher PageFetcher
	matcher *PathMatcher
	opts    Options
}

// New creates a Crawler. A nil matcher gets the default exclude patterns.
func New(fetcher PageFetcher, matcher *PathMatcher, opts Options) *Crawler {
	if matcher == nil {
		matcher = NewPathMatcher(nil)
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 2
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 25
	}
	return &Crawler{fetcher: fetcher, matcher: matcher, opts: opts}
}

type crawlItem struct {
	url   string
	depth int
}

// Crawl fetches pages breadth-first starting at startURL. Pages are fetched
// strictly in FIFO order with the configured delay between requests. The
// visited set makes the walk cycle-safe; the page budget bounds it
// regardless of page-graph size.
func (c *Crawler) Crawl(ctx context.Context, startURL string) ([]model.PageContent, error) {
	start, err := NormalizeURL(startURL)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: parse start url")
	}
	base, err := url.Parse(start)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: parse base url")
	}

	visited := make(map[string]bool)
	queue := []crawlItem{{url: start, depth: 0}}

	var pages []model.PageContent
	fetched := 0

	for len(queue) > 0 && fetched < c.opts.MaxPages {
		if ctx.Err() != nil {
			return pages, nil
		}

		item := queue[0]
		queue = queue[1:]

		if visited[item.url] {
			continue
		}
		visited[item.url] = true

		if fetched > 0 && c.opts.Delay > 0 {
			timer := time.NewTimer(c.opts.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return pages, nil
			case <-timer.C:
			}
		}

		payload := c.fetcher.Fetch(ctx, item.url)
		fetched++

		if payload.Failed() {
			zap.L().Debug("crawl: page fetch failed",
				zap.String("url", item.url),
				zap.String("error", payload.Err),
			)
			continue
		}

		pages = append(pages, model.PageContent{
			URL:        payload.URL,
			Title:      pageTitle(payload),
			Text:       payload.RenderedText,
			StatusCode: payload.StatusCode,
		})

		if item.depth >= c.opts.MaxDepth {
			continue
		}

		for _, link := range DiscoverLinks(payload.HTML, base) {
			if visited[link] || c.matcher.IsExcluded(link) {
				continue
			}
			queue = append(queue, crawlItem{url: link, depth: item.depth + 1})
		}
	}

	return pages, nil
}

func pageTitle(p model.RawPayload) string {
	if p.HTML == "" {
		return ""
	}
	return fetch.ExtractTitle(p.HTML)
}

// DiscoverLinks extracts normalized same-origin links from page markup.
func DiscoverLinks(html string, base *url.URL) []string {
	var links []string
	seen := make(map[string]bool)

	idx := 0
	for {
		pos := strings.Index(html[idx:], "href=\"")
		if pos == -1 {
			break
		}
		idx += pos + 6

		end := strings.Index(html[idx:], "\"")
		if end == -1 {
			break
		}

		href := html[idx : idx+end]
		idx += end + 1

		// Skip anchors, javascript, mailto.
		if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			continue
		}

		resolved, err := url.Parse(href)
		if err != nil {
			continue
		}
		absolute := base.ResolveReference(resolved)

		// Only keep same-origin links.
		if absolute.Host != base.Host {
			continue
		}

		normalized, err := NormalizeURL(absolute.String())
		if err != nil {
			continue
		}
		if !seen[normalized] {
			seen[normalized] = true
			links = append(links, normalized)
		}
	}

	return links
}

// NormalizeURL canonicalizes a URL for dedup: default scheme, stripped
// fragment and query, no trailing slash (except the bare root path).
func NormalizeURL(raw string) (string, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.RawQuery = ""
	if u.Path == "" {
		u.Path = "/"
	}
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), nil
}
