package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// RobotsCache caches parsed robots.txt per origin. It is read-shared across
// concurrent workers; redundant population is idempotent (last-writer-wins).
type RobotsCache struct {
	mu     sync.RWMutex
	groups map[string]*robotstxt.RobotsData
	http   *http.Client
}

// NewRobotsCache creates an empty per-origin robots cache.
func NewRobotsCache() *RobotsCache {
	return &RobotsCache{
		groups: make(map[string]*robotstxt.RobotsData),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Allowed reports whether the given user agent may fetch rawURL according
// to the target origin's robots directives. Unreachable or unparsable
// robots.txt allows everything.
func (c *RobotsCache) Allowed(ctx context.Context, rawURL, userAgent string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	origin := u.Scheme + "://" + u.Host

	c.mu.RLock()
	data, ok := c.groups[origin]
	c.mu.RUnlock()

	if !ok {
		data = c.load(ctx, origin)
		c.mu.Lock()
		c.groups[origin] = data
		c.mu.Unlock()
	}

	if data == nil {
		return true
	}
	return data.TestAgent(u.Path, userAgent)
}

// load fetches and parses robots.txt for an origin. Returns nil (allow all)
// when the file cannot be retrieved.
func (c *RobotsCache) load(ctx context.Context, origin string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		zap.L().Debug("fetch: robots.txt unreachable, allowing all",
			zap.String("origin", origin),
			zap.Error(err),
		)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		zap.L().Debug("fetch: robots.txt unparsable, allowing all",
			zap.String("origin", origin),
			zap.Error(err),
		)
		return nil
	}
	return data
}
