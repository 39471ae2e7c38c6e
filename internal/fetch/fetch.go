// Package fetch implements the resilient fetch layer: user-agent rotation,
// robots compliance, timeouts, retry with exponential backoff, block
// detection, and an optional rendering fallback for JavaScript-heavy pages.
package fetch

import (
	"context"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridian-research/pricewatch/internal/model"
	"github.com/meridian-research/pricewatch/internal/render"
)

// userAgents is the fixed identity pool rotated across requests.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (compatible; PriceWatchBot/1.0)",
}

// minRenderedLength is the minimum rendered content length considered
// sufficient to prefer the rendered result over the plain fetch path.
const minRenderedLength = 200

// Options configures the Fetcher.
type Options struct {
	Timeout        time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	RespectRobots  bool
	RequestsPerSec float64
}

// Fetcher performs resilient HTTP fetches. All failure information is
// encoded in the returned RawPayload; Fetch never returns a Go error.
type Fetcher struct {
	client   *http.Client
	opts     Options
	robots   *RobotsCache
	renderer render.Renderer
	uaIndex  atomic.Uint64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Fetcher. A nil renderer disables the rendering fallback.
func New(opts Options, renderer render.Renderer) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 2
	}
	if renderer == nil {
		renderer = render.NewNoop()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		opts:     opts,
		robots:   NewRobotsCache(),
		renderer: renderer,
		limiters: make(map[string]*rate.Limiter),
	}
}

// nextUserAgent rotates through the fixed identity pool.
func (f *Fetcher) nextUserAgent() string {
	n := f.uaIndex.Add(1)
	return userAgents[int(n-1)%len(userAgents)]
}

// limiterFor returns the per-host rate limiter, creating one on first use.
func (f *Fetcher) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.opts.RequestsPerSec), 1)
		f.limiters[host] = lim
	}
	return lim
}

// Backoff returns the delay before retry attempt k (1-based):
// base * 2^(k-1).
func (f *Fetcher) Backoff(attempt int) time.Duration {
	return time.Duration(float64(f.opts.BackoffBase) * math.Pow(2, float64(attempt-1)))
}

// Fetch retrieves a single URL. On exhausted retries the payload carries
// only an error string and a zero status code.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) model.RawPayload {
	payload := model.RawPayload{
		URL:       targetURL,
		FetchedAt: time.Now().UTC(),
	}

	ua := f.nextUserAgent()

	if f.opts.RespectRobots && !f.robots.Allowed(ctx, targetURL, ua) {
		payload.Err = "disallowed by robots.txt"
		return payload
	}

	var lastErr string
	for attempt := 1; attempt <= f.opts.MaxRetries; attempt++ {
		if err := f.limiterFor(targetURL).Wait(ctx); err != nil {
			payload.Err = "rate limiter wait: " + err.Error()
			return payload
		}

		result, retryable := f.attempt(ctx, targetURL, ua)
		if result.Err == "" {
			return result
		}
		lastErr = result.Err

		if !retryable || ctx.Err() != nil {
			break
		}
		if attempt < f.opts.MaxRetries {
			delay := f.Backoff(attempt)
			zap.L().Debug("fetch: retrying",
				zap.String("url", targetURL),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.String("error", lastErr),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				payload.Err = lastErr
				return payload
			case <-timer.C:
			}
		}
	}

	payload.Err = lastErr
	return payload
}

// attempt performs one fetch attempt. The second return value reports
// whether the failure is worth retrying.
func (f *Fetcher) attempt(ctx context.Context, targetURL, ua string) (model.RawPayload, bool) {
	payload := model.RawPayload{
		URL:       targetURL,
		FetchedAt: time.Now().UTC(),
	}

	attemptCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, targetURL, nil)
	if err != nil {
		payload.Err = "create request: " + err.Error()
		return payload, false
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		payload.Err = "fetch: " + err.Error()
		return payload, true
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		payload.Err = "read body: " + err.Error()
		return payload, true
	}

	blocked, blockType := DetectBlock(resp, body)
	if blocked {
		// JS shells get one shot through the renderer before failing.
		if blockType == BlockJSShell {
			if rendered, ok := f.tryRender(ctx, targetURL); ok {
				rendered.StatusCode = resp.StatusCode
				return rendered, false
			}
		}
		payload.Err = "blocked (" + string(blockType) + ")"
		return payload, false
	}

	if resp.StatusCode >= 500 {
		payload.Err = "status " + strconv.Itoa(resp.StatusCode)
		return payload, true
	}
	if resp.StatusCode >= 400 {
		payload.Err = "status " + strconv.Itoa(resp.StatusCode)
		return payload, false
	}

	payload.StatusCode = resp.StatusCode
	payload.HTML = string(body)
	payload.RenderedText = StripHTML(payload.HTML)

	// Thin pages are often client-side rendered; prefer rendered content
	// when the service produces enough of it, otherwise keep the plain
	// result without surfacing an error.
	if len(payload.RenderedText) < minRenderedLength {
		if rendered, ok := f.tryRender(ctx, targetURL); ok {
			rendered.StatusCode = resp.StatusCode
			rendered.HTML = payload.HTML
			return rendered, false
		}
	}

	return payload, false
}

// tryRender asks the rendering collaborator for the page. Any failure or
// insufficient content reports ok=false; the caller falls back silently.
func (f *Fetcher) tryRender(ctx context.Context, targetURL string) (model.RawPayload, bool) {
	result, err := f.renderer.Render(ctx, targetURL)
	if err != nil || result == nil || len(result.Content) < minRenderedLength {
		if err != nil {
			zap.L().Debug("fetch: render fallback unavailable",
				zap.String("url", targetURL),
				zap.Error(err),
			)
		}
		return model.RawPayload{}, false
	}
	return model.RawPayload{
		URL:          targetURL,
		FetchedAt:    time.Now().UTC(),
		RenderedText: result.Content,
	}, true
}
