package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research/pricewatch/internal/render"
)

// fakeRenderer returns canned content for every URL.
type fakeRenderer struct {
	content string
	err     error
	calls   atomic.Int64
}

func (f *fakeRenderer) Render(_ context.Context, _ string) (*render.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &render.Result{Content: f.content}, nil
}

func fastOptions() Options {
	return Options{
		Timeout:        2 * time.Second,
		MaxRetries:     3,
		BackoffBase:    time.Millisecond,
		RespectRobots:  false,
		RequestsPerSec: 1000,
	}
}

// page pads HTML past the thin-page threshold so no render fallback fires.
func page(body string) string {
	return "<html><body>" + body + strings.Repeat(" lorem ipsum dolor sit amet", 20) + "</body></html>"
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page("<h1>Widget $99</h1>")))
	}))
	defer srv.Close()

	f := New(fastOptions(), nil)
	payload := f.Fetch(context.Background(), srv.URL)

	assert.False(t, payload.Failed())
	assert.Equal(t, 200, payload.StatusCode)
	assert.Contains(t, payload.HTML, "Widget $99")
	assert.Contains(t, payload.RenderedText, "Widget $99")
	assert.NotContains(t, payload.RenderedText, "<h1>")
}

func TestFetch_NeverReturnsGoError_AllFailuresInPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(fastOptions(), nil)
	payload := f.Fetch(context.Background(), srv.URL)

	assert.True(t, payload.Failed())
	assert.Zero(t, payload.StatusCode)
	assert.Contains(t, payload.Err, "status 500")
}

func TestFetch_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(page("recovered")))
	}))
	defer srv.Close()

	f := New(fastOptions(), nil)
	payload := f.Fetch(context.Background(), srv.URL)

	assert.False(t, payload.Failed())
	assert.Equal(t, int64(3), hits.Load())
}

func TestFetch_NoRetryOnClientError(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(fastOptions(), nil)
	payload := f.Fetch(context.Background(), srv.URL)

	assert.True(t, payload.Failed())
	assert.Contains(t, payload.Err, "status 404")
	assert.Equal(t, int64(1), hits.Load())
}

func TestFetch_RobotsDisallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		_, _ = w.Write([]byte(page("should not be fetched")))
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.RespectRobots = true
	f := New(opts, nil)
	payload := f.Fetch(context.Background(), srv.URL+"/catalog")

	assert.True(t, payload.Failed())
	assert.Contains(t, payload.Err, "robots")
}

func TestFetch_BlockedPageFailsDespite200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<p>Subscribe to continue reading.</p>"))
	}))
	defer srv.Close()

	f := New(fastOptions(), nil)
	payload := f.Fetch(context.Background(), srv.URL)

	assert.True(t, payload.Failed())
	assert.Contains(t, payload.Err, "blocked (paywall)")
}

func TestFetch_JSShellUsesRenderFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><div id="root"></div><noscript>enable javascript</noscript></html>`))
	}))
	defer srv.Close()

	renderer := &fakeRenderer{content: strings.Repeat("Widget Pro $99.95 ", 30)}
	f := New(fastOptions(), renderer)
	payload := f.Fetch(context.Background(), srv.URL)

	assert.False(t, payload.Failed())
	assert.Equal(t, 200, payload.StatusCode)
	assert.Contains(t, payload.RenderedText, "Widget Pro")
	assert.Equal(t, int64(1), renderer.calls.Load())
}

func TestFetch_JSShellWithoutRendererFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><div id="root"></div><noscript>enable javascript</noscript></html>`))
	}))
	defer srv.Close()

	f := New(fastOptions(), nil)
	payload := f.Fetch(context.Background(), srv.URL)

	assert.True(t, payload.Failed())
	assert.Contains(t, payload.Err, "js_shell")
}

func TestFetch_ThinPageFallsBackSilently(t *testing.T) {
	// Thin but not a shell: no noscript, no meta refresh.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>tiny</body></html>"))
	}))
	defer srv.Close()

	// Renderer fails; the plain result is kept without surfacing an error.
	renderer := &fakeRenderer{err: context.DeadlineExceeded}
	f := New(fastOptions(), renderer)
	payload := f.Fetch(context.Background(), srv.URL)

	assert.False(t, payload.Failed())
	assert.Contains(t, payload.RenderedText, "tiny")
	assert.Equal(t, int64(1), renderer.calls.Load())
}

func TestBackoff_StrictlyIncreasing(t *testing.T) {
	f := New(Options{BackoffBase: 100 * time.Millisecond}, nil)

	require.Equal(t, 100*time.Millisecond, f.Backoff(1))
	require.Equal(t, 200*time.Millisecond, f.Backoff(2))
	require.Equal(t, 400*time.Millisecond, f.Backoff(3))
	for k := 1; k < 8; k++ {
		assert.Less(t, f.Backoff(k), f.Backoff(k+1))
	}
}

func TestNextUserAgent_RotatesThroughPool(t *testing.T) {
	f := New(fastOptions(), nil)

	seen := make(map[string]bool)
	for i := 0; i < len(userAgents); i++ {
		seen[f.nextUserAgent()] = true
	}
	assert.Len(t, seen, len(userAgents))

	// Wraps around deterministically.
	assert.Equal(t, userAgents[0], f.nextUserAgent())
}
