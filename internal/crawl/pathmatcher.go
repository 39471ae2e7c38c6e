package crawl

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns cover auth and cart flows plus legal boilerplate.
// None of these ever carry pricing evidence.
var defaultExcludePatterns = []string{
	"/cart/*",
	"/checkout/*",
	"/account/*",
	"/login/*",
	"/legal/*",
	"/privacy/*",
	"/terms/*",
}

// binaryExtensions are asset suffixes the crawler never enqueues.
var binaryExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico",
	".zip", ".gz", ".tar", ".mp4", ".mp3", ".woff", ".woff2", ".css", ".js",
}

// PathMatcher decides which URLs the crawler must not enqueue. Patterns are
// glob-style paths; "/cart/*" also matches multi-level paths like
// "/cart/deep/path".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher builds a matcher from glob patterns. An empty list means
// the defaults.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded reports whether a URL matches an exclude pattern or points at
// a binary asset. Unparseable URLs are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	lower := strings.ToLower(u.Path)
	for _, ext := range binaryExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return m.isPathExcluded(u.Path)
}

func (m *PathMatcher) isPathExcluded(urlPath string) bool {
	urlPath = strings.ToLower(urlPath)
	for _, pattern := range m.patterns {
		pattern = strings.ToLower(pattern)
		if matchSegmented(pattern, urlPath) {
			return true
		}
	}
	return false
}

// matchSegmented extends path.Match so a "/*" suffix covers every depth
// under the prefix, not just one segment.
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}

	return false
}
