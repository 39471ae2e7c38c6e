package fetch

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockPaywall    BlockType = "paywall"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock inspects a response for anti-bot, paywall, or JS-only-shell
// markers. A detected block is a fetch failure regardless of status code, so
// a challenge page served with HTTP 200 never masquerades as content.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	// Cloudflare identifies itself in headers on 403/503 challenges.
	if resp.StatusCode == 403 || resp.StatusCode == 503 {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" {
			return true, BlockCloudflare
		}
		if resp.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	// Challenge pages that arrive with a clean status.
	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") {
		return true, BlockCaptcha
	}

	if strings.Contains(lower, "subscribe to continue") ||
		strings.Contains(lower, "subscription required") ||
		strings.Contains(lower, "class=\"paywall") ||
		strings.Contains(lower, "metered-paywall") {
		return true, BlockPaywall
	}

	// A tiny body carrying noscript or a meta refresh is a JS shell; the
	// real content only exists after rendering.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, "meta http-equiv=\"refresh\"") {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
