package fetch

import (
	"regexp"
	"strings"
)

var (
	titleRe = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`[ \t]+`)
	nlRe    = regexp.MustCompile(`\n{3,}`)

	blockTagRes = map[string]*regexp.Regexp{
		"script": regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		"style":  regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
		"nav":    regexp.MustCompile(`(?is)<nav[^>]*>.*?</nav>`),
		"footer": regexp.MustCompile(`(?is)<footer[^>]*>.*?</footer>`),
	}
)

// ExtractTitle pulls the <title> from HTML.
func ExtractTitle(html string) string {
	m := titleRe.FindStringSubmatch(html)
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// StripHTML removes scripts/styles/nav/footer, strips tags, decodes common
// entities, and collapses whitespace. The result is plaintext suitable for
// LLM extraction.
func StripHTML(html string) string {
	for _, re := range blockTagRes {
		html = re.ReplaceAllString(html, "")
	}

	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	html = spaceRe.ReplaceAllString(html, " ")
	html = nlRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
