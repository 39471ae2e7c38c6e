package connector

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/currency"

	"github.com/meridian-research/pricewatch/internal/model"
)

// priceRe matches a currency symbol or ISO code followed by an amount,
// e.g. "$1,299.00", "EUR 450", "£12.50".
var priceRe = regexp.MustCompile(`(?i)([$€£¥]|\b[A-Z]{3}\b)\s?([0-9][0-9.,]*)`)

var symbolCodes = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

var metricSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

const summaryMaxLen = 240

// normalize converts one extracted item into persisted evidence shape,
// assigning grade and confidence from the connector's source identity.
func normalize(cfg *Config, item model.ExtractedEvidence, fetchedAt time.Time) model.NormalizedEvidence {
	grade := GradeFor(cfg.SourceID)
	value, unit := ParsePrice(item.RawText)

	return model.NormalizedEvidence{
		Metric:     MetricName(item.Title),
		Value:      value,
		Unit:       unit,
		Confidence: Confidence(grade, item.PublishedDate, fetchedAt),
		Grade:      grade,
		Summary:    Summarize(item.RawText),
		Tags:       []string{string(item.Category), cfg.SourceID},
	}
}

// Fallback builds the safe record used when normalization or validation
// fails: lowest grade, floor confidence, no value. Items are never dropped
// for shape problems.
func Fallback(cfg *Config, item model.ExtractedEvidence) model.NormalizedEvidence {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "unlabeled observation"
	}
	return model.NormalizedEvidence{
		Metric:     MetricName(title),
		Value:      nil,
		Confidence: confidenceFloor,
		Grade:      model.GradeC,
		Summary:    Summarize(item.RawText),
		Tags:       []string{"fallback", cfg.SourceID},
	}
}

// ParsePrice extracts the first monetary amount from text. The unit is a
// validated ISO 4217 code; unrecognized codes leave the unit empty.
func ParsePrice(text string) (*float64, string) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return nil, ""
	}

	unit := strings.ToUpper(m[1])
	if code, ok := symbolCodes[m[1]]; ok {
		unit = code
	}
	if _, err := currency.ParseISO(unit); err != nil {
		unit = ""
	}

	amount := strings.ReplaceAll(m[2], ",", "")
	v, err := strconv.ParseFloat(strings.TrimSuffix(amount, "."), 64)
	if err != nil {
		return nil, unit
	}
	return &v, unit
}

// MetricName slugs an item title into a stable metric identifier.
func MetricName(title string) string {
	slug := metricSlugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return "unknown_metric"
	}
	return slug
}

// Summarize trims raw text into a human-readable summary. Truncation backs
// up to a rune boundary so the persisted summary stays valid UTF-8.
func Summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= summaryMaxLen {
		return text
	}
	cut := summaryMaxLen - 1
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}
