package connector

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research/pricewatch/internal/model"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     float64
		wantUnit string
		wantNil  bool
	}{
		{"dollar symbol", "Widget Pro now $1,299.00 each", 1299.00, "USD", false},
		{"euro symbol", "listed at €450", 450, "EUR", false},
		{"pound symbol", "£12.50 per unit", 12.50, "GBP", false},
		{"iso code", "quoted EUR 2500 per ton", 2500, "EUR", false},
		{"lowercase iso code", "about usd 99", 99, "USD", false},
		{"unknown code keeps value", "XQZ 500 per crate", 500, "", false},
		{"no price", "pricing available on request", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, unit := ParsePrice(tt.text)
			if tt.wantNil {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.InDelta(t, tt.want, *v, 1e-9)
			assert.Equal(t, tt.wantUnit, unit)
		})
	}
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "widget_pro_2000", MetricName("Widget Pro 2000"))
	assert.Equal(t, "steel_rebar_eu", MetricName("  Steel Rebar (EU)  "))
	assert.Equal(t, "unknown_metric", MetricName("???"))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "a b c", Summarize("a \n b\t\tc"))

	long := strings.Repeat("x", 500)
	got := Summarize(long)
	assert.LessOrEqual(t, len(got), 243) // 239 bytes + multibyte ellipsis
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestSummarize_TruncatesOnRuneBoundary(t *testing.T) {
	// Pad so the cut lands inside a multi-byte rune; the truncated summary
	// must still be valid UTF-8.
	got := Summarize(strings.Repeat("x", 238) + "日本語")
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.NotContains(t, got, string(utf8.RuneError))
}

func TestNormalize_AssignsGradeAndConfidence(t *testing.T) {
	cfg := &Config{SourceID: "vendor-catalog-us", SourceURL: "https://vendor.example.com"}
	fetched := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	published := fetched.AddDate(0, 0, -10)

	norm := normalize(cfg, model.ExtractedEvidence{
		Title:         "Widget Pro",
		RawText:       "Widget Pro listed at $99.95",
		PublishedDate: &published,
		Category:      model.CategoryCatalogPrice,
	}, fetched)

	assert.Equal(t, "widget_pro", norm.Metric)
	require.NotNil(t, norm.Value)
	assert.InDelta(t, 99.95, *norm.Value, 1e-9)
	assert.Equal(t, "USD", norm.Unit)
	assert.Equal(t, model.GradeA, norm.Grade)
	assert.InDelta(t, 0.95, norm.Confidence, 1e-9)
	assert.Contains(t, norm.Tags, "vendor-catalog-us")
	assert.True(t, norm.Validate())
}

func TestFallback_NeverInvalid(t *testing.T) {
	floor, _ := ConfidenceBounds()
	cfg := &Config{SourceID: "vendor-catalog-us"}

	tests := []struct {
		name string
		item model.ExtractedEvidence
	}{
		{"empty everything", model.ExtractedEvidence{}},
		{"garbage title", model.ExtractedEvidence{Title: "!!!", RawText: "???"}},
		{"normal item", model.ExtractedEvidence{Title: "Widget", RawText: "no price here"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := Fallback(cfg, tt.item)
			assert.True(t, fb.Validate())
			assert.Equal(t, model.GradeC, fb.Grade)
			assert.Equal(t, floor, fb.Confidence)
			assert.Nil(t, fb.Value)
			assert.Contains(t, fb.Tags, "fallback")
		})
	}
}
