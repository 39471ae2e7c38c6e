package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research/pricewatch/internal/model"
)

func testReq() Request {
	return Request{
		SourceURL: "https://vendor.example.com/pricing",
		Category:  model.CategoryCatalogPrice,
		Geography: "US",
	}
}

func TestParseItems_PlainArray(t *testing.T) {
	text := `[
		{"title": "Widget Pro", "raw_text": "Widget Pro now $99.95/mo", "published_date": "2026-08-01", "geography": "EU"},
		{"title": "Widget Lite", "raw_text": "Widget Lite $29", "published_date": null, "geography": null}
	]`

	items := ParseItems(text, testReq())
	require.Len(t, items, 2)

	assert.Equal(t, "Widget Pro", items[0].Title)
	assert.Equal(t, "Widget Pro now $99.95/mo", items[0].RawText)
	assert.Equal(t, model.CategoryCatalogPrice, items[0].Category)
	assert.Equal(t, "https://vendor.example.com/pricing", items[0].SourceURL)
	assert.Equal(t, "EU", items[0].Geography) // item-level geography wins
	require.NotNil(t, items[0].PublishedDate)
	assert.Equal(t, "2026-08-01", items[0].PublishedDate.Format("2006-01-02"))

	// Nulls fall back to request-level values.
	assert.Equal(t, "US", items[1].Geography)
	assert.Nil(t, items[1].PublishedDate)
}

func TestParseItems_CodeFenceAndProse(t *testing.T) {
	text := "Here are the observations I found:\n```json\n" +
		`[{"title": "Spot Copper", "raw_text": "copper at $9,250/t"}]` +
		"\n```\nLet me know if you need more."

	items := ParseItems(text, testReq())
	require.Len(t, items, 1)
	assert.Equal(t, "Spot Copper", items[0].Title)
}

func TestParseItems_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"prose only", "I could not find any pricing information on this page."},
		{"truncated json", `[{"title": "Widget", "raw_text": "incomple`},
		{"object not array", `{"title": "Widget", "raw_text": "x"}`},
		{"wrong element type", `["just", "strings"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, ParseItems(tt.text, testReq()))
		})
	}
}

func TestParseItems_SkipsBlankFields(t *testing.T) {
	text := `[
		{"title": "", "raw_text": "orphan snippet"},
		{"title": "No Text", "raw_text": "   "},
		{"title": "Kept", "raw_text": "Kept $5"}
	]`

	items := ParseItems(text, testReq())
	require.Len(t, items, 1)
	assert.Equal(t, "Kept", items[0].Title)
}

func TestParseItems_BadDateIgnored(t *testing.T) {
	text := `[{"title": "Widget", "raw_text": "Widget $5", "published_date": "last Tuesday"}]`

	items := ParseItems(text, testReq())
	require.Len(t, items, 1)
	assert.Nil(t, items[0].PublishedDate)
}

func TestNoopExtractor(t *testing.T) {
	items, err := NewNoop().ExtractEvidence(context.Background(), testReq())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestExtractJSONArray(t *testing.T) {
	assert.Equal(t, `[1,2]`, extractJSONArray("noise [1,2] trailing"))
	assert.Equal(t, `[{"a":1}]`, extractJSONArray("```json\n[{\"a\":1}]\n```"))
	assert.Equal(t, "", extractJSONArray("no array here"))
	assert.Equal(t, "", extractJSONArray("] backwards ["))
}
