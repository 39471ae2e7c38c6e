package model

import (
	"strings"
	"time"
)

// Grade is a coarse reliability tier assigned by source identity, not content.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
)

// AllGrades returns the defined grades in descending reliability order.
func AllGrades() []Grade {
	return []Grade{GradeA, GradeB, GradeC}
}

// Valid reports whether g is one of the defined grades.
func (g Grade) Valid() bool {
	switch g {
	case GradeA, GradeB, GradeC:
		return true
	}
	return false
}

// Category classifies what kind of observation a piece of evidence is.
type Category string

const (
	CategoryCatalogPrice Category = "catalog_price"
	CategoryListingPrice Category = "listing_price"
	CategoryReport       Category = "report"
	CategoryPriceSheet   Category = "price_sheet"
	CategoryFeed         Category = "feed"
)

// AllCategories returns all defined evidence categories.
func AllCategories() []Category {
	return []Category{
		CategoryCatalogPrice,
		CategoryListingPrice,
		CategoryReport,
		CategoryPriceSheet,
		CategoryFeed,
	}
}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// Qualitative reports whether the category legitimately carries no single
// numeric price, so a nil Value is acceptable after normalization.
func (c Category) Qualitative() bool {
	return c == CategoryReport
}

// PageContent is one fetched page inside a RawPayload.
type PageContent struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	StatusCode int    `json:"status_code"`
}

// RawPayload is the result of one connector fetch. A failed fetch carries
// Err and a zero status code; the fetch layer never returns a Go error.
type RawPayload struct {
	URL          string        `json:"url"`
	FetchedAt    time.Time     `json:"fetched_at"`
	StatusCode   int           `json:"status_code"`
	HTML         string        `json:"html,omitempty"`
	RenderedText string        `json:"rendered_text,omitempty"`
	Pages        []PageContent `json:"pages,omitempty"`
	Data         []byte        `json:"-"`
	Err          string        `json:"error,omitempty"`
}

// Failed reports whether the fetch produced no usable content.
func (p RawPayload) Failed() bool {
	return p.Err != ""
}

// ExtractedEvidence is a candidate observation before normalization.
type ExtractedEvidence struct {
	Title         string     `json:"title"`
	RawText       string     `json:"raw_text"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Category      Category   `json:"category"`
	Geography     string     `json:"geography,omitempty"`
	SourceURL     string     `json:"source_url"`
}

// Validate checks the structural contract every item must satisfy before
// it crosses from extract to normalize.
func (e ExtractedEvidence) Validate() bool {
	if strings.TrimSpace(e.Title) == "" || strings.TrimSpace(e.RawText) == "" {
		return false
	}
	return e.Category.Valid()
}

// NormalizedEvidence is the unit persisted by the orchestrator.
type NormalizedEvidence struct {
	Metric     string   `json:"metric"`
	Value      *float64 `json:"value,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	Confidence float64  `json:"confidence"`
	Grade      Grade    `json:"grade"`
	Summary    string   `json:"summary"`
	Tags       []string `json:"tags,omitempty"`
}

// Validate checks the boundary contract before persistence: non-empty
// metric, a defined grade, and confidence within [0, 1].
func (n NormalizedEvidence) Validate() bool {
	if strings.TrimSpace(n.Metric) == "" {
		return false
	}
	if !n.Grade.Valid() {
		return false
	}
	return n.Confidence >= 0 && n.Confidence <= 1
}

// EvidenceRecord is a persisted NormalizedEvidence with capture metadata.
type EvidenceRecord struct {
	ID         string             `json:"id"`
	SourceID   string             `json:"source_id"`
	SourceURL  string             `json:"source_url"`
	ItemName   string             `json:"item_name"`
	Category   Category           `json:"category"`
	Geography  string             `json:"geography,omitempty"`
	Evidence   NormalizedEvidence `json:"evidence"`
	CapturedAt time.Time          `json:"captured_at"`
}

// DedupKey returns the composite duplicate-detection key for a record:
// source URL, item identity, and capture date truncated to day granularity.
func (r EvidenceRecord) DedupKey() string {
	return DedupKey(r.SourceURL, r.ItemName, r.CapturedAt)
}

// DedupKey builds the composite duplicate-detection key used by the
// orchestrator. Capture time is truncated to UTC day granularity.
func DedupKey(sourceURL, itemName string, capturedAt time.Time) string {
	return sourceURL + "|" + itemName + "|" + capturedAt.UTC().Format("2006-01-02")
}
