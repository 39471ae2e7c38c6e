package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/meridian-research/pricewatch/internal/model"
)

// maxContentChars caps how much page text goes into one prompt.
const maxContentChars = 24000

const systemText = "You are a market analyst extracting pricing evidence from web pages. Return valid JSON matching the requested schema. Use null for fields not found. Never invent prices that do not appear in the content."

const extractionPrompt = `Extract every distinct pricing or market observation from this page.

Category: %s
%s
Page URL: %s
Page content:
%s

Return a JSON array. Each element:
{"title": "<item or offering name>", "raw_text": "<verbatim snippet containing the observation>", "published_date": "<YYYY-MM-DD or null>", "geography": "<region or null>"}

Return only the JSON array.`

// Options configures the LLM-backed extractor.
type Options struct {
	Model     string
	MaxTokens int64
}

// Client implements Extractor using the official anthropic-sdk-go.
type Client struct {
	client sdk.Client
	opts   Options
}

// NewClient creates an LLM-backed extractor.
func NewClient(apiKey string, opts Options) *Client {
	if opts.Model == "" {
		opts.Model = "claude-haiku-4-5-20251001"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &Client{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		opts:   opts,
	}
}

// ExtractEvidence sends page content to the model and parses candidate
// items out of the reply. Malformed model output yields zero items and a
// nil error.
func (c *Client) ExtractEvidence(ctx context.Context, req Request) ([]model.ExtractedEvidence, error) {
	content := req.Content
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	hints := ""
	if req.Hints != "" {
		hints = "Extraction hints: " + req.Hints + "\n"
	}

	prompt := fmt.Sprintf(extractionPrompt, req.Category, hints, req.SourceURL, content)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.opts.Model),
		MaxTokens: c.opts.MaxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemText},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		zap.L().Warn("extract: model call failed",
			zap.String("url", req.SourceURL),
			zap.Error(err),
		)
		return nil, nil
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return ParseItems(text.String(), req), nil
}

// rawItem mirrors the JSON shape the model is asked to return.
type rawItem struct {
	Title         string  `json:"title"`
	RawText       string  `json:"raw_text"`
	PublishedDate *string `json:"published_date"`
	Geography     *string `json:"geography"`
}

// ParseItems parses model output into evidence candidates. Code fences and
// surrounding prose are tolerated; anything unparsable yields zero items.
func ParseItems(text string, req Request) []model.ExtractedEvidence {
	payload := extractJSONArray(text)
	if payload == "" {
		return nil
	}

	var raw []rawItem
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		zap.L().Debug("extract: unparsable model output",
			zap.String("url", req.SourceURL),
			zap.Error(err),
		)
		return nil
	}

	var items []model.ExtractedEvidence
	for _, r := range raw {
		if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.RawText) == "" {
			continue
		}
		item := model.ExtractedEvidence{
			Title:     strings.TrimSpace(r.Title),
			RawText:   strings.TrimSpace(r.RawText),
			Category:  req.Category,
			SourceURL: req.SourceURL,
			Geography: req.Geography,
		}
		if r.Geography != nil && *r.Geography != "" {
			item.Geography = *r.Geography
		}
		if r.PublishedDate != nil {
			if ts, err := time.Parse("2006-01-02", *r.PublishedDate); err == nil {
				item.PublishedDate = &ts
			}
		}
		items = append(items, item)
	}
	return items
}

// extractJSONArray locates the outermost JSON array in model output,
// stripping markdown code fences if present.
func extractJSONArray(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if end := strings.LastIndex(text, "```"); end >= 0 {
			text = text[:end]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
