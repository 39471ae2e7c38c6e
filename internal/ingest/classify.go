package ingest

import (
	"strings"

	"github.com/meridian-research/pricewatch/internal/model"
)

// ClassifyFetchError maps a fetch failure message and status code onto the
// error taxonomy. Block detection outranks the status code: a blocked page
// often arrives as HTTP 200.
func ClassifyFetchError(msg string, statusCode int) model.ErrorType {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "blocked"), strings.Contains(lower, "robots"):
		return model.ErrorBlocked
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return model.ErrorTimeout
	case statusCode >= 400, strings.Contains(lower, "status "):
		return model.ErrorHTTP
	default:
		return model.ErrorNetwork
	}
}
