package connector

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-research/pricewatch/internal/model"
)

// ftpFeedConnector retrieves a CSV price feed over FTP. Expected columns:
// item name, price text, optional published date (YYYY-MM-DD), optional
// region.
type ftpFeedConnector struct {
	cfg     *Config
	timeout time.Duration
}

func newFTPFeedConnector(cfg *Config, deps Deps) *ftpFeedConnector {
	timeout := deps.FTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ftpFeedConnector{cfg: cfg, timeout: timeout}
}

func (c *ftpFeedConnector) Config() *Config { return c.cfg }

func (c *ftpFeedConnector) Fetch(ctx context.Context) model.RawPayload {
	payload := model.RawPayload{
		URL:       c.cfg.SourceURL,
		FetchedAt: time.Now().UTC(),
	}

	host, path, err := parseFTPURL(c.cfg.SourceURL)
	if err != nil {
		payload.Err = err.Error()
		return payload
	}

	zap.L().Debug("ftpfeed: connecting",
		zap.String("host", host),
		zap.String("path", path),
	)

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(c.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		payload.Err = "ftp dial: " + err.Error()
		return payload
	}
	defer func() { _ = conn.Quit() }()

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		payload.Err = "ftp login: " + err.Error()
		return payload
	}

	resp, err := conn.Retr(path)
	if err != nil {
		payload.Err = "ftp retrieve: " + err.Error()
		return payload
	}
	defer func() { _ = resp.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp, 32*1024*1024))
	if err != nil {
		payload.Err = "ftp read: " + err.Error()
		return payload
	}

	payload.StatusCode = 200
	payload.Data = data
	return payload
}

func (c *ftpFeedConnector) Extract(_ context.Context, payload model.RawPayload) ([]model.ExtractedEvidence, error) {
	reader := csv.NewReader(bytes.NewReader(payload.Data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var items []model.ExtractedEvidence
	for i, rec := range records {
		if i < c.cfg.SkipRows {
			continue
		}
		if len(rec) < 2 {
			continue
		}
		name := strings.TrimSpace(rec[0])
		price := strings.TrimSpace(rec[1])
		if name == "" || price == "" {
			continue
		}

		item := model.ExtractedEvidence{
			Title:     name,
			RawText:   name + ": " + price,
			Category:  c.cfg.Category,
			Geography: c.cfg.Geography,
			SourceURL: c.cfg.SourceURL,
		}
		if len(rec) > 2 {
			if ts, parseErr := time.Parse("2006-01-02", strings.TrimSpace(rec[2])); parseErr == nil {
				item.PublishedDate = &ts
			}
		}
		if len(rec) > 3 && strings.TrimSpace(rec[3]) != "" {
			item.Geography = strings.TrimSpace(rec[3])
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *ftpFeedConnector) Normalize(item model.ExtractedEvidence) model.NormalizedEvidence {
	return normalize(c.cfg, item, time.Now().UTC())
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ftpfeed: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("ftpfeed: empty path in ftp url")
	}

	return host, path, nil
}
