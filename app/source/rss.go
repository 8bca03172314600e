package source

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/varkas/cratedigger/app/harvest"
)

// FeedProvider lists audio enclosures from RSS and Atom feeds, which is how
// podcast sources enter the harvest pipeline.
type FeedProvider struct {
	httpClient   *http.Client
	gofeedParser *gofeed.Parser
	userAgent    string
}

func NewFeedProvider(httpClient *http.Client, userAgent string) *FeedProvider {
	return &FeedProvider{
		httpClient:   httpClient,
		gofeedParser: gofeed.NewParser(),
		userAgent:    userAgent,
	}
}

func (p *FeedProvider) List(ctx context.Context, cfg *Config) ([]harvest.Candidate, error) {
	data, err := p.fetchFeed(ctx, cfg)
	if err != nil {
		return nil, err
	}

	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	candidates := make([]harvest.Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if cfg.Settings.MaxItems > 0 && len(candidates) >= cfg.Settings.MaxItems {
			break
		}

		enclosureURL := audioEnclosureURL(item)
		if enclosureURL == "" {
			continue
		}

		candidates = append(candidates, harvest.Candidate{
			ID:       cmp.Or(item.GUID, item.Link, enclosureURL),
			Title:    item.Title,
			Uploader: itemUploader(item, parsed.Title),
			Duration: itemDuration(item),
			MediaURL: enclosureURL,
		})
	}

	return candidates, nil
}

func (p *FeedProvider) fetchFeed(ctx context.Context, cfg *Config) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Settings.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", cfg.Source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// audioEnclosureURL returns the first audio enclosure of an item, or "".
// RSS 2.0 allows only one enclosure per item.
func audioEnclosureURL(item *gofeed.Item) string {
	for _, enclosure := range item.Enclosures {
		if enclosure == nil || enclosure.URL == "" {
			continue
		}
		if strings.HasPrefix(enclosure.Type, "audio/") || strings.HasSuffix(enclosure.URL, ".mp3") {
			return enclosure.URL
		}
	}
	return ""
}

func itemUploader(item *gofeed.Item, feedTitle string) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil && item.Authors[0].Name != "" {
		return item.Authors[0].Name
	}
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	return feedTitle
}

// itemDuration reads the iTunes duration extension when present.
func itemDuration(item *gofeed.Item) *int {
	if item.ITunesExt == nil {
		return nil
	}
	return parseDuration(item.ITunesExt.Duration)
}

// parseDuration accepts both plain seconds and [hh:]mm:ss forms.
func parseDuration(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if !strings.Contains(raw, ":") {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			return nil
		}
		return &seconds
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return nil
	}

	seconds := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil
		}
		seconds = seconds*60 + n
	}
	return &seconds
}
