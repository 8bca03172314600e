package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const requestTimeout = 10 * time.Second

// Client triggers folder rescans on a Syncthing instance after a batch lands
// new files. An unconfigured client is valid and turns every call into a no-op.
type Client struct {
	apiURL     string
	apiKey     string
	folderID   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(apiURL, apiKey, folderID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		apiURL:   strings.TrimSuffix(apiURL, "/"),
		apiKey:   apiKey,
		folderID: folderID,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

// Configured reports whether all three connection settings are present.
func (c *Client) Configured() bool {
	return c.apiURL != "" && c.apiKey != "" && c.folderID != ""
}

// Rescan asks Syncthing to rescan the harvest folder so fresh files start
// propagating without waiting for the periodic scan.
func (c *Client) Rescan(ctx context.Context) error {
	if !c.Configured() {
		c.logger.Debug("Sync service not configured, skipping rescan")
		return nil
	}

	scanURL := fmt.Sprintf("%s/rest/db/scan?folder=%s", c.apiURL, url.QueryEscape(c.folderID))

	req, err := http.NewRequestWithContext(ctx, "POST", scanURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to trigger rescan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	c.logger.Info("Triggered sync folder rescan", "Folder", c.folderID)

	return nil
}
