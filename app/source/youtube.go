package source

import (
	"context"
	"fmt"
	"strings"

	ytdlp "github.com/ytget/ytdlp/v2"

	"github.com/varkas/cratedigger/app/harvest"
)

const (
	playlistParam  = "list="
	paramSeparator = "&"
	videoURLFormat = "https://www.youtube.com/watch?v=%s"
)

// YouTubeProvider lists playlist entries through the InnerTube client, so
// enumeration works without a yt-dlp binary and without burning download
// quota on the device pool.
type YouTubeProvider struct{}

func NewYouTubeProvider() *YouTubeProvider {
	return &YouTubeProvider{}
}

func (p *YouTubeProvider) List(ctx context.Context, cfg *Config) ([]harvest.Candidate, error) {
	playlistID := extractPlaylistID(cfg.Source.URL)
	if playlistID == "" {
		return nil, fmt.Errorf("could not extract playlist ID from URL: %s", cfg.Source.URL)
	}

	client := ytdlp.New()
	items, err := client.GetPlaylistItemsAll(ctx, playlistID, cfg.Settings.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	candidates := make([]harvest.Candidate, 0, len(items))
	for _, item := range items {
		if item.VideoID == "" {
			continue
		}
		candidates = append(candidates, harvest.Candidate{
			ID:       item.VideoID,
			Title:    item.Title,
			MediaURL: fmt.Sprintf(videoURLFormat, item.VideoID),
		})
	}

	return candidates, nil
}

// extractPlaylistID pulls the playlist ID out of watch and playlist URL
// variants.
func extractPlaylistID(url string) string {
	if !strings.Contains(url, playlistParam) {
		return ""
	}

	parts := strings.Split(url, playlistParam)
	if len(parts) < 2 {
		return ""
	}

	playlistPart := parts[1]
	if strings.Contains(playlistPart, paramSeparator) {
		playlistPart = strings.Split(playlistPart, paramSeparator)[0]
	}
	return playlistPart
}
