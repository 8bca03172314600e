package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/varkas/cratedigger/app/harvest"
)

var httpStatusPattern = regexp.MustCompile(`HTTP Error (\d+)`)

// YtdlpFetcher transfers media through yt-dlp. Every attempt gets a fresh
// command so per-device proxy and cookie settings never leak between
// attempts.
type YtdlpFetcher struct {
	logger *slog.Logger
}

func NewYtdlpFetcher(logger *slog.Logger) *YtdlpFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &YtdlpFetcher{logger: logger}
}

// Install ensures a yt-dlp binary is available, downloading one next to the
// executable when the system has none.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("failed to install yt-dlp: %w", err)
	}
	return nil
}

// Fetch runs one download attempt. Failures never surface as Go errors;
// everything the failure classifier needs is folded into the result.
func (f *YtdlpFetcher) Fetch(ctx context.Context, req harvest.FetchRequest) harvest.FetchResult {
	dl := ytdlp.New().
		Format("bestaudio[ext=m4a]/bestaudio").
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality(req.Quality).
		EmbedThumbnail().
		EmbedMetadata().
		ForceOverwrites().
		NoWarnings().
		Output(req.DestPath)

	cookies := req.Device.Cookies
	if cookies == "" {
		cookies = req.CookiesFile
	}
	if cookies != "" {
		dl = dl.Cookies(cookies)
	}
	if req.Device.Proxy != "" {
		dl = dl.Proxy(req.Device.Proxy)
	}

	dl = dl.ProgressFunc(500*time.Millisecond, func(update ytdlp.ProgressUpdate) {
		f.logger.Debug("Download progress",
			"url", req.Candidate.MediaURL,
			"downloaded_bytes", update.DownloadedBytes,
			"total_bytes", update.TotalBytes,
			"eta", update.ETA().String())
	})

	f.logger.Debug("Invoking yt-dlp",
		"url", req.Candidate.MediaURL,
		"quality", req.Quality,
		"device", req.Device.Name)

	start := time.Now()
	_, runErr := dl.Run(ctx, req.Candidate.MediaURL)
	elapsed := time.Since(start)

	size := fileSize(req.DestPath)
	if runErr == nil && size > 0 {
		return harvest.FetchResult{
			Success:               true,
			BytesWritten:          size,
			Elapsed:               elapsed,
			ThroughputBytesPerSec: throughput(size, elapsed),
		}
	}

	errText := "output file missing after download"
	if runErr != nil {
		errText = runErr.Error()
	}

	// A partial transfer still tells us how fast the device was going.
	partial := size
	if partial == 0 {
		partial = fileSize(req.DestPath + ".part")
	}

	return harvest.FetchResult{
		BytesWritten:          partial,
		Elapsed:               elapsed,
		ThroughputBytesPerSec: throughput(partial, elapsed),
		ErrorText:             errText,
		HTTPStatus:            extractHTTPStatus(errText),
	}
}

func extractHTTPStatus(errText string) int {
	matches := httpStatusPattern.FindStringSubmatch(errText)
	if matches == nil {
		return 0
	}

	status, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return status
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}

func throughput(bytes int64, elapsed time.Duration) float64 {
	if bytes <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds()
}
