package tasks

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/varkas/cratedigger/app/database"
)

// Filename patterns tried in order. The counter-prefixed form must come
// first or the counter itself would be captured as the artist.
var importFilenamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+\s*-\s*(.+?)\s*-\s*(.+)$`),
	regexp.MustCompile(`^(.+?)\s*-\s*(.+)$`),
	regexp.MustCompile(`^(.+?)\s*:\s*(.+)$`),
}

const importedSourceURL = "manual_import"

// ImportLibraryTask registers MP3 files that exist in the harvest directory
// but not in the store, files synced in from another node or predating the
// database. Artist and title are recovered from the filename where possible.
type ImportLibraryTask struct {
	Task
	tracks     database.TrackRepository
	harvestDir string
}

func NewImportLibraryTask(tracks database.TrackRepository, harvestDir string) *ImportLibraryTask {
	return &ImportLibraryTask{
		Task:       NewTask(TaskTypeImportLibrary, ""),
		tracks:     tracks,
		harvestDir: harvestDir,
	}
}

func (t *ImportLibraryTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	files, err := filepath.Glob(filepath.Join(t.harvestDir, "*.mp3"))
	if err != nil {
		return fmt.Errorf("failed to scan harvest directory: %w", err)
	}

	imported := 0
	skipped := 0

	for _, path := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		filename := filepath.Base(path)

		exists, err := t.tracks.FilenameExists(filename)
		if err != nil {
			return fmt.Errorf("failed to check filename: %w", err)
		}
		if exists {
			skipped++
			continue
		}

		artist, title := parseImportFilename(strings.TrimSuffix(filename, ".mp3"))

		track := database.Track{
			ID:        importID(filename),
			Title:     title,
			Artist:    artist,
			Filename:  filename,
			SourceURL: importedSourceURL,
			Quality:   "unknown",
			UpdatedAt: time.Now(),
		}

		if info, err := os.Stat(path); err == nil {
			size := info.Size()
			track.FileSize = &size
			track.DownloadedAt = info.ModTime()
		}

		if err := t.tracks.UpsertTrack(track); err != nil {
			return fmt.Errorf("failed to import track: %w", err)
		}

		slog.Debug("Imported file", "filename", filename, "artist", artist, "title", title)
		imported++
	}

	slog.Info("Task completed",
		"type", "ImportLibrary",
		"duration", t.GetDuration(),
		"found", len(files),
		"imported", imported,
		"skipped", skipped)

	return nil
}

// parseImportFilename recovers artist and title from a filename stem. Files
// that match no pattern keep the whole stem as the title.
func parseImportFilename(stem string) (string, string) {
	for _, pattern := range importFilenamePatterns {
		if match := pattern.FindStringSubmatch(stem); match != nil {
			return strings.TrimSpace(match[1]), strings.TrimSpace(match[2])
		}
	}

	return "Unknown Artist", stem
}

// importID derives a stable media ID from the filename so re-running the
// import never duplicates a track.
func importID(filename string) string {
	h := fnv.New32a()
	h.Write([]byte(filename))
	return fmt.Sprintf("imported_%06d", h.Sum32()%1000000)
}
