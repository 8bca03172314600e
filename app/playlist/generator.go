package playlist

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/varkas/cratedigger/app/database"
)

const (
	mainArchiveFile  = "MainArchive.m3u"
	newAdditionsFile = "NewAdditions.m3u"
	favoritesFile    = "Favorites.m3u"
	byMonthDir       = "ByMonth"
	byArtistDir      = "ByArtist"

	newAdditionsWindow = 30 * 24 * time.Hour
	favoritesWindow    = 7 * 24 * time.Hour
	favoritesLimit     = 100
	monthsBack         = 6
	minArtistTracks    = 3

	maxArtistFileLength = 50
	unknownArtistFile   = "Unknown_Artist"
)

// Generator renders the track archive into M3U playlists that media players
// can open directly. Paths inside the playlists are absolute so they resolve
// regardless of where the player was launched from.
type Generator struct {
	tracks       database.TrackRepository
	harvestDir   string
	playlistsDir string
	logger       *slog.Logger
}

func NewGenerator(tracks database.TrackRepository, harvestDir, playlistsDir string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Generator{
		tracks:       tracks,
		harvestDir:   harvestDir,
		playlistsDir: playlistsDir,
		logger:       logger,
	}
}

// Run regenerates every playlist from the current state of the archive.
// Existing playlist files are overwritten; empty track sets are skipped so
// stale-but-valid playlists are preferable to zero-entry ones.
func (g *Generator) Run() error {
	harvestDir, err := filepath.Abs(g.harvestDir)
	if err != nil {
		return fmt.Errorf("failed to resolve harvest directory: %w", err)
	}

	for _, dir := range []string{g.playlistsDir, filepath.Join(g.playlistsDir, byMonthDir), filepath.Join(g.playlistsDir, byArtistDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create playlists directory: %w", err)
		}
	}

	allTracks, err := g.tracks.GetAllTracks()
	if err != nil {
		return fmt.Errorf("failed to load tracks: %w", err)
	}

	now := time.Now()
	written := 0

	ok, err := g.writePlaylist(filepath.Join(g.playlistsDir, mainArchiveFile), "Main Archive", allTracks, harvestDir)
	if err != nil {
		return err
	}
	if ok {
		written++
	}

	recent, err := g.tracks.GetRecentTracks(now.Add(-newAdditionsWindow))
	if err != nil {
		return fmt.Errorf("failed to load recent tracks: %w", err)
	}

	ok, err = g.writePlaylist(filepath.Join(g.playlistsDir, newAdditionsFile), "New Additions (Last 30 Days)", recent, harvestDir)
	if err != nil {
		return err
	}
	if ok {
		written++
	}

	favorites, err := g.tracks.GetRecentTracks(now.Add(-favoritesWindow))
	if err != nil {
		return fmt.Errorf("failed to load recent tracks: %w", err)
	}
	if len(favorites) > favoritesLimit {
		favorites = favorites[:favoritesLimit]
	}

	ok, err = g.writePlaylist(filepath.Join(g.playlistsDir, favoritesFile), "Favorites (Last 7 Days)", favorites, harvestDir)
	if err != nil {
		return err
	}
	if ok {
		written++
	}

	monthly := groupByMonth(allTracks)
	for _, month := range recentMonths(now, monthsBack) {
		tracks := monthly[month]
		if len(tracks) == 0 {
			continue
		}

		ok, err = g.writePlaylist(filepath.Join(g.playlistsDir, byMonthDir, month+".m3u"), month, tracks, harvestDir)
		if err != nil {
			return err
		}
		if ok {
			written++
		}
	}

	artists, err := g.tracks.GetArtistsWithMinTracks(minArtistTracks)
	if err != nil {
		return fmt.Errorf("failed to load artists: %w", err)
	}

	for _, artist := range artists {
		tracks, err := g.tracks.GetTracksByArtist(artist)
		if err != nil {
			return fmt.Errorf("failed to load tracks for artist: %w", err)
		}

		ok, err = g.writePlaylist(filepath.Join(g.playlistsDir, byArtistDir, artistFilename(artist)+".m3u"), artist, tracks, harvestDir)
		if err != nil {
			return err
		}
		if ok {
			written++
		}
	}

	g.logger.Info("Playlist generation completed",
		"Playlists", written,
		"Tracks", len(allTracks))

	return nil
}

func (g *Generator) writePlaylist(path, title string, tracks []database.Track, harvestDir string) (bool, error) {
	if len(tracks) == 0 {
		g.logger.Debug("Skipping empty playlist", "Title", title)
		return false, nil
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "# %s\n", title)
	fmt.Fprintf(&b, "# Generated by cratedigger on %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "# Total tracks: %d\n\n", len(tracks))

	for _, track := range tracks {
		fmt.Fprintf(&b, "#EXTINF:%d,%s\n", extinfDuration(track), displayName(track))
		b.WriteString(filepath.Join(harvestDir, track.Filename))
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return false, fmt.Errorf("failed to write playlist: %w", err)
	}

	return true, nil
}

func extinfDuration(track database.Track) int {
	if track.DurationSeconds != nil && *track.DurationSeconds > 0 {
		return *track.DurationSeconds
	}

	return -1
}

func displayName(track database.Track) string {
	if track.Artist == "" {
		return track.Title
	}

	return track.Artist + " - " + track.Title
}

// artistFilename reduces an artist name to something safe for a filesystem
// path. Anything outside letters, digits, spaces, dashes and underscores is
// dropped rather than escaped.
func artistFilename(artist string) string {
	var b strings.Builder
	for _, r := range artist {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	name := strings.Join(strings.Fields(b.String()), " ")
	runes := []rune(name)
	if len(runes) > maxArtistFileLength {
		name = strings.TrimSpace(string(runes[:maxArtistFileLength]))
	}

	if name == "" {
		return unknownArtistFile
	}

	return name
}

func groupByMonth(tracks []database.Track) map[string][]database.Track {
	grouped := make(map[string][]database.Track)
	for _, track := range tracks {
		key := track.DownloadedAt.Format("2006-01")
		grouped[key] = append(grouped[key], track)
	}

	return grouped
}

// recentMonths walks backwards month by month instead of using AddDate,
// which normalizes short months and can skip one.
func recentMonths(now time.Time, count int) []string {
	months := make([]string, 0, count)
	year, month := now.Year(), int(now.Month())
	for i := 0; i < count; i++ {
		months = append(months, fmt.Sprintf("%04d-%02d", year, month))
		month--
		if month == 0 {
			month = 12
			year--
		}
	}

	return months
}
