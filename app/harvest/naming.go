package harvest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Decorations commonly appended to uploaded titles. Stripped before the
// title is used in filenames and tags.
var titleSuffixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[OFFICIAL VIDEO\]`),
	regexp.MustCompile(`(?i)\(OFFICIAL VIDEO\)`),
	regexp.MustCompile(`(?i)\[OFFICIAL MUSIC VIDEO\]`),
	regexp.MustCompile(`(?i)\(OFFICIAL MUSIC VIDEO\)`),
	regexp.MustCompile(`(?i)\[OFFICIAL AUDIO\]`),
	regexp.MustCompile(`(?i)\(OFFICIAL AUDIO\)`),
	regexp.MustCompile(`(?i)\[LYRICS\]`),
	regexp.MustCompile(`(?i)\(LYRICS\)`),
	regexp.MustCompile(`(?i)\[LYRIC VIDEO\]`),
	regexp.MustCompile(`(?i)\(LYRIC VIDEO\)`),
	regexp.MustCompile(`(?i)\[HD\]`),
	regexp.MustCompile(`(?i)\(HD\)`),
	regexp.MustCompile(`(?i)\[HQ\]`),
	regexp.MustCompile(`(?i)\(HQ\)`),
	regexp.MustCompile(`(?i)\[4K\]`),
	regexp.MustCompile(`(?i)\(4K\)`),
	regexp.MustCompile(`(?i)\[1080P\]`),
	regexp.MustCompile(`(?i)\(1080P\)`),
	regexp.MustCompile(`(?i)\[720P\]`),
	regexp.MustCompile(`(?i)\(720P\)`),
}

// Artist/title split patterns, tried in order.
var artistTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.+?)\s*[-–—]\s*(.+)$`),
	regexp.MustCompile(`^(.+?)\s*:\s*(.+)$`),
	regexp.MustCompile(`^(.+?)\s*"\s*(.+?)\s*"`),
	regexp.MustCompile(`^(.+?)\s*'\s*(.+?)\s*'`),
}

var (
	forbiddenChars  = regexp.MustCompile(`[<>:"/\\|?*]`)
	controlChars    = regexp.MustCompile("[\x00-\x1f\x7f]")
	unsafeChars     = regexp.MustCompile(`[^\p{L}\p{N}_\s\-.()\[\]&]`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
	leadingCounter  = regexp.MustCompile(`^(\d+)`)
	accentStripping = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

const maxComponentLength = 100

// SplitArtistTitle separates "Artist - Title" style uploads into their
// parts. When no pattern matches, the uploader stands in as the artist.
func SplitArtistTitle(title, uploader string) (string, string) {
	for _, pattern := range artistTitlePatterns {
		matches := pattern.FindStringSubmatch(title)
		if matches == nil {
			continue
		}

		artist := strings.TrimSpace(matches[1])
		song := strings.TrimSpace(matches[2])
		if artist != "" && song != "" {
			return artist, song
		}
	}

	return strings.TrimSpace(uploader), strings.TrimSpace(title)
}

// CleanTitle strips upload decorations and reduces the title to
// filesystem-safe characters. Empty results fall back to a placeholder.
func CleanTitle(title string) string {
	for _, pattern := range titleSuffixPatterns {
		title = pattern.ReplaceAllString(title, "")
	}

	title = sanitizeComponent(title)
	if title == "" {
		return "Unknown_Title"
	}

	return title
}

// CleanArtist reduces an artist name to filesystem-safe characters. Unlike
// titles, an empty artist stays empty and is omitted from filenames.
func CleanArtist(artist string) string {
	return sanitizeComponent(artist)
}

func sanitizeComponent(s string) string {
	if folded, _, err := transform.String(accentStripping, s); err == nil {
		s = folded
	}

	s = forbiddenChars.ReplaceAllString(s, "")
	s = controlChars.ReplaceAllString(s, "")
	s = unsafeChars.ReplaceAllString(s, "")
	s = whitespaceRuns.ReplaceAllString(s, " ")
	s = strings.Trim(s, ". ")

	runes := []rune(s)
	if len(runes) > maxComponentLength {
		s = strings.TrimSpace(string(runes[:maxComponentLength]))
	}

	return s
}

// BuildFilename assembles the final archive filename from an allocated
// counter and cleaned name parts.
func BuildFilename(counter, artist, title string) string {
	if artist == "" {
		return fmt.Sprintf("%s - %s.mp3", counter, title)
	}

	return fmt.Sprintf("%s - %s - %s.mp3", counter, artist, title)
}

// NameAllocator hands out sequential archive counters. It seeds itself from
// the highest counter already present in the harvest directory and then
// serves increments from memory, so concurrent workers never collide on a
// number even before their files hit disk.
type NameAllocator struct {
	mu   sync.Mutex
	next int
}

// NewNameAllocator scans dir for existing "NNNNN - ..." files and prepares
// the allocator to continue after the highest one.
func NewNameAllocator(dir string) (*NameAllocator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create harvest directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read harvest directory: %w", err)
	}

	highest := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mp3") {
			continue
		}

		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		matches := leadingCounter.FindStringSubmatch(stem)
		if matches == nil {
			continue
		}

		n, err := strconv.Atoi(matches[1])
		if err == nil && n > highest {
			highest = n
		}
	}

	return &NameAllocator{next: highest + 1}, nil
}

// Next returns the next zero-padded counter.
func (a *NameAllocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	counter := a.next
	a.next++

	return fmt.Sprintf("%05d", counter)
}
