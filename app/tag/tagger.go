package tag

import (
	"fmt"
	"time"

	"github.com/bogem/id3v2/v2"

	"github.com/varkas/cratedigger/app/harvest"
)

const defaultAlbum = "cratedigger"

const (
	sourceFrameDescription    = "Source"
	harvestedFrameDescription = "Harvested"
)

// ID3Tagger writes ID3v2 metadata onto harvested MP3 files. The album frame
// groups the whole archive under one name so players shelve it together.
type ID3Tagger struct {
	album string
}

func NewID3Tagger(album string) *ID3Tagger {
	if album == "" {
		album = defaultAlbum
	}

	return &ID3Tagger{album: album}
}

// Tag opens the file, overwrites the descriptive frames and saves it back.
// Files without an existing tag get a fresh one.
func (t *ID3Tagger) Tag(path string, meta harvest.TagMeta) error {
	file, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open file for tagging: %w", err)
	}
	defer file.Close()

	file.SetDefaultEncoding(id3v2.EncodingUTF8)
	file.SetTitle(meta.Title)
	if meta.Artist != "" {
		file.SetArtist(meta.Artist)
	}
	file.SetAlbum(t.album)

	file.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
		Encoding:    id3v2.EncodingUTF8,
		Description: sourceFrameDescription,
		Value:       meta.SourceID,
	})
	file.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
		Encoding:    id3v2.EncodingUTF8,
		Description: harvestedFrameDescription,
		Value:       meta.HarvestedAt.Format(time.RFC3339),
	})

	if err := file.Save(); err != nil {
		return fmt.Errorf("failed to save tags: %w", err)
	}

	return nil
}
