package database

import (
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func TestUpsertTrackTwiceLeavesOneRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewTrackRepository(db)

	size := int64(4096)
	track := Track{
		ID:        "abc123",
		Title:     "First Title",
		Artist:    "Artist One",
		Filename:  "00001 - Artist One - First Title.mp3",
		SourceURL: "https://example.com/playlist",
		FileSize:  &size,
		Quality:   "256k",
	}

	if err := repo.UpsertTrack(track); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	track.Title = "Second Title"
	track.Quality = "128k"
	if err := repo.UpsertTrack(track); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	count, err := repo.GetTrackCount()
	if err != nil {
		t.Fatalf("GetTrackCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 track after double upsert, got %d", count)
	}

	got, err := repo.GetTrack("abc123")
	if err != nil {
		t.Fatalf("GetTrack failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected track, got nil")
	}
	if got.Title != "Second Title" {
		t.Errorf("Expected second upsert's title to win, got '%s'", got.Title)
	}
	if got.Quality != "128k" {
		t.Errorf("Expected second upsert's quality to win, got '%s'", got.Quality)
	}
	if got.FileSize == nil || *got.FileSize != 4096 {
		t.Errorf("Expected file size 4096, got %v", got.FileSize)
	}
}

func TestTrackExists(t *testing.T) {
	db := newTestDB(t)
	repo := NewTrackRepository(db)

	exists, err := repo.TrackExists("missing")
	if err != nil {
		t.Fatalf("TrackExists failed: %v", err)
	}
	if exists {
		t.Error("Expected missing track to not exist")
	}

	track := Track{ID: "vid1", Title: "Song", Filename: "00001 - Song.mp3"}
	if err := repo.UpsertTrack(track); err != nil {
		t.Fatalf("UpsertTrack failed: %v", err)
	}

	exists, err = repo.TrackExists("vid1")
	if err != nil {
		t.Fatalf("TrackExists failed: %v", err)
	}
	if !exists {
		t.Error("Expected upserted track to exist")
	}
}

func TestGetTrackNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewTrackRepository(db)

	got, err := repo.GetTrack("missing")
	if err != nil {
		t.Fatalf("GetTrack failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing track, got %+v", got)
	}
}

func TestFilenameExists(t *testing.T) {
	db := newTestDB(t)
	repo := NewTrackRepository(db)

	track := Track{ID: "vid1", Title: "Song", Filename: "00001 - Artist - Song.mp3"}
	if err := repo.UpsertTrack(track); err != nil {
		t.Fatalf("UpsertTrack failed: %v", err)
	}

	exists, err := repo.FilenameExists("00001 - Artist - Song.mp3")
	if err != nil {
		t.Fatalf("FilenameExists failed: %v", err)
	}
	if !exists {
		t.Error("Expected filename to exist")
	}

	exists, err = repo.FilenameExists("00002 - Other.mp3")
	if err != nil {
		t.Fatalf("FilenameExists failed: %v", err)
	}
	if exists {
		t.Error("Expected unknown filename to not exist")
	}
}

func TestGetRecentTracks(t *testing.T) {
	db := newTestDB(t)
	repo := NewTrackRepository(db)

	now := time.Now()
	old := Track{ID: "old", Title: "Old Song", Filename: "00001 - Old Song.mp3", DownloadedAt: now.AddDate(0, 0, -60)}
	fresh := Track{ID: "fresh", Title: "Fresh Song", Filename: "00002 - Fresh Song.mp3", DownloadedAt: now.Add(-time.Hour)}

	for _, track := range []Track{old, fresh} {
		if err := repo.UpsertTrack(track); err != nil {
			t.Fatalf("UpsertTrack failed: %v", err)
		}
	}

	recent, err := repo.GetRecentTracks(now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("GetRecentTracks failed: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("Expected 1 recent track, got %d", len(recent))
	}
	if recent[0].ID != "fresh" {
		t.Errorf("Expected recent track 'fresh', got '%s'", recent[0].ID)
	}
}

func TestGetArtistsWithMinTracks(t *testing.T) {
	db := newTestDB(t)
	repo := NewTrackRepository(db)

	tracks := []Track{
		{ID: "a1", Title: "One", Artist: "Prolific", Filename: "00001.mp3"},
		{ID: "a2", Title: "Two", Artist: "Prolific", Filename: "00002.mp3"},
		{ID: "a3", Title: "Three", Artist: "Prolific", Filename: "00003.mp3"},
		{ID: "b1", Title: "Only", Artist: "One Hit", Filename: "00004.mp3"},
		{ID: "c1", Title: "Anon", Artist: "", Filename: "00005.mp3"},
	}
	for _, track := range tracks {
		if err := repo.UpsertTrack(track); err != nil {
			t.Fatalf("UpsertTrack failed: %v", err)
		}
	}

	artists, err := repo.GetArtistsWithMinTracks(3)
	if err != nil {
		t.Fatalf("GetArtistsWithMinTracks failed: %v", err)
	}
	if len(artists) != 1 {
		t.Fatalf("Expected 1 artist with 3+ tracks, got %d: %v", len(artists), artists)
	}
	if artists[0] != "Prolific" {
		t.Errorf("Expected artist 'Prolific', got '%s'", artists[0])
	}

	byArtist, err := repo.GetTracksByArtist("Prolific")
	if err != nil {
		t.Fatalf("GetTracksByArtist failed: %v", err)
	}
	if len(byArtist) != 3 {
		t.Errorf("Expected 3 tracks for 'Prolific', got %d", len(byArtist))
	}
}
