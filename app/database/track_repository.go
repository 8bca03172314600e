package database

import (
	"database/sql"
	"fmt"
	"time"
)

// trackRepository handles database operations for harvested tracks
type trackRepository struct {
	db *DB
}

// NewTrackRepository creates a new track repository
func NewTrackRepository(db *DB) TrackRepository {
	return &trackRepository{db: db}
}

// UpsertTrack inserts or updates a track keyed by its media ID. A second
// upsert with the same ID overwrites the mutable fields, never duplicates.
func (r *trackRepository) UpsertTrack(track Track) error {
	downloadedAt := track.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO tracks (
			id, title, artist, filename, source_url,
			file_size, duration_seconds, quality, downloaded_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			filename = excluded.filename,
			source_url = excluded.source_url,
			file_size = excluded.file_size,
			duration_seconds = excluded.duration_seconds,
			quality = excluded.quality,
			updated_at = excluded.updated_at
	`, track.ID, track.Title, track.Artist, track.Filename, track.SourceURL,
		track.FileSize, track.DurationSeconds, track.Quality, downloadedAt, time.Now())

	if err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}

	return nil
}

// GetTrack retrieves a track by its media ID, or nil if not found
func (r *trackRepository) GetTrack(id string) (*Track, error) {
	track, err := scanTrack(r.db.QueryRow(`
		SELECT id, title, artist, filename, source_url,
		       file_size, duration_seconds, quality, downloaded_at, updated_at
		FROM tracks
		WHERE id = ?
	`, id))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}

	return track, nil
}

// TrackExists reports whether a track with the given media ID is recorded
func (r *trackRepository) TrackExists(id string) (bool, error) {
	var one int
	err := r.db.QueryRow("SELECT 1 FROM tracks WHERE id = ? LIMIT 1", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check track existence: %w", err)
	}
	return true, nil
}

// FilenameExists reports whether any track is recorded under the given filename
func (r *trackRepository) FilenameExists(filename string) (bool, error) {
	var one int
	err := r.db.QueryRow("SELECT 1 FROM tracks WHERE filename = ? LIMIT 1", filename).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check filename existence: %w", err)
	}
	return true, nil
}

// GetAllTracks returns every track ordered by filename
func (r *trackRepository) GetAllTracks() ([]Track, error) {
	return r.queryTracks(`
		SELECT id, title, artist, filename, source_url,
		       file_size, duration_seconds, quality, downloaded_at, updated_at
		FROM tracks
		ORDER BY filename
	`)
}

// GetRecentTracks returns tracks downloaded at or after the given instant,
// newest first
func (r *trackRepository) GetRecentTracks(since time.Time) ([]Track, error) {
	return r.queryTracks(`
		SELECT id, title, artist, filename, source_url,
		       file_size, duration_seconds, quality, downloaded_at, updated_at
		FROM tracks
		WHERE downloaded_at >= ?
		ORDER BY downloaded_at DESC
	`, since)
}

// GetTracksByArtist returns all tracks attributed to the given artist
func (r *trackRepository) GetTracksByArtist(artist string) ([]Track, error) {
	return r.queryTracks(`
		SELECT id, title, artist, filename, source_url,
		       file_size, duration_seconds, quality, downloaded_at, updated_at
		FROM tracks
		WHERE artist = ?
		ORDER BY filename
	`, artist)
}

// GetArtistsWithMinTracks returns artists credited with at least minTracks tracks
func (r *trackRepository) GetArtistsWithMinTracks(minTracks int) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT artist
		FROM tracks
		WHERE artist != ''
		GROUP BY artist
		HAVING COUNT(*) >= ?
		ORDER BY artist
	`, minTracks)
	if err != nil {
		return nil, fmt.Errorf("failed to get artists: %w", err)
	}
	defer rows.Close()

	var artists []string
	for rows.Next() {
		var artist string
		if err := rows.Scan(&artist); err != nil {
			return nil, fmt.Errorf("failed to scan artist row: %w", err)
		}
		artists = append(artists, artist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artist rows: %w", err)
	}

	return artists, nil
}

// GetTrackCount returns the total number of recorded tracks
func (r *trackRepository) GetTrackCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM tracks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get track count: %w", err)
	}
	return count, nil
}

func (r *trackRepository) queryTracks(query string, args ...interface{}) ([]Track, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, *track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating track rows: %w", err)
	}

	return tracks, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrack(row rowScanner) (*Track, error) {
	var track Track
	var fileSize sql.NullInt64
	var duration sql.NullInt64

	err := row.Scan(
		&track.ID, &track.Title, &track.Artist, &track.Filename, &track.SourceURL,
		&fileSize, &duration, &track.Quality, &track.DownloadedAt, &track.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if fileSize.Valid {
		track.FileSize = &fileSize.Int64
	}
	if duration.Valid {
		d := int(duration.Int64)
		track.DurationSeconds = &d
	}

	return &track, nil
}
