package database

import (
	"time"
)

type TrackRepository interface {
	UpsertTrack(track Track) error
	GetTrack(id string) (*Track, error)
	TrackExists(id string) (bool, error)
	FilenameExists(filename string) (bool, error)
	GetAllTracks() ([]Track, error)
	GetRecentTracks(since time.Time) ([]Track, error)
	GetTracksByArtist(artist string) ([]Track, error)
	GetArtistsWithMinTracks(minTracks int) ([]string, error)
	GetTrackCount() (int, error)
}

type DeviceRepository interface {
	RegisterDevice(id, name, kind string) error
	GetDevice(id string) (*Device, error)
	ListDevices() ([]Device, error)
	ListAvailableDevices(now time.Time) ([]Device, error)
	ClaimDevice(id string, now time.Time) error
	UpdateDeviceUsage(id string, success bool, now time.Time) error
	ApplyCooldown(event RateLimitEvent, cooldownUntil time.Time) error
	SetDeviceActive(id string, active bool) error
	GetRecentRateLimitEvents(limit int) ([]RateLimitEvent, error)
	ResolveRateLimitEvents(deviceID string) (int, error)
}

type SyncRepository interface {
	UpsertSyncRecord(record SyncRecord) error
	GetSyncStatusCounts() (map[string]int, error)
	ListSyncRecordsByStatus(status string, limit int) ([]SyncRecord, error)
}

type StatsReader interface {
	Stats() (*Stats, error)
}
