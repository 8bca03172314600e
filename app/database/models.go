package database

import (
	"time"
)

// Track represents a harvested audio file. The ID is the upstream media
// identifier (e.g. a YouTube video ID), which makes harvests idempotent.
type Track struct {
	ID              string
	Title           string
	Artist          string
	Filename        string
	SourceURL       string
	FileSize        *int64
	DurationSeconds *int
	Quality         string
	DownloadedAt    time.Time
	UpdatedAt       time.Time
}

// Device represents an identity downloads are attributed to. Rotating
// between devices is how the harvester sheds per-identity rate limits.
type Device struct {
	ID              string
	Name            string
	Kind            string
	Active          bool
	LastUsedAt      *time.Time
	RateLimitCount  int
	LastRateLimitAt *time.Time
	CooldownUntil   *time.Time
	SuccessCount    int
	FailureCount    int
}

// InCooldown reports whether the device is cooling down at the given instant.
func (d *Device) InCooldown(now time.Time) bool {
	return d.CooldownUntil != nil && now.Before(*d.CooldownUntil)
}

// RateLimitEvent is an append-only record of a single throttling incident.
type RateLimitEvent struct {
	ID         string
	DeviceID   string
	OccurredAt time.Time
	Kind       string
	Details    string
	Resolved   bool
}

// Sync record statuses.
const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusFailed  = "failed"
)

// SyncRecord tracks whether a harvested track has been replicated to a device.
type SyncRecord struct {
	DeviceID        string
	TrackID         string
	Status          string
	DestinationPath *string
	UpdatedAt       time.Time
}

// Stats is the aggregate snapshot served by the stats endpoint.
type Stats struct {
	TotalTracks   int
	RecentTracks  int
	TotalBytes    int64
	ActiveDevices int
	TotalDevices  int
	SyncCounts    map[string]int
}
