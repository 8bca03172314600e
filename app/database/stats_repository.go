package database

import (
	"fmt"
	"time"
)

// statsRepository aggregates counts across tables for the stats endpoint
type statsRepository struct {
	db *DB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *DB) StatsReader {
	return &statsRepository{db: db}
}

// Stats returns an aggregate snapshot of the harvest archive
func (r *statsRepository) Stats() (*Stats, error) {
	stats := &Stats{SyncCounts: make(map[string]int)}

	err := r.db.QueryRow("SELECT COUNT(*) FROM tracks").Scan(&stats.TotalTracks)
	if err != nil {
		return nil, fmt.Errorf("failed to count tracks: %w", err)
	}

	weekAgo := time.Now().AddDate(0, 0, -7)
	err = r.db.QueryRow("SELECT COUNT(*) FROM tracks WHERE downloaded_at >= ?", weekAgo).Scan(&stats.RecentTracks)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent tracks: %w", err)
	}

	err = r.db.QueryRow("SELECT COALESCE(SUM(file_size), 0) FROM tracks").Scan(&stats.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to sum track sizes: %w", err)
	}

	err = r.db.QueryRow("SELECT COUNT(*) FROM devices").Scan(&stats.TotalDevices)
	if err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}

	err = r.db.QueryRow("SELECT COUNT(*) FROM devices WHERE active = 1").Scan(&stats.ActiveDevices)
	if err != nil {
		return nil, fmt.Errorf("failed to count active devices: %w", err)
	}

	rows, err := r.db.Query("SELECT status, COUNT(*) FROM sync_records GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count sync records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sync count row: %w", err)
		}
		stats.SyncCounts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync count rows: %w", err)
	}

	return stats, nil
}
