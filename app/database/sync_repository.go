package database

import (
	"fmt"
	"time"
)

// syncRepository handles database operations for per-device sync state
type syncRepository struct {
	db *DB
}

// NewSyncRepository creates a new sync repository
func NewSyncRepository(db *DB) SyncRepository {
	return &syncRepository{db: db}
}

// UpsertSyncRecord inserts or updates the sync state for a (device, track)
// pair. At most one row per pair exists.
func (r *syncRepository) UpsertSyncRecord(record SyncRecord) error {
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO sync_records (device_id, track_id, status, destination_path, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (device_id, track_id) DO UPDATE SET
			status = excluded.status,
			destination_path = excluded.destination_path,
			updated_at = excluded.updated_at
	`, record.DeviceID, record.TrackID, record.Status, record.DestinationPath, updatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert sync record: %w", err)
	}

	return nil
}

// GetSyncStatusCounts returns the number of sync records per status
func (r *syncRepository) GetSyncStatusCounts() (map[string]int, error) {
	rows, err := r.db.Query(`
		SELECT status, COUNT(*)
		FROM sync_records
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sync status row: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync status rows: %w", err)
	}

	return counts, nil
}

// ListSyncRecordsByStatus returns sync records with the given status,
// most recently updated first
func (r *syncRepository) ListSyncRecordsByStatus(status string, limit int) ([]SyncRecord, error) {
	rows, err := r.db.Query(`
		SELECT device_id, track_id, status, destination_path, updated_at
		FROM sync_records
		WHERE status = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync records: %w", err)
	}
	defer rows.Close()

	var records []SyncRecord
	for rows.Next() {
		var record SyncRecord
		var destination *string
		err := rows.Scan(
			&record.DeviceID, &record.TrackID, &record.Status,
			&destination, &record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync record row: %w", err)
		}
		record.DestinationPath = destination
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync record rows: %w", err)
	}

	return records, nil
}
