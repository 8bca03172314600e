package database

import (
	"database/sql"
	"fmt"
	"time"
)

// deviceRepository handles database operations for download devices
type deviceRepository struct {
	db *DB
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *DB) DeviceRepository {
	return &deviceRepository{db: db}
}

// RegisterDevice inserts a device or refreshes its name and kind. Counters,
// cooldown state and the active flag survive re-registration, so restarting
// the process never resets rotation history or an operator's deactivation.
func (r *deviceRepository) RegisterDevice(id, name, kind string) error {
	_, err := r.db.Exec(`
		INSERT INTO devices (id, name, kind)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind
	`, id, name, kind)

	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}

	return nil
}

// GetDevice retrieves a device by ID, or nil if not found
func (r *deviceRepository) GetDevice(id string) (*Device, error) {
	device, err := scanDevice(r.db.QueryRow(`
		SELECT id, name, kind, active, last_used_at,
		       rate_limit_count, last_rate_limit_at, cooldown_until,
		       success_count, failure_count
		FROM devices
		WHERE id = ?
	`, id))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return device, nil
}

// ListDevices returns every registered device
func (r *deviceRepository) ListDevices() ([]Device, error) {
	return r.queryDevices(`
		SELECT id, name, kind, active, last_used_at,
		       rate_limit_count, last_rate_limit_at, cooldown_until,
		       success_count, failure_count
		FROM devices
		ORDER BY id
	`)
}

// ListAvailableDevices returns active devices whose cooldown has passed,
// ordered least recently used first (never-used devices sort before all
// others), then by rate limit count so heavily throttled devices wait longest.
func (r *deviceRepository) ListAvailableDevices(now time.Time) ([]Device, error) {
	return r.queryDevices(`
		SELECT id, name, kind, active, last_used_at,
		       rate_limit_count, last_rate_limit_at, cooldown_until,
		       success_count, failure_count
		FROM devices
		WHERE active = 1
		  AND (cooldown_until IS NULL OR cooldown_until <= ?)
		ORDER BY last_used_at ASC, rate_limit_count ASC
	`, now)
}

// ClaimDevice marks a device as chosen for use by setting last_used_at.
// Success and failure counters move only on confirmed outcomes.
func (r *deviceRepository) ClaimDevice(id string, now time.Time) error {
	_, err := r.db.Exec(`
		UPDATE devices
		SET last_used_at = ?
		WHERE id = ?
	`, now, id)

	if err != nil {
		return fmt.Errorf("failed to claim device: %w", err)
	}

	return nil
}

// UpdateDeviceUsage records the outcome of a completed attempt
func (r *deviceRepository) UpdateDeviceUsage(id string, success bool, now time.Time) error {
	var err error
	if success {
		_, err = r.db.Exec(`
			UPDATE devices
			SET success_count = success_count + 1, last_used_at = ?
			WHERE id = ?
		`, now, id)
	} else {
		_, err = r.db.Exec(`
			UPDATE devices
			SET failure_count = failure_count + 1
			WHERE id = ?
		`, id)
	}

	if err != nil {
		return fmt.Errorf("failed to update device usage: %w", err)
	}

	return nil
}

// ApplyCooldown appends a rate limit event and updates the device's cooldown
// state in a single transaction, so an observer never sees a cooldown without
// its audit event or vice versa.
func (r *deviceRepository) ApplyCooldown(event RateLimitEvent, cooldownUntil time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cooldown transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO rate_limit_events (id, device_id, occurred_at, kind, details, resolved)
		VALUES (?, ?, ?, ?, ?, 0)
	`, event.ID, event.DeviceID, event.OccurredAt, event.Kind, event.Details)
	if err != nil {
		return fmt.Errorf("failed to append rate limit event: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE devices
		SET rate_limit_count = rate_limit_count + 1,
		    last_rate_limit_at = ?,
		    cooldown_until = ?
		WHERE id = ?
	`, event.OccurredAt, cooldownUntil, event.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to update device cooldown: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cooldown transaction: %w", err)
	}

	return nil
}

// SetDeviceActive sets the active status of a device. Reactivating also
// clears any cooldown so the device returns to rotation immediately.
func (r *deviceRepository) SetDeviceActive(id string, active bool) error {
	var result sql.Result
	var err error

	if active {
		result, err = r.db.Exec(`
			UPDATE devices
			SET active = 1, cooldown_until = NULL
			WHERE id = ?
		`, id)
	} else {
		result, err = r.db.Exec(`
			UPDATE devices
			SET active = 0
			WHERE id = ?
		`, id)
	}

	if err != nil {
		return fmt.Errorf("failed to set device active status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("device not found: %s", id)
	}

	return nil
}

// GetRecentRateLimitEvents returns the newest rate limit events
func (r *deviceRepository) GetRecentRateLimitEvents(limit int) ([]RateLimitEvent, error) {
	rows, err := r.db.Query(`
		SELECT id, device_id, occurred_at, kind, details, resolved
		FROM rate_limit_events
		ORDER BY occurred_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit events: %w", err)
	}
	defer rows.Close()

	var events []RateLimitEvent
	for rows.Next() {
		var event RateLimitEvent
		err := rows.Scan(
			&event.ID, &event.DeviceID, &event.OccurredAt,
			&event.Kind, &event.Details, &event.Resolved,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate limit event row: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rate limit event rows: %w", err)
	}

	return events, nil
}

// ResolveRateLimitEvents marks all unresolved events for a device as resolved
// and returns the number of events affected
func (r *deviceRepository) ResolveRateLimitEvents(deviceID string) (int, error) {
	result, err := r.db.Exec(`
		UPDATE rate_limit_events
		SET resolved = 1
		WHERE device_id = ? AND resolved = 0
	`, deviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve rate limit events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return int(affected), nil
}

func (r *deviceRepository) queryDevices(query string, args ...interface{}) ([]Device, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device rows: %w", err)
	}

	return devices, nil
}

func scanDevice(row rowScanner) (*Device, error) {
	var device Device
	var lastUsed, lastRateLimit, cooldownUntil sql.NullTime

	err := row.Scan(
		&device.ID, &device.Name, &device.Kind, &device.Active, &lastUsed,
		&device.RateLimitCount, &lastRateLimit, &cooldownUntil,
		&device.SuccessCount, &device.FailureCount,
	)
	if err != nil {
		return nil, err
	}

	if lastUsed.Valid {
		device.LastUsedAt = &lastUsed.Time
	}
	if lastRateLimit.Valid {
		device.LastRateLimitAt = &lastRateLimit.Time
	}
	if cooldownUntil.Valid {
		device.CooldownUntil = &cooldownUntil.Time
	}

	return &device, nil
}
