package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/varkas/cratedigger/app/database"
)

const maxEventDetailLength = 500

// MetricsRecorder receives rotation observability signals. Implementations
// must be safe for concurrent use.
type MetricsRecorder interface {
	RateLimitEvent(kind string)
	DeviceRotation()
	DevicesAvailable(n int)
}

// DeviceDetail is a per-device line in a rotation status snapshot.
type DeviceDetail struct {
	ID             string     `json:"device_id"`
	Name           string     `json:"device_name"`
	Kind           string     `json:"device_kind"`
	Active         bool       `json:"active"`
	InCooldown     bool       `json:"in_cooldown"`
	CooldownUntil  *time.Time `json:"cooldown_until,omitempty"`
	RateLimitCount int        `json:"rate_limit_count"`
	SuccessCount   int        `json:"success_count"`
	FailureCount   int        `json:"failure_count"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
}

// RotationStatus is a read-only snapshot of the device pool.
type RotationStatus struct {
	CurrentDevice     string         `json:"current_device"`
	TotalDevices      int            `json:"total_devices"`
	AvailableDevices  int            `json:"available_devices"`
	DevicesInCooldown int            `json:"devices_in_cooldown"`
	Devices           []DeviceDetail `json:"device_details"`
}

// Manager selects download devices and applies cooldown policy. The device
// rows in the store are the ground truth; the manager holds nothing beyond
// the identity of the device it handed out last.
type Manager struct {
	devices database.DeviceRepository
	metrics MetricsRecorder
	logger  *slog.Logger

	mu      sync.Mutex
	current string
}

// NewManager creates a rotation manager over the given device repository.
// A nil logger falls back to slog.Default; a nil metrics recorder disables
// instrumentation.
func NewManager(devices database.DeviceRepository, metrics MetricsRecorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		devices: devices,
		metrics: metrics,
		logger:  logger,
	}
}

// IsInCooldown reports whether the device's cooldown window extends past now
func (m *Manager) IsInCooldown(deviceID string) (bool, error) {
	device, err := m.devices.GetDevice(deviceID)
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown: %w", err)
	}
	if device == nil {
		return false, fmt.Errorf("unknown device: %s", deviceID)
	}
	return device.InCooldown(time.Now()), nil
}

// SelectNextDevice claims the best available device: active, out of
// cooldown, least recently used first, ties broken toward the lowest rate
// limit count. Returns nil when the pool is exhausted. Selection and claim
// happen under the manager's lock so two workers can never claim the same
// ordering slot concurrently.
func (m *Manager) SelectNextDevice() (*database.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	candidates, err := m.devices.ListAvailableDevices(now)
	if err != nil {
		return nil, fmt.Errorf("failed to list available devices: %w", err)
	}
	if m.metrics != nil {
		m.metrics.DevicesAvailable(len(candidates))
	}
	if len(candidates) == 0 {
		m.logger.Warn("No devices available for rotation")
		return nil, nil
	}

	selected := candidates[0]
	if err := m.devices.ClaimDevice(selected.ID, now); err != nil {
		return nil, fmt.Errorf("failed to claim device: %w", err)
	}
	selected.LastUsedAt = &now

	if m.current != "" && m.current != selected.ID {
		if m.metrics != nil {
			m.metrics.DeviceRotation()
		}
		m.logger.Info("Rotated to device", "device", selected.ID, "previous", m.current)
	} else {
		m.logger.Debug("Selected device", "device", selected.ID)
	}
	m.current = selected.ID

	return &selected, nil
}

// RecordFailure logs a throttling incident against a device: it appends the
// audit event and applies the kind's cooldown in one store transaction.
func (m *Manager) RecordFailure(deviceID string, kind FailureKind, details string) error {
	if len(details) > maxEventDetailLength {
		details = details[:maxEventDetailLength]
	}

	now := time.Now()
	event := database.RateLimitEvent{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		OccurredAt: now,
		Kind:       string(kind),
		Details:    details,
	}
	cooldownUntil := now.Add(CooldownFor(kind))

	if err := m.devices.ApplyCooldown(event, cooldownUntil); err != nil {
		return fmt.Errorf("failed to record rate limit failure: %w", err)
	}

	if m.metrics != nil {
		m.metrics.RateLimitEvent(string(kind))
	}
	m.logger.Warn("Rate limiting detected",
		"device", deviceID,
		"kind", kind,
		"cooldown_until", cooldownUntil.Format(time.RFC3339))

	return nil
}

// RecordOrdinaryFailure counts a non-throttling failure. No cooldown.
func (m *Manager) RecordOrdinaryFailure(deviceID string) error {
	if err := m.devices.UpdateDeviceUsage(deviceID, false, time.Now()); err != nil {
		return fmt.Errorf("failed to record ordinary failure: %w", err)
	}
	return nil
}

// RecordSuccess counts a confirmed successful fetch on a device.
func (m *Manager) RecordSuccess(deviceID string) error {
	if err := m.devices.UpdateDeviceUsage(deviceID, true, time.Now()); err != nil {
		return fmt.Errorf("failed to record success: %w", err)
	}
	return nil
}

// Status returns a read-only snapshot of the device pool.
func (m *Manager) Status() (*RotationStatus, error) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	devices, err := m.devices.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to get rotation status: %w", err)
	}

	now := time.Now()
	status := &RotationStatus{
		CurrentDevice: current,
		TotalDevices:  len(devices),
		Devices:       make([]DeviceDetail, 0, len(devices)),
	}

	for _, device := range devices {
		inCooldown := device.InCooldown(now)
		if device.Active && !inCooldown {
			status.AvailableDevices++
		}
		if inCooldown {
			status.DevicesInCooldown++
		}
		status.Devices = append(status.Devices, DeviceDetail{
			ID:             device.ID,
			Name:           device.Name,
			Kind:           device.Kind,
			Active:         device.Active,
			InCooldown:     inCooldown,
			CooldownUntil:  device.CooldownUntil,
			RateLimitCount: device.RateLimitCount,
			SuccessCount:   device.SuccessCount,
			FailureCount:   device.FailureCount,
			LastUsedAt:     device.LastUsedAt,
		})
	}

	if m.metrics != nil {
		m.metrics.DevicesAvailable(status.AvailableDevices)
	}

	return status, nil
}
