package ratelimit

import (
	"strings"
	"testing"
	"time"

	"github.com/varkas/cratedigger/app/database"
)

type metricsStub struct {
	events    map[string]int
	rotations int
	available int
}

func newMetricsStub() *metricsStub {
	return &metricsStub{events: make(map[string]int)}
}

func (s *metricsStub) RateLimitEvent(kind string) { s.events[kind]++ }
func (s *metricsStub) DeviceRotation()            { s.rotations++ }
func (s *metricsStub) DevicesAvailable(n int)     { s.available = n }

func newTestDevices(t *testing.T, ids ...string) database.DeviceRepository {
	t.Helper()

	db, err := database.NewConnection(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	repo := database.NewDeviceRepository(db)
	for _, id := range ids {
		if err := repo.RegisterDevice(id, id, "desktop"); err != nil {
			t.Fatalf("Failed to register device %s: %v", id, err)
		}
	}
	return repo
}

func TestSelectNextDevicePrefersLeastRecentlyUsed(t *testing.T) {
	repo := newTestDevices(t, "alpha", "beta")
	manager := NewManager(repo, nil, nil)

	now := time.Now()
	if err := repo.ClaimDevice("alpha", now.Add(-time.Hour)); err != nil {
		t.Fatalf("ClaimDevice failed: %v", err)
	}

	// beta has never been used, so it sorts first
	device, err := manager.SelectNextDevice()
	if err != nil {
		t.Fatalf("SelectNextDevice failed: %v", err)
	}
	if device == nil {
		t.Fatal("Expected a device, got nil")
	}
	if device.ID != "beta" {
		t.Errorf("Expected never-used 'beta' to be selected, got '%s'", device.ID)
	}

	// beta is now the most recently used; next selection flips to alpha
	device, err = manager.SelectNextDevice()
	if err != nil {
		t.Fatalf("SelectNextDevice failed: %v", err)
	}
	if device.ID != "alpha" {
		t.Errorf("Expected 'alpha' on second selection, got '%s'", device.ID)
	}
}

func TestSelectNextDeviceClaimDoesNotCountSuccess(t *testing.T) {
	repo := newTestDevices(t, "alpha")
	manager := NewManager(repo, nil, nil)

	device, err := manager.SelectNextDevice()
	if err != nil {
		t.Fatalf("SelectNextDevice failed: %v", err)
	}
	if device == nil {
		t.Fatal("Expected a device, got nil")
	}

	stored, err := repo.GetDevice("alpha")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if stored.SuccessCount != 0 {
		t.Errorf("Claiming must not count a success, got success count %d", stored.SuccessCount)
	}
	if stored.LastUsedAt == nil {
		t.Error("Expected claim to set last used timestamp")
	}
}

func TestSelectNextDeviceSkipsCooldown(t *testing.T) {
	repo := newTestDevices(t, "alpha", "beta")
	manager := NewManager(repo, nil, nil)

	if err := manager.RecordFailure("beta", TooManyRequests, "HTTP 429"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	device, err := manager.SelectNextDevice()
	if err != nil {
		t.Fatalf("SelectNextDevice failed: %v", err)
	}
	if device == nil {
		t.Fatal("Expected a device, got nil")
	}
	if device.ID != "alpha" {
		t.Errorf("Expected cooling 'beta' to be skipped, got '%s'", device.ID)
	}

	inCooldown, err := manager.IsInCooldown("beta")
	if err != nil {
		t.Fatalf("IsInCooldown failed: %v", err)
	}
	if !inCooldown {
		t.Error("Expected 'beta' to be in cooldown")
	}
}

func TestSelectNextDeviceExhaustedPool(t *testing.T) {
	repo := newTestDevices(t, "alpha")
	manager := NewManager(repo, nil, nil)

	if err := manager.RecordFailure("alpha", Forbidden, "403"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	device, err := manager.SelectNextDevice()
	if err != nil {
		t.Fatalf("SelectNextDevice failed: %v", err)
	}
	if device != nil {
		t.Errorf("Expected nil for exhausted pool, got '%s'", device.ID)
	}
}

func TestRecordFailureAppliesKindCooldown(t *testing.T) {
	repo := newTestDevices(t, "alpha")
	metrics := newMetricsStub()
	manager := NewManager(repo, metrics, nil)

	before := time.Now()
	if err := manager.RecordFailure("alpha", QuotaExceeded, "quota exceeded"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	device, err := repo.GetDevice("alpha")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if device.CooldownUntil == nil {
		t.Fatal("Expected cooldown to be set")
	}
	remaining := device.CooldownUntil.Sub(before)
	if remaining < 119*time.Minute || remaining > 121*time.Minute {
		t.Errorf("Expected roughly 120 minute cooldown for quota exhaustion, got %v", remaining)
	}
	if device.RateLimitCount != 1 {
		t.Errorf("Expected rate limit count 1, got %d", device.RateLimitCount)
	}

	events, err := repo.GetRecentRateLimitEvents(10)
	if err != nil {
		t.Fatalf("GetRecentRateLimitEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 audit event, got %d", len(events))
	}
	if events[0].Kind != string(QuotaExceeded) {
		t.Errorf("Expected event kind '%s', got '%s'", QuotaExceeded, events[0].Kind)
	}
	if metrics.events[string(QuotaExceeded)] != 1 {
		t.Errorf("Expected 1 quota metric event, got %d", metrics.events[string(QuotaExceeded)])
	}
}

func TestRecordFailureTruncatesDetails(t *testing.T) {
	repo := newTestDevices(t, "alpha")
	manager := NewManager(repo, nil, nil)

	long := strings.Repeat("x", 800)
	if err := manager.RecordFailure("alpha", GenericFailure, long); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	events, err := repo.GetRecentRateLimitEvents(1)
	if err != nil {
		t.Fatalf("GetRecentRateLimitEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if len(events[0].Details) != maxEventDetailLength {
		t.Errorf("Expected details truncated to %d characters, got %d", maxEventDetailLength, len(events[0].Details))
	}
}

func TestRecordSuccessAndOrdinaryFailure(t *testing.T) {
	repo := newTestDevices(t, "alpha")
	manager := NewManager(repo, nil, nil)

	if err := manager.RecordSuccess("alpha"); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}
	if err := manager.RecordOrdinaryFailure("alpha"); err != nil {
		t.Fatalf("RecordOrdinaryFailure failed: %v", err)
	}

	device, err := repo.GetDevice("alpha")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if device.SuccessCount != 1 {
		t.Errorf("Expected success count 1, got %d", device.SuccessCount)
	}
	if device.FailureCount != 1 {
		t.Errorf("Expected failure count 1, got %d", device.FailureCount)
	}
	if device.CooldownUntil != nil {
		t.Error("Ordinary failures must not apply a cooldown")
	}
	if device.RateLimitCount != 0 {
		t.Errorf("Ordinary failures must not count as rate limits, got %d", device.RateLimitCount)
	}
}

func TestRotationMetricCountsDeviceSwitches(t *testing.T) {
	repo := newTestDevices(t, "alpha", "beta")
	metrics := newMetricsStub()
	manager := NewManager(repo, metrics, nil)

	first, err := manager.SelectNextDevice()
	if err != nil {
		t.Fatalf("SelectNextDevice failed: %v", err)
	}
	if metrics.rotations != 0 {
		t.Errorf("Initial selection is not a rotation, got %d", metrics.rotations)
	}

	if err := manager.RecordFailure(first.ID, ConnectionTimeout, "timeout"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	second, err := manager.SelectNextDevice()
	if err != nil {
		t.Fatalf("SelectNextDevice failed: %v", err)
	}
	if second == nil || second.ID == first.ID {
		t.Fatalf("Expected a different device after cooldown, got %+v", second)
	}
	if metrics.rotations != 1 {
		t.Errorf("Expected 1 rotation, got %d", metrics.rotations)
	}
}

func TestRotationStatusSnapshot(t *testing.T) {
	repo := newTestDevices(t, "alpha", "beta", "gamma")
	metrics := newMetricsStub()
	manager := NewManager(repo, metrics, nil)

	if err := manager.RecordFailure("beta", ServiceUnavailable, "503"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if err := repo.SetDeviceActive("gamma", false); err != nil {
		t.Fatalf("SetDeviceActive failed: %v", err)
	}

	device, err := manager.SelectNextDevice()
	if err != nil {
		t.Fatalf("SelectNextDevice failed: %v", err)
	}
	if device.ID != "alpha" {
		t.Fatalf("Expected 'alpha' selected, got '%s'", device.ID)
	}

	status, err := manager.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.CurrentDevice != "alpha" {
		t.Errorf("Expected current device 'alpha', got '%s'", status.CurrentDevice)
	}
	if status.TotalDevices != 3 {
		t.Errorf("Expected 3 total devices, got %d", status.TotalDevices)
	}
	if status.AvailableDevices != 1 {
		t.Errorf("Expected 1 available device, got %d", status.AvailableDevices)
	}
	if status.DevicesInCooldown != 1 {
		t.Errorf("Expected 1 device in cooldown, got %d", status.DevicesInCooldown)
	}
	if len(status.Devices) != 3 {
		t.Errorf("Expected 3 device details, got %d", len(status.Devices))
	}
	if metrics.available != 1 {
		t.Errorf("Expected available gauge 1, got %d", metrics.available)
	}
}
