package database

import (
	"testing"
	"time"
)

func TestRegisterDeviceIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db)

	if err := repo.RegisterDevice("laptop", "Old Name", "desktop"); err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}

	// Accumulate state that must survive re-registration
	now := time.Now()
	if err := repo.UpdateDeviceUsage("laptop", true, now); err != nil {
		t.Fatalf("UpdateDeviceUsage failed: %v", err)
	}
	event := RateLimitEvent{ID: "evt-1", DeviceID: "laptop", OccurredAt: now, Kind: "too_many_requests"}
	if err := repo.ApplyCooldown(event, now.Add(30*time.Minute)); err != nil {
		t.Fatalf("ApplyCooldown failed: %v", err)
	}
	if err := repo.SetDeviceActive("laptop", false); err != nil {
		t.Fatalf("SetDeviceActive failed: %v", err)
	}

	if err := repo.RegisterDevice("laptop", "New Name", "laptop"); err != nil {
		t.Fatalf("Re-registration failed: %v", err)
	}

	device, err := repo.GetDevice("laptop")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if device == nil {
		t.Fatal("Expected device, got nil")
	}
	if device.Name != "New Name" {
		t.Errorf("Expected name refreshed to 'New Name', got '%s'", device.Name)
	}
	if device.Kind != "laptop" {
		t.Errorf("Expected kind refreshed to 'laptop', got '%s'", device.Kind)
	}
	if device.SuccessCount != 1 {
		t.Errorf("Expected success count 1 to survive re-registration, got %d", device.SuccessCount)
	}
	if device.RateLimitCount != 1 {
		t.Errorf("Expected rate limit count 1 to survive re-registration, got %d", device.RateLimitCount)
	}
	if device.CooldownUntil == nil {
		t.Error("Expected cooldown to survive re-registration")
	}
	if device.Active {
		t.Error("Expected deactivation to survive re-registration")
	}
}

func TestListAvailableDevicesOrdering(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db)

	now := time.Now()
	for _, id := range []string{"never-used", "used-early", "used-late"} {
		if err := repo.RegisterDevice(id, id, "desktop"); err != nil {
			t.Fatalf("RegisterDevice failed: %v", err)
		}
	}
	if err := repo.ClaimDevice("used-early", now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("ClaimDevice failed: %v", err)
	}
	if err := repo.ClaimDevice("used-late", now.Add(-1*time.Hour)); err != nil {
		t.Fatalf("ClaimDevice failed: %v", err)
	}

	devices, err := repo.ListAvailableDevices(now)
	if err != nil {
		t.Fatalf("ListAvailableDevices failed: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("Expected 3 available devices, got %d", len(devices))
	}
	expected := []string{"never-used", "used-early", "used-late"}
	for i, id := range expected {
		if devices[i].ID != id {
			t.Errorf("Expected device %d to be '%s', got '%s'", i, id, devices[i].ID)
		}
	}
}

func TestListAvailableDevicesRateLimitTiebreak(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db)

	now := time.Now()
	for _, id := range []string{"throttled", "clean"} {
		if err := repo.RegisterDevice(id, id, "desktop"); err != nil {
			t.Fatalf("RegisterDevice failed: %v", err)
		}
	}

	// Same never-used last_used_at; throttled picks up a rate limit count but
	// its cooldown already expired
	event := RateLimitEvent{ID: "evt-1", DeviceID: "throttled", OccurredAt: now.Add(-2 * time.Hour), Kind: "too_many_requests"}
	if err := repo.ApplyCooldown(event, now.Add(-90*time.Minute)); err != nil {
		t.Fatalf("ApplyCooldown failed: %v", err)
	}

	devices, err := repo.ListAvailableDevices(now)
	if err != nil {
		t.Fatalf("ListAvailableDevices failed: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Expected 2 available devices, got %d", len(devices))
	}
	if devices[0].ID != "clean" {
		t.Errorf("Expected 'clean' to sort before 'throttled' on rate limit count, got '%s'", devices[0].ID)
	}
}

func TestListAvailableDevicesSkipsCooldownAndInactive(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db)

	now := time.Now()
	for _, id := range []string{"ready", "cooling", "disabled"} {
		if err := repo.RegisterDevice(id, id, "desktop"); err != nil {
			t.Fatalf("RegisterDevice failed: %v", err)
		}
	}

	event := RateLimitEvent{ID: "evt-1", DeviceID: "cooling", OccurredAt: now, Kind: "forbidden"}
	if err := repo.ApplyCooldown(event, now.Add(time.Hour)); err != nil {
		t.Fatalf("ApplyCooldown failed: %v", err)
	}
	if err := repo.SetDeviceActive("disabled", false); err != nil {
		t.Fatalf("SetDeviceActive failed: %v", err)
	}

	devices, err := repo.ListAvailableDevices(now)
	if err != nil {
		t.Fatalf("ListAvailableDevices failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Expected 1 available device, got %d", len(devices))
	}
	if devices[0].ID != "ready" {
		t.Errorf("Expected 'ready', got '%s'", devices[0].ID)
	}

	// An expired cooldown makes the device selectable again
	devices, err = repo.ListAvailableDevices(now.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("ListAvailableDevices failed: %v", err)
	}
	if len(devices) != 2 {
		t.Errorf("Expected 2 available devices after cooldown expiry, got %d", len(devices))
	}
}

func TestApplyCooldownWritesEventAndDeviceTogether(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db)

	if err := repo.RegisterDevice("phone", "Phone", "mobile"); err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}

	now := time.Now()
	event := RateLimitEvent{
		ID:         "evt-uuid",
		DeviceID:   "phone",
		OccurredAt: now,
		Kind:       "quota_exceeded",
		Details:    "HTTP Error 429: quota exceeded",
	}
	until := now.Add(120 * time.Minute)
	if err := repo.ApplyCooldown(event, until); err != nil {
		t.Fatalf("ApplyCooldown failed: %v", err)
	}

	device, err := repo.GetDevice("phone")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if device.RateLimitCount != 1 {
		t.Errorf("Expected rate limit count 1, got %d", device.RateLimitCount)
	}
	if device.CooldownUntil == nil {
		t.Fatal("Expected cooldown to be set")
	}
	if device.CooldownUntil.Sub(now).Round(time.Minute) != 120*time.Minute {
		t.Errorf("Expected 120 minute cooldown, got %v", device.CooldownUntil.Sub(now))
	}
	if device.LastRateLimitAt == nil {
		t.Fatal("Expected last rate limit timestamp to be set")
	}
	if device.CooldownUntil.Before(*device.LastRateLimitAt) {
		t.Error("Cooldown must not end before the rate limit that produced it")
	}

	events, err := repo.GetRecentRateLimitEvents(10)
	if err != nil {
		t.Fatalf("GetRecentRateLimitEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 rate limit event, got %d", len(events))
	}
	if events[0].Kind != "quota_exceeded" {
		t.Errorf("Expected kind 'quota_exceeded', got '%s'", events[0].Kind)
	}
	if events[0].Resolved {
		t.Error("Expected new event to be unresolved")
	}
}

func TestResolveRateLimitEvents(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db)

	if err := repo.RegisterDevice("phone", "Phone", "mobile"); err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}

	now := time.Now()
	for i, id := range []string{"evt-1", "evt-2"} {
		event := RateLimitEvent{ID: id, DeviceID: "phone", OccurredAt: now.Add(time.Duration(i) * time.Minute), Kind: "forbidden"}
		if err := repo.ApplyCooldown(event, now.Add(time.Hour)); err != nil {
			t.Fatalf("ApplyCooldown failed: %v", err)
		}
	}

	resolved, err := repo.ResolveRateLimitEvents("phone")
	if err != nil {
		t.Fatalf("ResolveRateLimitEvents failed: %v", err)
	}
	if resolved != 2 {
		t.Errorf("Expected 2 events resolved, got %d", resolved)
	}

	// Second call finds nothing left to resolve
	resolved, err = repo.ResolveRateLimitEvents("phone")
	if err != nil {
		t.Fatalf("ResolveRateLimitEvents failed: %v", err)
	}
	if resolved != 0 {
		t.Errorf("Expected 0 events resolved on second call, got %d", resolved)
	}
}

func TestUpdateDeviceUsage(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db)

	if err := repo.RegisterDevice("pi", "Pi", "sbc"); err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}

	now := time.Now()
	if err := repo.UpdateDeviceUsage("pi", true, now); err != nil {
		t.Fatalf("UpdateDeviceUsage failed: %v", err)
	}
	if err := repo.UpdateDeviceUsage("pi", false, now); err != nil {
		t.Fatalf("UpdateDeviceUsage failed: %v", err)
	}

	device, err := repo.GetDevice("pi")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if device.SuccessCount != 1 {
		t.Errorf("Expected success count 1, got %d", device.SuccessCount)
	}
	if device.FailureCount != 1 {
		t.Errorf("Expected failure count 1, got %d", device.FailureCount)
	}
	if device.LastUsedAt == nil {
		t.Error("Expected last used timestamp after success")
	}
}

func TestSetDeviceActiveUnknownDevice(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db)

	if err := repo.SetDeviceActive("ghost", false); err == nil {
		t.Error("Expected error for unknown device")
	}
}

func TestReactivateClearsCooldown(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db)

	if err := repo.RegisterDevice("tablet", "Tablet", "mobile"); err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}

	now := time.Now()
	event := RateLimitEvent{ID: "evt-1", DeviceID: "tablet", OccurredAt: now, Kind: "too_many_requests"}
	if err := repo.ApplyCooldown(event, now.Add(30*time.Minute)); err != nil {
		t.Fatalf("ApplyCooldown failed: %v", err)
	}
	if err := repo.SetDeviceActive("tablet", false); err != nil {
		t.Fatalf("SetDeviceActive failed: %v", err)
	}

	device, err := repo.GetDevice("tablet")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if device.CooldownUntil == nil {
		t.Fatal("Expected cooldown to survive deactivation")
	}

	if err := repo.SetDeviceActive("tablet", true); err != nil {
		t.Fatalf("SetDeviceActive failed: %v", err)
	}

	device, err = repo.GetDevice("tablet")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if !device.Active {
		t.Error("Expected device to be active after reactivation")
	}
	if device.CooldownUntil != nil {
		t.Error("Expected reactivation to clear the cooldown")
	}
	if device.RateLimitCount != 1 {
		t.Errorf("Expected rate limit count to survive reactivation, got %d", device.RateLimitCount)
	}
}
