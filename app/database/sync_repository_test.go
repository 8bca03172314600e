package database

import (
	"testing"
)

func TestUpsertSyncRecordOneRowPerPair(t *testing.T) {
	db := newTestDB(t)
	deviceRepo := NewDeviceRepository(db)
	trackRepo := NewTrackRepository(db)
	repo := NewSyncRepository(db)

	if err := deviceRepo.RegisterDevice("phone", "Phone", "mobile"); err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}
	if err := trackRepo.UpsertTrack(Track{ID: "vid1", Title: "Song", Filename: "00001.mp3"}); err != nil {
		t.Fatalf("UpsertTrack failed: %v", err)
	}

	record := SyncRecord{DeviceID: "phone", TrackID: "vid1", Status: SyncStatusPending}
	if err := repo.UpsertSyncRecord(record); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	dest := "/mnt/music/00001.mp3"
	record.Status = SyncStatusSynced
	record.DestinationPath = &dest
	if err := repo.UpsertSyncRecord(record); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	counts, err := repo.GetSyncStatusCounts()
	if err != nil {
		t.Fatalf("GetSyncStatusCounts failed: %v", err)
	}
	if counts[SyncStatusPending] != 0 {
		t.Errorf("Expected 0 pending records, got %d", counts[SyncStatusPending])
	}
	if counts[SyncStatusSynced] != 1 {
		t.Errorf("Expected 1 synced record, got %d", counts[SyncStatusSynced])
	}

	records, err := repo.ListSyncRecordsByStatus(SyncStatusSynced, 10)
	if err != nil {
		t.Fatalf("ListSyncRecordsByStatus failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 synced record, got %d", len(records))
	}
	if records[0].DestinationPath == nil || *records[0].DestinationPath != dest {
		t.Errorf("Expected destination path '%s', got %v", dest, records[0].DestinationPath)
	}
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	deviceRepo := NewDeviceRepository(db)
	trackRepo := NewTrackRepository(db)
	syncRepo := NewSyncRepository(db)
	stats := NewStatsRepository(db)

	size := int64(1000)
	for _, id := range []string{"a", "b"} {
		track := Track{ID: id, Title: id, Filename: id + ".mp3", FileSize: &size}
		if err := trackRepo.UpsertTrack(track); err != nil {
			t.Fatalf("UpsertTrack failed: %v", err)
		}
	}
	if err := deviceRepo.RegisterDevice("phone", "Phone", "mobile"); err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}
	if err := deviceRepo.RegisterDevice("tablet", "Tablet", "mobile"); err != nil {
		t.Fatalf("RegisterDevice failed: %v", err)
	}
	if err := deviceRepo.SetDeviceActive("tablet", false); err != nil {
		t.Fatalf("SetDeviceActive failed: %v", err)
	}
	if err := syncRepo.UpsertSyncRecord(SyncRecord{DeviceID: "phone", TrackID: "a", Status: SyncStatusPending}); err != nil {
		t.Fatalf("UpsertSyncRecord failed: %v", err)
	}

	got, err := stats.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if got.TotalTracks != 2 {
		t.Errorf("Expected 2 total tracks, got %d", got.TotalTracks)
	}
	if got.RecentTracks != 2 {
		t.Errorf("Expected 2 recent tracks, got %d", got.RecentTracks)
	}
	if got.TotalBytes != 2000 {
		t.Errorf("Expected 2000 total bytes, got %d", got.TotalBytes)
	}
	if got.TotalDevices != 2 {
		t.Errorf("Expected 2 devices, got %d", got.TotalDevices)
	}
	if got.ActiveDevices != 1 {
		t.Errorf("Expected 1 active device, got %d", got.ActiveDevices)
	}
	if got.SyncCounts[SyncStatusPending] != 1 {
		t.Errorf("Expected 1 pending sync record, got %d", got.SyncCounts[SyncStatusPending])
	}
}
