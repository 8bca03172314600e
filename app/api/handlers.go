package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/varkas/cratedigger/app/database"
	"github.com/varkas/cratedigger/app/playlist"
	"github.com/varkas/cratedigger/app/ratelimit"
	"github.com/varkas/cratedigger/app/source"
	"github.com/varkas/cratedigger/app/tasks"
)

func NewHandler(configCache *source.ConfigCache, trackRepo database.TrackRepository,
	deviceRepo database.DeviceRepository, syncRepo database.SyncRepository,
	statsReader database.StatsReader, rotation *ratelimit.Manager,
	generator *playlist.Generator, scheduler HarvestScheduler,
	metricsHandler http.Handler, harvestDir string) *Handler {
	return &Handler{
		configCache:    configCache,
		trackRepo:      trackRepo,
		deviceRepo:     deviceRepo,
		syncRepo:       syncRepo,
		statsReader:    statsReader,
		rotation:       rotation,
		generator:      generator,
		scheduler:      scheduler,
		metricsHandler: metricsHandler,
		harvestDir:     harvestDir,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if trackCount, err := h.trackRepo.GetTrackCount(); err == nil {
		health["tracks"] = trackCount
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.statsReader.Stats()
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"total_tracks":   stats.TotalTracks,
		"recent_tracks":  stats.RecentTracks,
		"total_bytes":    stats.TotalBytes,
		"total_size_mb":  float64(stats.TotalBytes) / (1024 * 1024),
		"active_devices": stats.ActiveDevices,
		"total_devices":  stats.TotalDevices,
		"sync":           stats.SyncCounts,
	})
}

func (h *Handler) GetRotation(c *gin.Context) {
	status, err := h.rotation.Status()
	if err != nil {
		slog.Error("Rotation status error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read rotation status"})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) APIListDevices(c *gin.Context) {
	deviceList, err := h.deviceRepo.ListDevices()
	if err != nil {
		slog.Error("Database error", "operation", "list_devices", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	now := time.Now()
	devices := make([]map[string]interface{}, 0, len(deviceList))

	for _, device := range deviceList {
		deviceInfo := map[string]interface{}{
			"id":               device.ID,
			"name":             device.Name,
			"kind":             device.Kind,
			"active":           device.Active,
			"in_cooldown":      device.InCooldown(now),
			"rate_limit_count": device.RateLimitCount,
			"success_count":    device.SuccessCount,
			"failure_count":    device.FailureCount,
			"success_rate":     successRate(device),
		}

		if device.LastUsedAt != nil {
			deviceInfo["last_used_at"] = device.LastUsedAt
		}
		if device.CooldownUntil != nil {
			deviceInfo["cooldown_until"] = device.CooldownUntil
		}

		devices = append(devices, deviceInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   len(devices),
	})
}

func (h *Handler) APIDeactivateDevice(c *gin.Context) {
	h.setDeviceActive(c, false)
}

func (h *Handler) APIReactivateDevice(c *gin.Context) {
	h.setDeviceActive(c, true)
}

func (h *Handler) setDeviceActive(c *gin.Context, active bool) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing device id parameter"})
		return
	}

	device, err := h.deviceRepo.GetDevice(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_device", "device", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if device == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
		return
	}

	if err := h.deviceRepo.SetDeviceActive(id, active); err != nil {
		slog.Error("Database error", "operation", "set_device_active", "device", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Device status changed", "device", id, "active", active)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"device":  id,
		"active":  active,
	})
}

func (h *Handler) APIRecentTracks(c *gin.Context) {
	days := 7
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days parameter"})
			return
		}
		days = parsed
	}

	since := time.Now().AddDate(0, 0, -days)
	trackList, err := h.trackRepo.GetRecentTracks(since)
	if err != nil {
		slog.Error("Database error", "operation", "get_recent_tracks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	trackInfos := make([]map[string]interface{}, 0, len(trackList))
	for _, track := range trackList {
		trackInfo := map[string]interface{}{
			"id":            track.ID,
			"title":         track.Title,
			"artist":        track.Artist,
			"filename":      track.Filename,
			"quality":       track.Quality,
			"downloaded_at": track.DownloadedAt,
		}
		if track.FileSize != nil {
			trackInfo["file_size"] = *track.FileSize
		}
		if track.DurationSeconds != nil {
			trackInfo["duration_seconds"] = *track.DurationSeconds
		}
		trackInfos = append(trackInfos, trackInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"tracks": trackInfos,
		"total":  len(trackInfos),
		"days":   days,
	})
}

func (h *Handler) APIGetSync(c *gin.Context) {
	counts, err := h.syncRepo.GetSyncStatusCounts()
	if err != nil {
		slog.Error("Database error", "operation", "get_sync_counts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	pending, err := h.syncRepo.ListSyncRecordsByStatus(database.SyncStatusPending, 50)
	if err != nil {
		slog.Error("Database error", "operation", "list_pending_sync", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	pendingInfos := make([]map[string]interface{}, 0, len(pending))
	for _, record := range pending {
		pendingInfos = append(pendingInfos, map[string]interface{}{
			"device_id":  record.DeviceID,
			"track_id":   record.TrackID,
			"updated_at": record.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"counts":  counts,
		"pending": pendingInfos,
	})
}

func (h *Handler) APITriggerHarvest(c *gin.Context) {
	enqueued := h.scheduler.EnqueueAllSources()

	slog.Info("Harvest triggered via API", "sources", enqueued)

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Harvest tasks enqueued",
		"sources": enqueued,
	})
}

func (h *Handler) APIRegeneratePlaylists(c *gin.Context) {
	task := tasks.NewRegeneratePlaylistsTask(h.generator)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing playlist task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue playlist task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

func (h *Handler) APIImportLibrary(c *gin.Context) {
	task := tasks.NewImportLibraryTask(h.trackRepo, h.harvestDir)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing import task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue import task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

// Metrics serves the Prometheus scrape endpoint.
func (h *Handler) Metrics(c *gin.Context) {
	h.metricsHandler.ServeHTTP(c.Writer, c.Request)
}

func successRate(device database.Device) float64 {
	total := device.SuccessCount + device.FailureCount
	if total == 0 {
		return 0
	}
	return float64(device.SuccessCount) / float64(total)
}
