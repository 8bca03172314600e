package api

import (
	"net/http"

	"github.com/varkas/cratedigger/app/database"
	"github.com/varkas/cratedigger/app/playlist"
	"github.com/varkas/cratedigger/app/ratelimit"
	"github.com/varkas/cratedigger/app/source"
	"github.com/varkas/cratedigger/app/tasks"
)

// HarvestScheduler is the slice of the task scheduler the API layer needs:
// enqueueing individual tasks plus the bulk harvest trigger.
type HarvestScheduler interface {
	EnqueueTask(task tasks.TaskInterface) error
	EnqueueAllSources() int
}

type Handler struct {
	configCache    *source.ConfigCache
	trackRepo      database.TrackRepository
	deviceRepo     database.DeviceRepository
	syncRepo       database.SyncRepository
	statsReader    database.StatsReader
	rotation       *ratelimit.Manager
	generator      *playlist.Generator
	scheduler      HarvestScheduler
	metricsHandler http.Handler
	harvestDir     string
}
