package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API layer to manage background task
// processing. Harvest tasks also use it to chain follow-up work, playlist
// regeneration after a batch lands new files.
// Example usage:
//
//	scheduler := NewScheduler(configCache, providers, filterer, orchestrator, generator, trackRepo)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewImportLibraryTask(trackRepo, harvestDir))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
