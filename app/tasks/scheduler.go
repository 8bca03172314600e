package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/varkas/cratedigger/app/cfg"
	"github.com/varkas/cratedigger/app/database"
	"github.com/varkas/cratedigger/app/harvest"
	"github.com/varkas/cratedigger/app/playlist"
	"github.com/varkas/cratedigger/app/source"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// A whole batch can legitimately take a long time when every item walks the
// quality ladder, so the per-task timeout is generous.
const taskTimeout = 2 * time.Hour

type Scheduler struct {
	configCache  *source.ConfigCache
	providers    *source.Providers
	filterer     *source.Filterer
	orchestrator *harvest.Orchestrator
	generator    *playlist.Generator
	trackRepo    database.TrackRepository
	harvestDir   string
	interval     time.Duration
	workerCount  int
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan TaskInterface
}

func NewScheduler(configCache *source.ConfigCache, providers *source.Providers,
	filterer *source.Filterer, orchestrator *harvest.Orchestrator,
	generator *playlist.Generator, trackRepo database.TrackRepository) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		configCache:  configCache,
		providers:    providers,
		filterer:     filterer,
		orchestrator: orchestrator,
		generator:    generator,
		trackRepo:    trackRepo,
		harvestDir:   cfg.HarvestDir,
		interval:     time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount:  cfg.WorkerCount,
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueHarvestTasks()
			}
		}
	}()

}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// EnqueueAllSources enqueues a harvest task for every enabled source. The API
// layer uses this for on-demand harvest triggering.
func (s *Scheduler) EnqueueAllSources() int {
	return s.enqueueHarvestTasks()
}

func (s *Scheduler) enqueueStartupTasks() {
	sourceConfigs := s.configCache.GetConfigs()
	if len(sourceConfigs) == 0 {
		slog.Debug("No source configurations found")
		return
	}

	slog.Debug("Processing source configurations", "count", len(sourceConfigs))

	importTask := NewImportLibraryTask(s.trackRepo, s.harvestDir)
	if err := s.EnqueueTask(importTask); err != nil {
		slog.Warn("Failed to enqueue ImportLibraryTask", "error", err)
	}

	s.enqueueHarvestTasks()
}

func (s *Scheduler) enqueueHarvestTasks() int {
	sourceConfigs := s.configCache.GetEnabledConfigs()
	if len(sourceConfigs) == 0 {
		slog.Debug("No enabled source configurations found")
		return 0
	}

	slog.Debug("Processing enabled source configurations for task scheduling", "count", len(sourceConfigs))

	enqueued := 0
	for _, sourceConfig := range sourceConfigs {
		harvestTask := NewHarvestSourceTask(sourceConfig.Name, sourceConfig, s.providers, s.filterer, s.orchestrator, s.generator, s)
		if err := s.EnqueueTask(harvestTask); err != nil {
			slog.Warn("Failed to enqueue HarvestSourceTask", "source", sourceConfig.Name, "error", err)
			continue
		}
		enqueued++
	}

	return enqueued
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "source", task.GetSourceName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
