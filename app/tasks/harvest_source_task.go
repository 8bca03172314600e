package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/varkas/cratedigger/app/harvest"
	"github.com/varkas/cratedigger/app/playlist"
	"github.com/varkas/cratedigger/app/source"
)

type HarvestSourceTask struct {
	Task
	SourceConfig *source.Config
	providers    *source.Providers
	filterer     *source.Filterer
	orchestrator *harvest.Orchestrator
	generator    *playlist.Generator
	scheduler    TaskSchedulerInterface
}

func NewHarvestSourceTask(sourceName string, sourceConfig *source.Config, providers *source.Providers, filterer *source.Filterer, orchestrator *harvest.Orchestrator, generator *playlist.Generator, scheduler TaskSchedulerInterface) *HarvestSourceTask {
	return &HarvestSourceTask{
		Task:         NewTask(TaskTypeHarvestSource, sourceName),
		SourceConfig: sourceConfig,
		providers:    providers,
		filterer:     filterer,
		orchestrator: orchestrator,
		generator:    generator,
		scheduler:    scheduler,
	}
}

func (t *HarvestSourceTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.SourceConfig.Settings.Enabled {
		slog.Debug("Source disabled, skipping", "source", t.SourceName)
		return nil
	}

	provider, err := t.providers.For(t.SourceConfig)
	if err != nil {
		return fmt.Errorf("failed to resolve provider: %w", err)
	}

	candidates, err := provider.List(ctx, t.SourceConfig)
	if err != nil {
		return fmt.Errorf("failed to list source: %w", err)
	}

	listed := len(candidates)
	candidates = t.filterer.Run(candidates, t.SourceConfig)

	result, err := t.orchestrator.HarvestBatch(ctx, harvest.Batch{
		Source:        t.SourceName,
		Candidates:    candidates,
		QualityLadder: t.SourceConfig.Settings.QualityLadder,
	})
	if err != nil {
		return fmt.Errorf("failed to harvest source: %w", err)
	}

	slog.Info("Task completed",
		"type", "HarvestSource",
		"source", t.SourceName,
		"duration", t.GetDuration(),
		"listed", listed,
		"filtered", listed-len(candidates),
		"deduplicated", result.Deduplicated,
		"succeeded", result.Succeeded,
		"skipped", result.Skipped,
		"failed", result.Failed)

	if result.Succeeded > 0 && t.scheduler != nil && t.generator != nil {
		regenerateTask := NewRegeneratePlaylistsTask(t.generator)
		if err := t.scheduler.EnqueueTask(regenerateTask); err != nil {
			slog.Warn("Failed to enqueue RegeneratePlaylistsTask", "source", t.SourceName, "error", err)
		}
	}

	return nil
}
