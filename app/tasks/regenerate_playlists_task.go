package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/varkas/cratedigger/app/playlist"
)

type RegeneratePlaylistsTask struct {
	Task
	generator *playlist.Generator
}

func NewRegeneratePlaylistsTask(generator *playlist.Generator) *RegeneratePlaylistsTask {
	return &RegeneratePlaylistsTask{
		Task:      NewTask(TaskTypeRegeneratePlaylists, ""),
		generator: generator,
	}
}

func (t *RegeneratePlaylistsTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.generator.Run(); err != nil {
		return fmt.Errorf("failed to regenerate playlists: %w", err)
	}

	slog.Info("Task completed",
		"type", "RegeneratePlaylists",
		"duration", t.GetDuration())

	return nil
}
