package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/varkas/cratedigger/app/api"
	"github.com/varkas/cratedigger/app/cfg"
	"github.com/varkas/cratedigger/app/database"
	"github.com/varkas/cratedigger/app/fetch"
	"github.com/varkas/cratedigger/app/harvest"
	"github.com/varkas/cratedigger/app/metrics"
	"github.com/varkas/cratedigger/app/playlist"
	"github.com/varkas/cratedigger/app/ratelimit"
	"github.com/varkas/cratedigger/app/source"
	"github.com/varkas/cratedigger/app/syncer"
	"github.com/varkas/cratedigger/app/tag"
	"github.com/varkas/cratedigger/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogging(appCfg.Debug)

	slog.Info("Starting cratedigger", "version", appCfg.Version)

	if appCfg.AutoInstallYtdlp {
		slog.Info("Ensuring yt-dlp is available")
		if err := fetch.Install(context.Background()); err != nil {
			slog.Error("Failed to install yt-dlp", "error", err)
			os.Exit(1)
		}
	}

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrationVersion, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	if dirty {
		slog.Warn("Database migration state is dirty", "version", migrationVersion)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "migration_version", migrationVersion)

	trackRepo := database.NewTrackRepository(db)
	deviceRepo := database.NewDeviceRepository(db)
	syncRepo := database.NewSyncRepository(db)
	statsReader := database.NewStatsRepository(db)

	pool, err := ratelimit.LoadDevicePool(appCfg.DevicesFile)
	if err != nil {
		slog.Error("Failed to load device pool", "path", appCfg.DevicesFile, "error", err)
		os.Exit(1)
	}
	if err := ratelimit.RegisterPool(pool, deviceRepo, nil); err != nil {
		slog.Error("Failed to register device pool", "error", err)
		os.Exit(1)
	}

	configCache := source.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "dir", appCfg.SourcesDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Source configurations loaded", "count", configCache.GetConfigCount())

	appMetrics := metrics.New()
	rotation := ratelimit.NewManager(deviceRepo, appMetrics, nil)
	fetcher := fetch.NewYtdlpFetcher(nil)
	tagger := tag.NewID3Tagger("")
	notifier := syncer.NewClient(appCfg.SyncthingURL, appCfg.SyncthingAPIKey, appCfg.SyncthingFolder, nil)

	orchestrator, err := harvest.NewOrchestrator(harvest.Config{
		HarvestDir:       appCfg.HarvestDir,
		QualityLadder:    appCfg.QualityLadder,
		ConcurrencyLimit: appCfg.ConcurrencyLimit,
		InterItemDelay:   time.Duration(appCfg.InterItemDelay) * time.Second,
		FetchTimeout:     time.Duration(appCfg.FetchTimeout) * time.Second,
		RotationEnabled:  appCfg.RotationEnabled,
		CookiesFile:      appCfg.CookiesFile,
	}, trackRepo, deviceRepo, syncRepo, rotation, pool, fetcher, tagger, notifier, appMetrics, nil)
	if err != nil {
		slog.Error("Failed to initialize harvester", "error", err)
		os.Exit(1)
	}

	providers := source.NewProviderSet(appCfg.UserAgent)
	filterer := source.NewFilterer()
	generator := playlist.NewGenerator(trackRepo, appCfg.HarvestDir, appCfg.PlaylistsDir, nil)

	if appCfg.RunOnce {
		runOnce(configCache, providers, filterer, orchestrator, generator, trackRepo, appCfg.HarvestDir)
		return
	}

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval_seconds", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(configCache, providers, filterer, orchestrator, generator, trackRepo)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(configCache, trackRepo, deviceRepo, syncRepo, statsReader,
		rotation, generator, scheduler, appMetrics.Handler(), appCfg.HarvestDir)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}

// runOnce performs a single synchronous harvest cycle: import stray files,
// harvest every enabled source, regenerate playlists, exit.
func runOnce(configCache *source.ConfigCache, providers *source.Providers,
	filterer *source.Filterer, orchestrator *harvest.Orchestrator,
	generator *playlist.Generator, trackRepo database.TrackRepository, harvestDir string) {
	ctx := context.Background()

	importTask := tasks.NewImportLibraryTask(trackRepo, harvestDir)
	importTask.Start()
	if err := importTask.Execute(ctx); err != nil {
		slog.Warn("Library import failed", "error", err)
	}

	sourceConfigs := configCache.GetEnabledConfigs()
	if len(sourceConfigs) == 0 {
		slog.Warn("No enabled source configurations found")
	}

	for _, sourceConfig := range sourceConfigs {
		harvestTask := tasks.NewHarvestSourceTask(sourceConfig.Name, sourceConfig, providers, filterer, orchestrator, nil, nil)
		harvestTask.Start()
		if err := harvestTask.Execute(ctx); err != nil {
			slog.Error("Harvest failed", "source", sourceConfig.Name, "error", err)
		}
	}

	if err := generator.Run(); err != nil {
		slog.Error("Playlist generation failed", "error", err)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
