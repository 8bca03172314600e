package harvest

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/varkas/cratedigger/app/database"
	"github.com/varkas/cratedigger/app/ratelimit"
)

// Config carries the tunables of a harvest run.
type Config struct {
	HarvestDir       string
	QualityLadder    []string
	ConcurrencyLimit int
	InterItemDelay   time.Duration
	FetchTimeout     time.Duration
	RotationEnabled  bool
	CookiesFile      string
}

// Orchestrator turns candidate lists into archived tracks. It owns the
// dedup, the worker pool, the quality ladder walk and the device rotation
// policy; the actual transfer, tagging and sync notification are delegated
// to collaborators.
type Orchestrator struct {
	cfg       Config
	tracks    database.TrackRepository
	devices   database.DeviceRepository
	syncs     database.SyncRepository
	rotation  *ratelimit.Manager
	pool      *ratelimit.PoolConfig
	fetcher   Fetcher
	tagger    Tagger
	notifier  Notifier
	metrics   MetricsRecorder
	logger    *slog.Logger
	allocator *NameAllocator
}

// NewOrchestrator wires a harvest orchestrator. The harvest directory is
// created if missing; the filename allocator seeds itself from its contents
// once and stays monotonic for the process lifetime.
func NewOrchestrator(
	cfg Config,
	tracks database.TrackRepository,
	devices database.DeviceRepository,
	syncs database.SyncRepository,
	rotation *ratelimit.Manager,
	pool *ratelimit.PoolConfig,
	fetcher Fetcher,
	tagger Tagger,
	notifier Notifier,
	metrics MetricsRecorder,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	allocator, err := NewNameAllocator(cfg.HarvestDir)
	if err != nil {
		return nil, err
	}

	if cfg.ConcurrencyLimit < 1 {
		cfg.ConcurrencyLimit = 1
	}
	if len(cfg.QualityLadder) == 0 {
		cfg.QualityLadder = []string{"best"}
	}

	return &Orchestrator{
		cfg:       cfg,
		tracks:    tracks,
		devices:   devices,
		syncs:     syncs,
		rotation:  rotation,
		pool:      pool,
		fetcher:   fetcher,
		tagger:    tagger,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		allocator: allocator,
	}, nil
}

type itemStatus int

const (
	itemSucceeded itemStatus = iota
	itemSkipped
	itemFailed
)

type itemOutcome struct {
	status   itemStatus
	storeErr error
}

// Batch is one unit of harvest work. An empty QualityLadder falls back to
// the orchestrator's configured ladder.
type Batch struct {
	Source        string
	Candidates    []Candidate
	QualityLadder []string
}

// HarvestBatch downloads every candidate not already in the archive. One
// item's failure never fails the batch; a persistence failure does, as
// StoreError. The returned result carries per-item counts and a rotation
// snapshot.
func (o *Orchestrator) HarvestBatch(ctx context.Context, batch Batch) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{Requested: len(batch.Candidates)}

	ladder := batch.QualityLadder
	if len(ladder) == 0 {
		ladder = o.cfg.QualityLadder
	}

	queue, err := o.dedup(batch.Candidates, result)
	if err != nil {
		return nil, err
	}

	o.logger.Info("Starting harvest batch",
		"source", batch.Source,
		"requested", result.Requested,
		"deduplicated", result.Deduplicated,
		"queued", len(queue))

	if len(queue) > 0 {
		if err := o.runWorkers(ctx, batch.Source, ladder, queue, result); err != nil {
			return nil, err
		}
	}

	if result.Succeeded > 0 && o.notifier != nil && ctx.Err() == nil {
		if err := o.notifier.Rescan(ctx); err != nil {
			o.logger.Warn("Failed to request sync rescan", "error", err.Error())
		}
	}

	if o.rotation != nil {
		status, err := o.rotation.Status()
		if err != nil {
			o.logger.Warn("Failed to snapshot rotation status", "error", err.Error())
		} else {
			result.Rotation = status
		}
	}

	elapsed := time.Since(start)
	if o.metrics != nil {
		o.metrics.BatchDuration(elapsed)
	}

	o.logger.Info("Harvest batch completed",
		"source", batch.Source,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"deduplicated", result.Deduplicated,
		"duration", elapsed.Round(time.Millisecond).String())

	return result, ctx.Err()
}

// dedup drops candidates already seen in this batch or already archived.
func (o *Orchestrator) dedup(candidates []Candidate, result *BatchResult) ([]Candidate, error) {
	queue := make([]Candidate, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	for _, candidate := range candidates {
		if _, dup := seen[candidate.ID]; dup {
			result.Deduplicated++
			continue
		}
		seen[candidate.ID] = struct{}{}

		exists, err := o.tracks.TrackExists(candidate.ID)
		if err != nil {
			return nil, &StoreError{Op: "track lookup", Err: err}
		}
		if exists {
			result.Deduplicated++
			continue
		}

		queue = append(queue, candidate)
	}

	return queue, nil
}

func (o *Orchestrator) runWorkers(ctx context.Context, source string, ladder []string, queue []Candidate, result *BatchResult) error {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		abortMu  sync.Mutex
		abortErr error
	)
	abort := func(err error) {
		abortMu.Lock()
		if abortErr == nil {
			abortErr = err
		}
		abortMu.Unlock()
		cancel()
	}

	jobs := make(chan Candidate)
	outcomes := make(chan itemOutcome, len(queue))

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.ConcurrencyLimit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for candidate := range jobs {
				outcome := o.harvestItem(batchCtx, source, ladder, candidate)
				if outcome.storeErr != nil {
					abort(outcome.storeErr)
				}
				outcomes <- outcome
			}
		}()
	}

	var limiter *rate.Limiter
	if o.cfg.InterItemDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(o.cfg.InterItemDelay), 1)
	}

dispatch:
	for _, candidate := range queue {
		if limiter != nil {
			if err := limiter.Wait(batchCtx); err != nil {
				break
			}
		}
		select {
		case jobs <- candidate:
		case <-batchCtx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		switch outcome.status {
		case itemSucceeded:
			result.Succeeded++
		case itemSkipped:
			result.Skipped++
		case itemFailed:
			result.Failed++
		}
	}

	abortMu.Lock()
	defer abortMu.Unlock()
	return abortErr
}

// harvestItem runs one candidate through the quality ladder. The archive
// filename is decided once, up front, so rotation and tier changes never
// rename the result.
func (o *Orchestrator) harvestItem(ctx context.Context, source string, ladder []string, candidate Candidate) itemOutcome {
	artist, song := SplitArtistTitle(candidate.Title, candidate.Uploader)
	cleanArtist := CleanArtist(artist)
	cleanTitle := CleanTitle(song)
	filename := BuildFilename(o.allocator.Next(), cleanArtist, cleanTitle)
	destPath := filepath.Join(o.cfg.HarvestDir, filename)

	device, err := o.claimDevice()
	if err != nil {
		return itemOutcome{status: itemFailed, storeErr: err}
	}
	if device == nil {
		o.logger.Warn("No devices available, skipping item",
			"candidate_id", candidate.ID,
			"title", candidate.Title)
		if o.metrics != nil {
			o.metrics.HarvestFailure("no_device")
		}
		return itemOutcome{status: itemSkipped}
	}

	for tier := 0; tier < len(ladder); {
		if ctx.Err() != nil {
			return itemOutcome{status: itemSkipped}
		}

		quality := ladder[tier]
		res := o.fetchAttempt(ctx, candidate, quality, destPath, device)
		if res.Success {
			return o.recordSuccess(source, candidate, device, quality, filename, destPath, cleanArtist, cleanTitle, res)
		}

		kind, classified := ratelimit.Classify(res.ErrorText, res.HTTPStatus, res.ThroughputBytesPerSec)
		if classified && o.cfg.RotationEnabled {
			if err := o.rotation.RecordFailure(device.ID, kind, res.ErrorText); err != nil {
				return itemOutcome{status: itemFailed, storeErr: &StoreError{Op: "rate limit record", Err: err}}
			}

			next, err := o.rotation.SelectNextDevice()
			if err != nil {
				return itemOutcome{status: itemFailed, storeErr: &StoreError{Op: "device selection", Err: err}}
			}
			if next != nil {
				o.logger.Info("Retrying on rotated device",
					"candidate_id", candidate.ID,
					"quality", quality,
					"device", next.Name)
				device = next
				continue
			}

			o.logger.Warn("Device pool exhausted, stepping down quality ladder",
				"candidate_id", candidate.ID,
				"quality", quality)
			tier++
			continue
		}

		if err := o.rotation.RecordOrdinaryFailure(device.ID); err != nil {
			return itemOutcome{status: itemFailed, storeErr: &StoreError{Op: "failure record", Err: err}}
		}
		o.logger.Warn("Fetch attempt failed",
			"candidate_id", candidate.ID,
			"quality", quality,
			"device", device.Name,
			"error", res.ErrorText)
		tier++
	}

	if o.metrics != nil {
		o.metrics.HarvestFailure("exhausted")
	}
	o.logger.Error("All quality tiers failed",
		"candidate_id", candidate.ID,
		"title", candidate.Title)

	return itemOutcome{status: itemFailed}
}

func (o *Orchestrator) claimDevice() (*database.Device, error) {
	device, err := o.rotation.SelectNextDevice()
	if err != nil {
		return nil, &StoreError{Op: "device selection", Err: err}
	}
	return device, nil
}

func (o *Orchestrator) fetchAttempt(ctx context.Context, candidate Candidate, quality, destPath string, device *database.Device) FetchResult {
	attemptCtx := ctx
	if o.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()
	}

	req := FetchRequest{
		Candidate:   candidate,
		Quality:     quality,
		DestPath:    destPath,
		Device:      o.deviceContext(device),
		CookiesFile: o.cfg.CookiesFile,
	}

	return o.fetcher.Fetch(attemptCtx, req)
}

func (o *Orchestrator) deviceContext(device *database.Device) DeviceContext {
	dctx := DeviceContext{ID: device.ID, Name: device.Name}
	if o.pool != nil {
		if cfg := o.pool.Get(device.ID); cfg != nil {
			dctx.Proxy = cfg.Proxy
			dctx.Cookies = cfg.Cookies
		}
	}
	return dctx
}

func (o *Orchestrator) recordSuccess(source string, candidate Candidate, device *database.Device, quality, filename, destPath, artist, title string, res FetchResult) itemOutcome {
	now := time.Now()

	if o.tagger != nil {
		meta := TagMeta{
			Title:       title,
			Artist:      artist,
			SourceID:    candidate.ID,
			HarvestedAt: now,
		}
		if err := o.tagger.Tag(destPath, meta); err != nil {
			o.logger.Warn("Failed to tag file", "filename", filename, "error", err.Error())
		}
	}

	track := database.Track{
		ID:              candidate.ID,
		Title:           title,
		Artist:          artist,
		Filename:        filename,
		SourceURL:       candidate.MediaURL,
		Quality:         quality,
		DurationSeconds: candidate.Duration,
		DownloadedAt:    now,
		UpdatedAt:       now,
	}
	if res.BytesWritten > 0 {
		size := res.BytesWritten
		track.FileSize = &size
	}

	if err := o.tracks.UpsertTrack(track); err != nil {
		return itemOutcome{status: itemFailed, storeErr: &StoreError{Op: "track upsert", Err: err}}
	}

	if err := o.rotation.RecordSuccess(device.ID); err != nil {
		return itemOutcome{status: itemFailed, storeErr: &StoreError{Op: "success record", Err: err}}
	}

	if err := o.seedSyncRecords(candidate.ID); err != nil {
		return itemOutcome{status: itemFailed, storeErr: &StoreError{Op: "sync seed", Err: err}}
	}

	if o.metrics != nil {
		o.metrics.TrackHarvested(source)
	}
	o.logger.Info("Harvested track",
		"filename", filename,
		"quality", quality,
		"device", device.Name,
		"size_bytes", res.BytesWritten,
		"throughput_bps", int64(res.ThroughputBytesPerSec),
		"elapsed", res.Elapsed.Round(time.Millisecond).String())

	return itemOutcome{status: itemSucceeded}
}

// seedSyncRecords marks the new track pending for every active device so
// the sync status board starts honest.
func (o *Orchestrator) seedSyncRecords(trackID string) error {
	devices, err := o.devices.ListDevices()
	if err != nil {
		return err
	}

	for _, device := range devices {
		if !device.Active {
			continue
		}
		record := database.SyncRecord{
			DeviceID: device.ID,
			TrackID:  trackID,
			Status:   database.SyncStatusPending,
		}
		if err := o.syncs.UpsertSyncRecord(record); err != nil {
			return err
		}
	}

	return nil
}
