package cfg

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath       string `long:"db-path" env:"DB_PATH" default:"./data/harvest.db" description:"Path to the SQLite database file"`
	HarvestDir   string `long:"harvest-dir" env:"HARVEST_DIR" default:"./data/harvest" description:"Directory where downloaded audio files are stored"`
	PlaylistsDir string `long:"playlists-dir" env:"PLAYLISTS_DIR" default:"./data/playlists" description:"Directory where generated M3U playlists are written"`
	SourcesDir   string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	DevicesFile  string `long:"devices-file" env:"DEVICES_FILE" default:"./devices.yml" description:"Path to the device pool configuration file"`

	// Harvest configuration
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"1" description:"Number of background workers for harvest tasks"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"3600" description:"Scheduler interval in seconds"`
	ConcurrencyLimit  int    `long:"concurrency-limit" env:"CONCURRENCY_LIMIT" default:"3" description:"Maximum number of items downloaded concurrently within a batch"`
	InterItemDelay    int    `long:"inter-item-delay" env:"INTER_ITEM_DELAY" default:"2" description:"Minimum delay in seconds between item dispatches within a batch"`
	FetchTimeout      int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"300" description:"Timeout in seconds for a single download attempt"`
	QualityLadder     string `long:"quality-ladder" env:"QUALITY_LADDER" default:"256k,192k,128k,96k" description:"Comma-separated audio quality tiers, best first"`
	NoRotation        bool   `long:"no-rotation" env:"NO_ROTATION" description:"Disable device rotation on rate limit failures"`
	CookiesFile       string `long:"cookies-file" env:"COOKIES_FILE" description:"Path to a cookies file passed to the downloader (optional)"`
	AutoInstallYtdlp  bool   `long:"auto-install-ytdlp" env:"AUTO_INSTALL_YTDLP" description:"Download the yt-dlp binary on startup if missing"`
	RunOnce           bool   `long:"once" description:"Run a single harvest cycle and exit instead of starting the daemon"`

	// HTTP configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Syncthing configuration
	SyncthingURL    string `long:"syncthing-url" env:"SYNCTHING_URL" description:"Syncthing REST API base URL (optional)"`
	SyncthingAPIKey string `long:"syncthing-api-key" env:"SYNCTHING_API_KEY" description:"Syncthing REST API key"`
	SyncthingFolder string `long:"syncthing-folder" env:"SYNCTHING_FOLDER" description:"Syncthing folder ID to rescan after harvests"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"cratedigger/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ladder := parseLadder(raw.QualityLadder)
	if len(ladder) == 0 {
		return nil, fmt.Errorf("quality ladder is empty")
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		HarvestDir:        raw.HarvestDir,
		PlaylistsDir:      raw.PlaylistsDir,
		SourcesDir:        raw.SourcesDir,
		DevicesFile:       raw.DevicesFile,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		ConcurrencyLimit:  raw.ConcurrencyLimit,
		InterItemDelay:    raw.InterItemDelay,
		FetchTimeout:      raw.FetchTimeout,
		QualityLadder:     ladder,
		RotationEnabled:   !raw.NoRotation,
		CookiesFile:       raw.CookiesFile,
		AutoInstallYtdlp:  raw.AutoInstallYtdlp,
		RunOnce:           raw.RunOnce,
		Port:              raw.Port,
		APIAccessKey:      raw.APIAccessKey,
		SyncthingURL:      raw.SyncthingURL,
		SyncthingAPIKey:   raw.SyncthingAPIKey,
		SyncthingFolder:   raw.SyncthingFolder,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}

func parseLadder(raw string) []string {
	var ladder []string
	for _, tier := range strings.Split(raw, ",") {
		tier = strings.TrimSpace(tier)
		if tier != "" {
			ladder = append(ladder, tier)
		}
	}
	return ladder
}
