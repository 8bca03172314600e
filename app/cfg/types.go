package cfg

type Cfg struct {
	// Storage configuration
	DBPath       string
	HarvestDir   string
	PlaylistsDir string
	SourcesDir   string
	DevicesFile  string

	// Harvest configuration
	WorkerCount       int
	SchedulerInterval int
	ConcurrencyLimit  int
	InterItemDelay    int
	FetchTimeout      int
	QualityLadder     []string
	RotationEnabled   bool
	CookiesFile       string
	AutoInstallYtdlp  bool
	RunOnce           bool

	// HTTP configuration
	Port         string
	APIAccessKey string

	// Syncthing configuration
	SyncthingURL    string
	SyncthingAPIKey string
	SyncthingFolder string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
