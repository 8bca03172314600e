package source

// Source types a config may declare.
const (
	TypeYouTube = "youtube"
	TypeRSS     = "rss"
)

// Configuration types

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	Source   ConfigSource   `yaml:"source"`
	Settings ConfigSettings `yaml:"settings"`
	Filters  []ConfigFilter `yaml:"filters"`
}

type ConfigSource struct {
	URL  string `yaml:"url"`
	Type string `yaml:"type"` // "youtube" or "rss", defaults to "youtube"
}

type ConfigSettings struct {
	Enabled       bool     `yaml:"enabled"`
	MaxItems      int      `yaml:"max_items"` // 0 = no cap
	Timeout       int      `yaml:"timeout"`   // seconds, feed fetches only
	QualityLadder []string `yaml:"quality_ladder"`
}

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}
