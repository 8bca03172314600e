package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/varkas/cratedigger/app/ratelimit"
)

// Candidate is one media item offered for harvesting.
type Candidate struct {
	ID       string
	Title    string
	Uploader string
	Duration *int
	MediaURL string
}

// DeviceContext carries the egress identity a fetch attempt runs under.
type DeviceContext struct {
	ID      string
	Name    string
	Proxy   string
	Cookies string
}

// FetchRequest is one download attempt: a candidate at a specific quality
// tier, destined for a specific path, on a specific device identity.
// CookiesFile is the pool-wide fallback used when the device carries none.
type FetchRequest struct {
	Candidate   Candidate
	Quality     string
	DestPath    string
	Device      DeviceContext
	CookiesFile string
}

// FetchResult reports a completed attempt. A failed attempt never surfaces
// as a Go error; the signals below feed the failure classifier instead.
type FetchResult struct {
	Success               bool
	BytesWritten          int64
	Elapsed               time.Duration
	ThroughputBytesPerSec float64
	ErrorText             string
	HTTPStatus            int
}

// Fetcher performs the actual media transfer. Implementations must honor
// ctx cancellation and must fold all failures into the FetchResult.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) FetchResult
}

// TagMeta is the descriptive metadata written onto a harvested file.
type TagMeta struct {
	Title       string
	Artist      string
	SourceID    string
	HarvestedAt time.Time
}

// Tagger annotates a completed file. Best effort: errors are logged by the
// orchestrator and never fail the harvest.
type Tagger interface {
	Tag(path string, meta TagMeta) error
}

// Notifier asks the file sync service to pick up new files. Best effort.
type Notifier interface {
	Rescan(ctx context.Context) error
}

// MetricsRecorder receives harvest observability signals.
type MetricsRecorder interface {
	TrackHarvested(source string)
	HarvestFailure(reason string)
	BatchDuration(d time.Duration)
}

// BatchResult summarizes one harvest batch.
type BatchResult struct {
	Requested    int                       `json:"requested"`
	Deduplicated int                       `json:"deduplicated"`
	Succeeded    int                       `json:"succeeded"`
	Skipped      int                       `json:"skipped"`
	Failed       int                       `json:"failed"`
	Rotation     *ratelimit.RotationStatus `json:"rotation,omitempty"`
}

// StoreError marks a persistence failure. It is the only error class that
// aborts a batch; everything else is contained per item.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
