// Package ratelimit detects throttling signals in failed download attempts
// and manages the pool of device identities used to shed them.
package ratelimit

import (
	"strings"
	"time"
)

// FailureKind identifies one class of throttling signal. The string values
// are persisted in rate limit event records.
type FailureKind string

const (
	TooManyRequests    FailureKind = "too_many_requests"
	Forbidden          FailureKind = "forbidden"
	ServiceUnavailable FailureKind = "service_unavailable"
	QuotaExceeded      FailureKind = "quota_exceeded"
	ConnectionTimeout  FailureKind = "connection_timeout"
	GenericFailure     FailureKind = "generic_failure"
	SpeedDegraded      FailureKind = "speed_degraded"
)

// Throughput below this is treated as a covert throttle rather than a
// functioning connection.
const slowThroughputBytesPerSec = 10000

// cooldownPeriods maps each failure kind to how long the offending device
// sits out of rotation. Severity scales with how persistent the upstream
// condition usually is: an exhausted quota outlasts a transient timeout.
var cooldownPeriods = map[FailureKind]time.Duration{
	TooManyRequests:    30 * time.Minute,
	Forbidden:          60 * time.Minute,
	ServiceUnavailable: 15 * time.Minute,
	GenericFailure:     10 * time.Minute,
	SpeedDegraded:      5 * time.Minute,
	ConnectionTimeout:  5 * time.Minute,
	QuotaExceeded:      120 * time.Minute,
}

// CooldownFor returns the cooldown duration for a failure kind. Unknown
// kinds fall back to the generic period.
func CooldownFor(kind FailureKind) time.Duration {
	if d, ok := cooldownPeriods[kind]; ok {
		return d
	}
	return cooldownPeriods[GenericFailure]
}

// Classify maps a failed attempt's signals to a FailureKind. It is a pure
// decision table: no store access, no side effects.
//
// Precedence, first match wins: the HTTP status code when present, then
// ordered substring checks on the error text, then a throughput floor.
// A zero httpStatus or throughput means the signal is absent. The second
// return value is false when the failure carries no throttling signal and
// should be treated as an ordinary failure.
func Classify(errorText string, httpStatus int, throughputBytesPerSec float64) (FailureKind, bool) {
	switch httpStatus {
	case 429:
		return TooManyRequests, true
	case 403:
		return Forbidden, true
	case 503:
		return ServiceUnavailable, true
	}

	lower := strings.ToLower(errorText)

	switch {
	case strings.Contains(errorText, "429") || strings.Contains(lower, "too many requests"):
		return TooManyRequests, true
	case strings.Contains(errorText, "403") || strings.Contains(lower, "forbidden"):
		return Forbidden, true
	case strings.Contains(errorText, "503") || strings.Contains(lower, "service unavailable"):
		return ServiceUnavailable, true
	case strings.Contains(lower, "quota"):
		return QuotaExceeded, true
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "connection"):
		return ConnectionTimeout, true
	case strings.Contains(lower, "failed"):
		return GenericFailure, true
	}

	if throughputBytesPerSec > 0 && throughputBytesPerSec < slowThroughputBytesPerSec {
		return SpeedDegraded, true
	}

	return "", false
}
