package source

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/varkas/cratedigger/app/harvest"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run returns the candidates that survive the config's filters. Dropped
// candidates never reach the orchestrator, so filtered uploads cost no
// device quota.
func (f *Filterer) Run(candidates []harvest.Candidate, cfg *Config) []harvest.Candidate {
	if len(cfg.Filters) == 0 {
		return candidates
	}

	kept := make([]harvest.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		excluded, reason := f.applyFilters(candidate, cfg.Filters)
		if excluded {
			slog.Debug("Candidate filtered",
				"source", cfg.Name,
				"candidate_id", candidate.ID,
				"reason", reason)
			continue
		}
		kept = append(kept, candidate)
	}

	return kept
}

func (f *Filterer) applyFilters(candidate harvest.Candidate, filters []ConfigFilter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(candidate, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(candidate harvest.Candidate, field string) string {
	switch field {
	case "title":
		return candidate.Title
	case "uploader":
		return candidate.Uploader
	default:
		return ""
	}
}
