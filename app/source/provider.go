package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/varkas/cratedigger/app/harvest"
)

// Provider lists the current candidates of a configured source.
type Provider interface {
	List(ctx context.Context, cfg *Config) ([]harvest.Candidate, error)
}

// Providers dispatches to the right listing implementation per source type.
type Providers struct {
	youtube Provider
	rss     Provider
}

// NewProviderSet wires the default providers.
func NewProviderSet(userAgent string) *Providers {
	httpClient := &http.Client{Timeout: 60 * time.Second}
	return &Providers{
		youtube: NewYouTubeProvider(),
		rss:     NewFeedProvider(httpClient, userAgent),
	}
}

// For returns the provider for the config's source type.
func (p *Providers) For(cfg *Config) (Provider, error) {
	switch cfg.Source.Type {
	case TypeYouTube:
		return p.youtube, nil
	case TypeRSS:
		return p.rss, nil
	default:
		return nil, fmt.Errorf("no provider for source type: %s", cfg.Source.Type)
	}
}
