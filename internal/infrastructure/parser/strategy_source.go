package parser

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"RegulatoryTracker/internal/config"
	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
	"RegulatoryTracker/internal/scanner"
)

// StrategySource implements SourceFetcher via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	logger   *slog.Logger
}

var _ ports.SourceFetcher = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// Sources lists configured site names in config order.
func (s *StrategySource) Sources() []string {
	names := make([]string, 0, len(s.sites))
	for _, site := range s.sites {
		names = append(names, site.Name)
	}
	return names
}

// Fetch runs the scanner configured for sourceID. Every yielded error is a
// *domain.FetchError and ends the sequence.
func (s *StrategySource) Fetch(ctx context.Context, sourceID string) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		site, ok := s.site(sourceID)
		if !ok {
			yield(nil, &domain.FetchError{SourceID: sourceID, Err: fmt.Errorf("source is not configured")})
			return
		}
		if s.registry == nil {
			yield(nil, &domain.FetchError{SourceID: sourceID, Err: fmt.Errorf("scanner registry is not configured")})
			return
		}
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			yield(nil, &domain.FetchError{SourceID: sourceID, Err: err})
			return
		}

		s.debug("process site", "site", site.Name, "scanner", site.Scanner, "endpoints", len(site.Endpoints))

		req := scanner.Request{
			SourceID:  site.Name,
			Options:   site.Options,
			Endpoints: toEndpoints(site.Endpoints),
		}

		count := 0
		for item, err := range strategy.Scan(ctx, req) {
			if err != nil {
				var fe *domain.FetchError
				if !errors.As(err, &fe) {
					err = &domain.FetchError{SourceID: sourceID, Err: err}
				}
				yield(nil, err)
				return
			}
			count++
			if !yield(item, nil) {
				return
			}
		}
		s.debug("site produced items", "site", site.Name, "count", count)
	}
}

func (s *StrategySource) site(name string) (config.SiteConfig, bool) {
	for _, site := range s.sites {
		if site.Name == name {
			return site, true
		}
	}
	return config.SiteConfig{}, false
}

func toEndpoints(cfg []config.EndpointConfig) []scanner.Endpoint {
	endpoints := make([]scanner.Endpoint, 0, len(cfg))
	for _, ep := range cfg {
		endpoints = append(endpoints, scanner.Endpoint{
			Name: ep.Name,
			URL:  ep.URL,
		})
	}
	return endpoints
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
