package scanner

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strconv"

	"RegulatoryTracker/internal/domain"
)

// Endpoint describes a concrete URL provided by config for a source.
type Endpoint struct {
	Name string
	URL  string
}

// Request carries all parameters required to scan one source.
type Request struct {
	SourceID  string
	Endpoints []Endpoint
	Options   map[string]string
}

// Option returns the named option or def when it is unset.
func (r Request) Option(name, def string) string {
	if v, ok := r.Options[name]; ok && v != "" {
		return v
	}
	return def
}

// IntOption parses the named option, falling back to def on absence or
// when the value is not a positive integer.
func (r Request) IntOption(name string, def int) int {
	v, err := strconv.Atoi(r.Option(name, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Scanner captures a single strategy implementation (RSS, HTML listing, JSON feed).
// Scan yields items lazily; a yielded error ends the scan of that source.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) iter.Seq2[domain.RawItem, error]
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists the registered strategies in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
