// Package route maps external paths onto upstream services.
package route

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"notus-gateway/internal/config"
	"notus-gateway/internal/model"
)

// Match is the result of resolving an inbound path.
type Match struct {
	Target    model.RouteTarget
	Remainder string // path left after stripping Target.Prefix; empty or starts with '/'
}

// Table is an immutable longest-prefix route table.
type Table struct {
	targets []model.RouteTarget // sorted by prefix length, longest first
}

// New builds a Table from the configured routes.
func New(cfg *config.Config) (*Table, error) {
	targets := make([]model.RouteTarget, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		u, err := url.Parse(r.Upstream)
		if err != nil {
			return nil, fmt.Errorf("route %s: parse upstream: %w", r.Prefix, err)
		}
		targets = append(targets, model.RouteTarget{
			Name:    r.Name,
			Prefix:  r.Prefix,
			BaseURL: u,
			Timeout: r.Timeout(),
		})
	}
	return NewFromTargets(targets), nil
}

// NewFromTargets builds a Table from already-resolved targets.
func NewFromTargets(targets []model.RouteTarget) *Table {
	sorted := make([]model.RouteTarget, len(targets))
	copy(sorted, targets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Table{targets: sorted}
}

// Match returns the route with the longest prefix that covers path on a
// segment boundary: "/notes" covers "/notes" and "/notes/1" but not "/notesx".
func (t *Table) Match(path string) (Match, bool) {
	for _, target := range t.targets {
		if path == target.Prefix {
			return Match{Target: target}, true
		}
		if rest, ok := strings.CutPrefix(path, target.Prefix); ok && strings.HasPrefix(rest, "/") {
			return Match{Target: target, Remainder: rest}, true
		}
	}
	return Match{}, false
}

// Targets returns a copy of the routes, longest prefix first.
func (t *Table) Targets() []model.RouteTarget {
	out := make([]model.RouteTarget, len(t.targets))
	copy(out, t.targets)
	return out
}

// Prefixes returns the configured route prefixes.
func (t *Table) Prefixes() []string {
	out := make([]string, 0, len(t.targets))
	for _, target := range t.targets {
		out = append(out, target.Prefix)
	}
	return out
}
