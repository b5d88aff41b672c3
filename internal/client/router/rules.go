package router

import (
	"fmt"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"
)

// Strategy names a caching strategy.
type Strategy string

const (
	CacheFirst           Strategy = "cache-first"
	NetworkFirst         Strategy = "network-first"
	StaleWhileRevalidate Strategy = "stale-while-revalidate"
	NetworkOnly          Strategy = "network-only"
)

func (s Strategy) valid() bool {
	switch s {
	case CacheFirst, NetworkFirst, StaleWhileRevalidate, NetworkOnly:
		return true
	}
	return false
}

// DefaultNetworkTimeout bounds the network attempt of network-first rules.
const DefaultNetworkTimeout = 3 * time.Second

// Rule pairs a request predicate with a strategy and the cache it uses.
// A request matches when every non-empty criterion matches.
type Rule struct {
	Name     string   `yaml:"name"`
	Strategy Strategy `yaml:"strategy"`

	// Criteria.
	Navigate   bool     `yaml:"navigate,omitempty"`
	Paths      []string `yaml:"paths,omitempty"`
	PathPrefix string   `yaml:"pathPrefix,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
	Hosts      []string `yaml:"hosts,omitempty"`

	// Cache.
	Cache      string        `yaml:"cache,omitempty"`
	MaxEntries int           `yaml:"maxEntries,omitempty"`
	MaxAge     time.Duration `yaml:"maxAge,omitempty"`

	// Timeout applies to network-first only.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Matches reports whether r applies to req.
func (r Rule) Matches(req *http.Request) bool {
	if r.Navigate && !IsNavigation(req) {
		return false
	}
	if len(r.Paths) > 0 && !slices.Contains(r.Paths, req.URL.Path) {
		return false
	}
	if r.PathPrefix != "" && !strings.HasPrefix(req.URL.Path, r.PathPrefix) {
		return false
	}
	if len(r.Extensions) > 0 && !slices.Contains(r.Extensions, strings.ToLower(path.Ext(req.URL.Path))) {
		return false
	}
	if len(r.Hosts) > 0 && !slices.Contains(r.Hosts, strings.ToLower(req.URL.Hostname())) {
		return false
	}
	return true
}

// Validate checks the rule is usable.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule without name")
	}
	if !r.Strategy.valid() {
		return fmt.Errorf("rule %q: unknown strategy %q", r.Name, r.Strategy)
	}
	if r.Strategy != NetworkOnly && r.Cache == "" {
		return fmt.Errorf("rule %q: strategy %s needs a cache", r.Name, r.Strategy)
	}
	if r.MaxEntries < 0 || r.MaxAge < 0 || r.Timeout < 0 {
		return fmt.Errorf("rule %q: negative limit", r.Name)
	}
	return nil
}

// IsNavigation reports whether req loads a page rather than a subresource.
func IsNavigation(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// App shell location and cache, used by the navigation fallback.
const (
	AppShellPath  = "/"
	AppShellCache = "app-shell"
)

// DefaultRules returns the built-in rule set. The PNR status rule precedes
// the generic API rule so its shorter max age is reachable.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "app-shell", Strategy: CacheFirst, Navigate: true,
			Paths: []string{AppShellPath, "/index.html"},
			Cache: AppShellCache, MaxEntries: 1,
		},
		{
			Name: "navigation", Strategy: NetworkFirst, Navigate: true,
			Cache: "pages", MaxEntries: 50, MaxAge: 24 * time.Hour, Timeout: DefaultNetworkTimeout,
		},
		{
			Name: "pnr-status", Strategy: StaleWhileRevalidate, PathPrefix: "/api/pnr/",
			Cache: "pnr-status", MaxEntries: 50, MaxAge: 5 * time.Minute,
		},
		{
			Name: "api", Strategy: StaleWhileRevalidate, PathPrefix: "/api/",
			Cache: "api", MaxEntries: 100, MaxAge: time.Hour,
		},
		{
			Name: "static", Strategy: CacheFirst,
			Extensions: []string{".js", ".css", ".woff", ".woff2", ".ttf", ".otf"},
			Cache:      "static-resources", MaxEntries: 60, MaxAge: 30 * 24 * time.Hour,
		},
		{
			Name: "images", Strategy: CacheFirst,
			Extensions: []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico"},
			Cache:      "images", MaxEntries: 60, MaxAge: 30 * 24 * time.Hour,
		},
		{
			Name: "font-cdn", Strategy: CacheFirst,
			Hosts: []string{"fonts.googleapis.com", "fonts.gstatic.com"},
			Cache: "google-fonts", MaxEntries: 30, MaxAge: 365 * 24 * time.Hour,
		},
	}
}
