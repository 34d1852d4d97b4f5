package offlinesync

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls request classification and the shared behavior of every
// strategy. Route tables are ordered prefix lists; the first matching rule
// wins and the table precedence is fixed: NetworkFirstRoutes over
// CacheableAPIRoutes over CacheFirstRoutes over exact StaticAssetPaths
// matches, with stale-while-revalidate as the final default.
type Config struct {
	// CacheVersion is the shared version token embedded in every namespace
	// storage name. Bumping it and calling Manager.Activate evicts all
	// entries written under prior versions.
	CacheVersion string

	// NetworkTimeout bounds the network leg of every strategy so a hung
	// connection cannot starve the cache-fallback path. Zero disables the
	// bound and leaves platform defaults in charge.
	NetworkTimeout time.Duration

	// SyncInterval is the period of the background drain trigger. Zero
	// disables periodic draining; connectivity-restore and manual triggers
	// still fire.
	SyncInterval time.Duration

	// NetworkFirstRoutes are path prefixes with real-time or
	// security-sensitive semantics.
	NetworkFirstRoutes []string

	// CacheableAPIRoutes are path prefixes of API data that tolerates
	// staleness.
	CacheableAPIRoutes []string

	// CacheFirstRoutes are path prefixes of immutable assets.
	CacheFirstRoutes []string

	// StaticAssetPaths are exact paths treated as immutable assets.
	StaticAssetPaths []string

	// OfflineFallbackPath is the cached page served to HTML consumers when
	// neither network nor cache can answer.
	OfflineFallbackPath string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		CacheVersion:   "2.1",
		NetworkTimeout: 30 * time.Second,
		SyncInterval:   5 * time.Minute,
		NetworkFirstRoutes: []string{
			"/login",
			"/logout",
			"/users/auth",
			"/api/notifications/count",
			"/api/offline/sync",
			"/api/offline/status",
		},
		CacheableAPIRoutes: []string{
			"/api/offline/cache/",
			"/api/summaries",
			"/dashboard/data",
		},
		CacheFirstRoutes: []string{
			"/static/",
			"/img/",
		},
		StaticAssetPaths: []string{
			"/",
			"/dashboard",
			"/budget",
			"/bills",
			"/shopping",
			"/manifest.json",
			"/favicon.ico",
		},
		OfflineFallbackPath: "/",
	}
}

type fileConfig struct {
	CacheVersion        string   `yaml:"cacheVersion"`
	NetworkTimeout      string   `yaml:"networkTimeout"`
	SyncInterval        string   `yaml:"syncInterval"`
	NetworkFirstRoutes  []string `yaml:"networkFirstRoutes"`
	CacheableAPIRoutes  []string `yaml:"cacheableApiRoutes"`
	CacheFirstRoutes    []string `yaml:"cacheFirstRoutes"`
	StaticAssetPaths    []string `yaml:"staticAssetPaths"`
	OfflineFallbackPath string   `yaml:"offlineFallbackPath"`
}

// LoadConfig reads a yaml config file. Fields left unset keep their
// DefaultConfig values; durations are strings in time.ParseDuration form.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var raw fileConfig
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if raw.CacheVersion != "" {
		cfg.CacheVersion = raw.CacheVersion
	}
	if raw.NetworkTimeout != "" {
		d, err := time.ParseDuration(raw.NetworkTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("networkTimeout: %w", err)
		}
		cfg.NetworkTimeout = d
	}
	if raw.SyncInterval != "" {
		d, err := time.ParseDuration(raw.SyncInterval)
		if err != nil {
			return Config{}, fmt.Errorf("syncInterval: %w", err)
		}
		cfg.SyncInterval = d
	}
	if raw.NetworkFirstRoutes != nil {
		cfg.NetworkFirstRoutes = raw.NetworkFirstRoutes
	}
	if raw.CacheableAPIRoutes != nil {
		cfg.CacheableAPIRoutes = raw.CacheableAPIRoutes
	}
	if raw.CacheFirstRoutes != nil {
		cfg.CacheFirstRoutes = raw.CacheFirstRoutes
	}
	if raw.StaticAssetPaths != nil {
		cfg.StaticAssetPaths = raw.StaticAssetPaths
	}
	if raw.OfflineFallbackPath != "" {
		cfg.OfflineFallbackPath = raw.OfflineFallbackPath
	}

	for name, table := range map[string][]string{
		"networkFirstRoutes": cfg.NetworkFirstRoutes,
		"cacheableApiRoutes": cfg.CacheableAPIRoutes,
		"cacheFirstRoutes":   cfg.CacheFirstRoutes,
		"staticAssetPaths":   cfg.StaticAssetPaths,
	} {
		for i, p := range table {
			if !strings.HasPrefix(p, "/") {
				return Config{}, fmt.Errorf("%s[%d]: %q is not an absolute path", name, i, p)
			}
		}
	}

	return cfg, nil
}
