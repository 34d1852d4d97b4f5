package offlinesync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dgduncan/go-offline-sync/bridge"
	"github.com/dgduncan/go-offline-sync/caches"
	"github.com/dgduncan/go-offline-sync/store"
)

// SettingActiveVersion is the settings-table key recording the cache
// version that last completed activation.
const SettingActiveVersion = "active_cache_version"

// Manager owns the three versioned cache tiers: creation, lookup, write,
// and version-based eviction. Only the manager writes to the cache store;
// any caller may read through it.
type Manager struct {
	cache   CacheStore
	version string

	settings store.SettingStore
	broker   *bridge.Broker
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a tier manager for one cache version. The settings
// store and broker may be nil; activation then skips the version record and
// the broadcast respectively.
func NewManager(cache CacheStore, version string, settings store.SettingStore, broker *bridge.Broker, logger *slog.Logger) (*Manager, error) {
	if cache == nil {
		return nil, caches.ValidationError{Reason: "nil cache store"}
	}
	if version == "" {
		return nil, caches.ValidationError{Reason: "empty cache version"}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Manager{
		cache:    cache,
		version:  version,
		settings: settings,
		broker:   broker,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Put stores a response in one tier of the current version.
func (m *Manager) Put(ctx context.Context, ns Namespace, key string, item *CacheItem) error {
	return m.cache.Set(ctx, ns.Qualified(m.version), key, item)
}

// MatchIn looks a key up in a single tier of the current version.
// Returns ErrNotFound when the tier has no entry.
func (m *Manager) MatchIn(ctx context.Context, ns Namespace, key string) (*CacheItem, error) {
	item, err := m.cache.Get(ctx, ns.Qualified(m.version), key)
	if err != nil {
		if errors.Is(err, caches.ErrNoCacheItem) || errors.Is(err, caches.ErrNoNamespace) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// Match searches every tier of the current version in fallback order and
// returns the first hit. Storage errors on one tier are logged and the
// search continues; the caller only sees ErrNotFound when no tier answers.
func (m *Manager) Match(ctx context.Context, key string) (*CacheItem, error) {
	for _, ns := range Tiers {
		item, err := m.MatchIn(ctx, ns, key)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrNotFound) {
			m.logger.WarnContext(ctx, "cache tier lookup failed", "namespace", string(ns), "error", err)
		}
	}
	return nil, ErrNotFound
}

// Activate makes the manager's version the current one: every namespace in
// the store whose name is not on the current-version whitelist is dropped.
// This is the sole eviction mechanism; there is no size-based eviction.
// The active version is recorded in settings and broadcast to consumers.
func (m *Manager) Activate(ctx context.Context) error {
	whitelist := make(map[string]struct{}, len(Tiers))
	for _, ns := range Tiers {
		whitelist[ns.Qualified(m.version)] = struct{}{}
	}

	names, err := m.cache.Namespaces(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if _, keep := whitelist[name]; keep {
			continue
		}
		m.logger.DebugContext(ctx, "evicting stale cache namespace", "namespace", name)
		if err := m.cache.Drop(ctx, name); err != nil {
			m.logger.WarnContext(ctx, "error dropping stale namespace", "namespace", name, "error", err)
		}
	}

	if m.settings != nil {
		if err := m.settings.PutSetting(ctx, SettingActiveVersion, m.version); err != nil {
			m.logger.WarnContext(ctx, "error recording active cache version", "error", err)
		}
	}

	if m.broker != nil {
		m.broker.Publish(bridge.Event{
			Type:    bridge.TypeVersionActivated,
			At:      m.now(),
			Version: m.version,
		})
	}

	return nil
}

// Version returns the manager's cache version token.
func (m *Manager) Version() string {
	return m.version
}
