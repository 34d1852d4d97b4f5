package offlinesync

import "strings"

// Strategy is the read policy selected for one request class.
type Strategy int

const (
	// StrategyNetworkFirst tries the network and falls back to cache.
	StrategyNetworkFirst Strategy = iota
	// StrategyCacheFirst serves from cache and only fetches on a miss.
	StrategyCacheFirst
	// StrategyStaleWhileRevalidate serves from cache immediately and
	// refreshes it in the background.
	StrategyStaleWhileRevalidate
)

func (s Strategy) String() string {
	switch s {
	case StrategyNetworkFirst:
		return "network-first"
	case StrategyCacheFirst:
		return "cache-first"
	case StrategyStaleWhileRevalidate:
		return "stale-while-revalidate"
	}
	return "unknown"
}

// Classifier selects a strategy and a write namespace for a request path.
// It is a pure function of the path and the compiled tables; network and
// storage never enter into classification.
type Classifier struct {
	networkFirst []string
	cacheableAPI []string
	cacheFirst   []string
	staticAssets map[string]struct{}
}

// NewClassifier compiles the config's route tables.
func NewClassifier(cfg Config) *Classifier {
	assets := make(map[string]struct{}, len(cfg.StaticAssetPaths))
	for _, p := range cfg.StaticAssetPaths {
		assets[p] = struct{}{}
	}

	return &Classifier{
		networkFirst: cfg.NetworkFirstRoutes,
		cacheableAPI: cfg.CacheableAPIRoutes,
		cacheFirst:   cfg.CacheFirstRoutes,
		staticAssets: assets,
	}
}

// Classify returns the strategy for a path and the namespace a successful
// network response should be written to. Precedence is fixed: network-first
// rules beat cacheable-API rules beat cache-first rules beat exact static
// asset matches beat the stale-while-revalidate default. First matching
// prefix wins within a table; matches are never combined.
func (c *Classifier) Classify(path string) (Strategy, Namespace) {
	if matchPrefix(c.networkFirst, path) {
		return StrategyNetworkFirst, NamespaceDynamic
	}
	if matchPrefix(c.cacheableAPI, path) {
		return StrategyStaleWhileRevalidate, NamespaceAPI
	}
	if matchPrefix(c.cacheFirst, path) {
		return StrategyCacheFirst, NamespaceStatic
	}
	if _, ok := c.staticAssets[path]; ok {
		return StrategyCacheFirst, NamespaceStatic
	}
	return StrategyStaleWhileRevalidate, NamespaceDynamic
}

func matchPrefix(table []string, path string) bool {
	for _, prefix := range table {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
