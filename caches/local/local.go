package local

import (
	"context"
	"sync"

	offlinesync "github.com/dgduncan/go-offline-sync"
	"github.com/dgduncan/go-offline-sync/caches"
)

// BasicCache is an in-memory CacheStore. Entries do not survive a process
// restart; it exists for tests and for callers that only want the durable
// store to persist.
type BasicCache struct {
	namespaces map[string]map[string]*offlinesync.CacheItem

	lock sync.RWMutex
}

func (bc *BasicCache) Get(_ context.Context, namespace, key string) (*offlinesync.CacheItem, error) {
	bc.lock.RLock()
	defer bc.lock.RUnlock()

	ns, found := bc.namespaces[namespace]
	if !found {
		return nil, caches.ErrNoNamespace
	}

	val, found := ns[key]
	if !found {
		return nil, caches.ErrNoCacheItem
	}

	return val, nil
}

func (bc *BasicCache) Set(_ context.Context, namespace, key string, item *offlinesync.CacheItem) error {
	bc.lock.Lock()
	defer bc.lock.Unlock()

	ns, found := bc.namespaces[namespace]
	if !found {
		ns = make(map[string]*offlinesync.CacheItem)
		bc.namespaces[namespace] = ns
	}

	ns[key] = item

	return nil
}

func (bc *BasicCache) Namespaces(_ context.Context) ([]string, error) {
	bc.lock.RLock()
	defer bc.lock.RUnlock()

	out := make([]string, 0, len(bc.namespaces))
	for name := range bc.namespaces {
		out = append(out, name)
	}
	return out, nil
}

func (bc *BasicCache) Drop(_ context.Context, namespace string) error {
	bc.lock.Lock()
	defer bc.lock.Unlock()

	delete(bc.namespaces, namespace)

	return nil
}

func NewBasicCache() BasicCache {
	return BasicCache{
		namespaces: make(map[string]map[string]*offlinesync.CacheItem),
		lock:       sync.RWMutex{},
	}
}
