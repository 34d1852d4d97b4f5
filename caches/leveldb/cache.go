// Package leveldb implements a durable CacheStore on goleveldb. Cached
// responses survive process restarts, which is what lets a cold start
// serve pages while offline.
package leveldb

import (
	"bytes"
	"context"
	"encoding/gob"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	offlinesync "github.com/dgduncan/go-offline-sync"
	"github.com/dgduncan/go-offline-sync/caches"
)

const keyPrefix = "c:"

// Cache implements offlinesync.CacheStore. Entries are stored under
// "c:<namespace>:<key>" with gob-encoded values; namespace names never
// contain a colon, so the split is unambiguous.
type Cache struct {
	db *leveldb.DB
}

// New opens (or creates) a leveldb-backed cache at path.
func New(path string) (*Cache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// NewWithDB wraps an already open database, letting the response cache and
// the durable store share one leveldb file.
func NewWithDB(db *leveldb.DB) (*Cache, error) {
	if db == nil {
		return nil, caches.ValidationError{Reason: "nil leveldb handle"}
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Get(_ context.Context, namespace, key string) (*offlinesync.CacheItem, error) {
	raw, err := c.db.Get(storageKey(namespace, key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, caches.ErrNoCacheItem
		}
		return nil, err
	}

	var item offlinesync.CacheItem
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Cache) Set(_ context.Context, namespace, key string, item *offlinesync.CacheItem) error {
	var buff bytes.Buffer
	if err := gob.NewEncoder(&buff).Encode(item); err != nil {
		return err
	}
	return c.db.Put(storageKey(namespace, key), buff.Bytes(), nil)
}

func (c *Cache) Namespaces(_ context.Context) ([]string, error) {
	it := c.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer it.Release()

	seen := map[string]struct{}{}
	for it.Next() {
		rest := strings.TrimPrefix(string(it.Key()), keyPrefix)
		ns, _, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		seen[ns] = struct{}{}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	return out, nil
}

func (c *Cache) Drop(_ context.Context, namespace string) error {
	it := c.db.NewIterator(util.BytesPrefix([]byte(keyPrefix+namespace+":")), nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		batch.Delete(k)
	}
	if err := it.Error(); err != nil {
		return err
	}

	return c.db.Write(batch, nil)
}

func storageKey(namespace, key string) []byte {
	return []byte(keyPrefix + namespace + ":" + key)
}
