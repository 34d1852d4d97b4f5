// Package leveldb implements the durable store on goleveldb: queued
// actions, application cache records and settings in one database, each
// table under its own key prefix.
package leveldb

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dgduncan/go-offline-sync/store"
)

const (
	actionPrefix  = "q:"
	actionIndex   = "qid:"
	recordPrefix  = "d:"
	settingPrefix = "s:"
)

// Store implements store.Store. Queued actions are keyed by creation time
// (nanoseconds, zero-padded) so prefix iteration yields FIFO order; an id
// index points each action id at its timestamped key.
type Store struct {
	db      *leveldb.DB
	ownedDB bool
}

// Open opens (or creates) a durable store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, ownedDB: true}, nil
}

// NewWithDB wraps an already open database without taking ownership of it.
func NewWithDB(db *leveldb.DB) *Store {
	return &Store{db: db}
}

// Close closes the database if this store opened it.
func (s *Store) Close() error {
	if !s.ownedDB {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle so the response cache can share it.
func (s *Store) DB() *leveldb.DB {
	return s.db
}

func (s *Store) Insert(_ context.Context, a store.QueuedAction) error {
	val, err := encodeGob(&a)
	if err != nil {
		return err
	}

	key := actionKey(a)
	batch := new(leveldb.Batch)
	batch.Put(key, val)
	batch.Put([]byte(actionIndex+a.ID), key)
	return s.db.Write(batch, nil)
}

func (s *Store) Pending(_ context.Context) ([]store.QueuedAction, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(actionPrefix)), nil)
	defer it.Release()

	var out []store.QueuedAction
	for it.Next() {
		var a store.QueuedAction
		if err := decodeGob(it.Value(), &a); err != nil {
			return nil, err
		}
		if a.Synced {
			continue
		}
		out = append(out, a)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}

	// Key order is already creation order; the sort keeps that guarantee
	// even for actions sharing a timestamp.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) PendingCount(ctx context.Context) (int, error) {
	pending, err := s.Pending(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

func (s *Store) MarkSynced(_ context.Context, id string) error {
	key, err := s.db.Get([]byte(actionIndex+id), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return store.ErrNoAction
		}
		return err
	}

	raw, err := s.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return store.ErrNoAction
		}
		return err
	}

	var a store.QueuedAction
	if err := decodeGob(raw, &a); err != nil {
		return err
	}
	a.Synced = true

	val, err := encodeGob(&a)
	if err != nil {
		return err
	}
	return s.db.Put(key, val, nil)
}

func (s *Store) GetRecord(_ context.Context, key string) (*store.DataRecord, error) {
	raw, err := s.db.Get([]byte(recordPrefix+key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, store.ErrNoRecord
		}
		return nil, err
	}

	var rec store.DataRecord
	if err := decodeGob(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) PutRecord(_ context.Context, rec store.DataRecord) error {
	val, err := encodeGob(&rec)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(recordPrefix+rec.Key), val, nil)
}

func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	raw, err := s.db.Get([]byte(settingPrefix+key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return "", store.ErrNoSetting
		}
		return "", err
	}
	return string(raw), nil
}

func (s *Store) PutSetting(_ context.Context, key, value string) error {
	return s.db.Put([]byte(settingPrefix+key), []byte(value), nil)
}

func actionKey(a store.QueuedAction) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", actionPrefix, a.CreatedAt.UTC().UnixNano(), a.ID))
}

func encodeGob(v any) ([]byte, error) {
	var buff bytes.Buffer
	if err := gob.NewEncoder(&buff).Encode(v); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

func decodeGob(raw []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(raw)).Decode(v)
}
