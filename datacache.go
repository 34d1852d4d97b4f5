package offlinesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgduncan/go-offline-sync/caches"
	"github.com/dgduncan/go-offline-sync/store"
)

// DataCache caches application-level derived values (summarized dashboard
// data and the like) as JSON records with a TTL. Expiry is lazy: reads
// filter on the expiry timestamp, expired records stay in the store until
// overwritten.
type DataCache struct {
	store  store.DataStore
	logger *slog.Logger
	now    func() time.Time
}

// NewDataCache creates a data cache over a durable store. If 'now' is nil,
// time.Now is used.
func NewDataCache(ds store.DataStore, now func() time.Time, logger *slog.Logger) (*DataCache, error) {
	if ds == nil {
		return nil, caches.ValidationError{Reason: "nil data store"}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &DataCache{
		store:  ds,
		logger: logger,
		now:    now,
	}, nil
}

// Set stores a value under key for ttl. The value is marshalled to JSON;
// an existing record is overwritten whole.
func (d *DataCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	now := d.now().UTC()
	return d.store.PutRecord(ctx, store.DataRecord{
		Key:       key,
		Data:      data,
		WrittenAt: now,
		ExpiresAt: now.Add(ttl),
	})
}

// Get unmarshals the record under key into v. Missing and expired records
// both report ErrNotFound; callers cannot tell the two apart, by contract.
func (d *DataCache) Get(ctx context.Context, key string, v any) error {
	rec, err := d.store.GetRecord(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNoRecord) || errors.Is(err, store.ErrRecordExpired) {
			return ErrNotFound
		}
		return err
	}
	if rec.Expired(d.now().UTC()) {
		return ErrNotFound
	}

	return json.Unmarshal(rec.Data, v)
}

type refreshEnvelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	CachedAt string          `json:"cached_at"`
	CacheKey string          `json:"cache_key"`
}

// Refresh re-fetches one cache entry from the server's refresh endpoint
// (GET <base>/api/offline/cache/<key>) and stores the returned data under
// key for ttl.
func (d *DataCache) Refresh(ctx context.Context, client *http.Client, base, key string, ttl time.Duration) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/offline/cache/"+key, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("cache refresh for %q returned status %d", key, resp.StatusCode)
	}

	var envelope refreshEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if !envelope.Success {
		return fmt.Errorf("cache refresh for %q rejected by server", key)
	}

	now := d.now().UTC()
	return d.store.PutRecord(ctx, store.DataRecord{
		Key:       key,
		Data:      envelope.Data,
		WrittenAt: now,
		ExpiresAt: now.Add(ttl),
	})
}
