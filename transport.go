package offlinesync

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"sync"
	"time"

	"github.com/dgduncan/go-offline-sync/caches"
)

// SyncTransport implements http.RoundTripper and provides offline-first
// request handling. Every GET request over http(s) is classified into one
// of three strategies; non-GET requests and other schemes pass through
// untouched (offline writes are handled by the action queue at the
// application layer, not by request interception).
type SyncTransport struct {
	Wrapped http.RoundTripper

	manager    *Manager
	classifier *Classifier
	monitor    *Monitor
	logger     *slog.Logger
	now        func() time.Time

	timeout      time.Duration
	fallbackPath string

	bgSem chan struct{}
	wg    sync.WaitGroup
}

// RoundTrip implements http.RoundTripper. It selects exactly one strategy
// for the request and executes it:
//
//   - network-first: live response when the network answers, cached
//     response otherwise, synthesized offline response as the last resort
//   - cache-first: cached response when present, network on a miss
//   - stale-while-revalidate: cached response immediately with a background
//     refresh; the network is awaited only on a cache miss
//
// Every path returns a well-formed response; nothing here hangs or
// propagates a network error to the caller.
func (t *SyncTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Method != http.MethodGet {
		return t.Wrapped.RoundTrip(r)
	}
	if r.URL.Scheme != "http" && r.URL.Scheme != "https" {
		return t.Wrapped.RoundTrip(r)
	}

	ctx := r.Context()
	key := caches.Key(*r)
	strategy, ns := t.classifier.Classify(r.URL.Path)

	t.logger.DebugContext(ctx, "dispatching request",
		"url", r.URL.String(),
		"strategy", strategy.String(),
		"namespace", string(ns))

	switch strategy {
	case StrategyNetworkFirst:
		return t.networkFirst(ctx, r, ns, key), nil
	case StrategyCacheFirst:
		return t.cacheFirst(ctx, r, ns, key), nil
	default:
		return t.staleWhileRevalidate(ctx, r, ns, key), nil
	}
}

func (t *SyncTransport) networkFirst(ctx context.Context, r *http.Request, ns Namespace, key string) *http.Response {
	if t.online() {
		resp, err := t.fetch(r)
		if err == nil {
			t.cacheResponse(ctx, ns, key, resp)
			return resp
		}
		t.logger.DebugContext(ctx, "network-first fetch failed, falling back to cache", "url", r.URL.String(), "error", err)
	}

	if item, err := t.manager.Match(ctx, key); err == nil {
		if resp, err := readCachedResponse(item, r); err == nil {
			return resp
		}
	}

	return t.synthesizeOffline(ctx, r)
}

func (t *SyncTransport) cacheFirst(ctx context.Context, r *http.Request, ns Namespace, key string) *http.Response {
	if item, err := t.manager.MatchIn(ctx, ns, key); err == nil {
		if resp, err := readCachedResponse(item, r); err == nil {
			return resp
		}
	}

	if t.online() {
		resp, err := t.fetch(r)
		if err == nil {
			t.cacheResponse(ctx, ns, key, resp)
			return resp
		}
		t.logger.DebugContext(ctx, "cache-first fetch failed", "url", r.URL.String(), "error", err)
	}

	return t.synthesizeOffline(ctx, r)
}

func (t *SyncTransport) staleWhileRevalidate(ctx context.Context, r *http.Request, ns Namespace, key string) *http.Response {
	if item, err := t.manager.MatchIn(ctx, ns, key); err == nil {
		if resp, err := readCachedResponse(item, r); err == nil {
			// The caller never waits for the refresh; read latency is
			// bounded by the cache lookup.
			t.refreshAsync(r, ns, key)
			return resp
		}
	}

	if t.online() {
		resp, err := t.fetch(r)
		if err == nil {
			t.cacheResponse(ctx, ns, key, resp)
			return resp
		}
		t.logger.DebugContext(ctx, "revalidate fetch failed", "url", r.URL.String(), "error", err)
	}

	return t.synthesizeOffline(ctx, r)
}

func (t *SyncTransport) online() bool {
	return t.monitor == nil || t.monitor.Online()
}

// fetch runs the network leg under the configured timeout so a hung
// connection cannot starve the cache-fallback path.
func (t *SyncTransport) fetch(r *http.Request) (*http.Response, error) {
	if t.timeout <= 0 {
		return t.Wrapped.RoundTrip(r)
	}

	ctx, cancel := context.WithTimeout(r.Context(), t.timeout)
	resp, err := t.Wrapped.RoundTrip(r.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cacheResponse stores a successful response in one tier. A cache-write
// failure never fails the read; the network response is still returned.
func (t *SyncTransport) cacheResponse(ctx context.Context, ns Namespace, key string, resp *http.Response) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return
	}

	dump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		t.logger.WarnContext(ctx, "error dumping response for cache", "error", err)
		return
	}

	if err := t.manager.Put(ctx, ns, key, &CacheItem{
		Response:   dump,
		CapturedAt: t.now().UTC(),
	}); err != nil {
		t.logger.WarnContext(ctx, "error caching response", "error", err)
	}
}

// refreshAsync issues the revalidation request in the background. The
// refresh is fire and forget relative to the caller: it runs under its own
// context at process scope, so navigating away from a page does not cancel
// it. Concurrency is bounded by a semaphore; when it is full the refresh is
// skipped, the next request will try again.
func (t *SyncTransport) refreshAsync(r *http.Request, ns Namespace, key string) {
	if !t.online() {
		return
	}

	select {
	case t.bgSem <- struct{}{}:
	default:
		return
	}

	req := r.Clone(context.Background())
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() { <-t.bgSem }()

		ctx := context.Background()
		if t.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.timeout)
			defer cancel()
		}

		resp, err := t.Wrapped.RoundTrip(req.WithContext(ctx))
		if err != nil {
			t.logger.DebugContext(ctx, "background refresh failed", "url", req.URL.String(), "error", err)
			return
		}
		defer resp.Body.Close()

		t.cacheResponse(ctx, ns, key, resp)
	}()
}

// Flush waits for in-flight background refreshes to settle. Intended for
// shutdown and tests.
func (t *SyncTransport) Flush() {
	t.wg.Wait()
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// New creates a transport middleware that adds offline-first behavior to an
// HTTP RoundTripper.
//
// The manager provides the versioned cache tiers and the monitor provides
// the connectivity state; a nil monitor is treated as always online. If
// opts is nil, DefaultConfig is used. If 'now' is nil, time.Now is used.
// If the logger is nil, a no-op logger writing to io.Discard is used.
func New(
	manager *Manager,
	monitor *Monitor,
	opts *Config,
	now func() time.Time,
	logger *slog.Logger,
) func(http.RoundTripper) http.RoundTripper {
	nowFunc := now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := Config{}
	if opts == nil {
		c = DefaultConfig()
	} else {
		c = *opts
	}

	return func(rt http.RoundTripper) http.RoundTripper {
		return &SyncTransport{
			Wrapped:      rt,
			manager:      manager,
			classifier:   NewClassifier(c),
			monitor:      monitor,
			logger:       logger,
			now:          nowFunc,
			timeout:      c.NetworkTimeout,
			fallbackPath: c.OfflineFallbackPath,
			bgSem:        make(chan struct{}, 8),
		}
	}
}
