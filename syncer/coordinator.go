// Package syncer drains the action queue against the network. A drain is
// triggered by connectivity restoration, by the periodic background tick,
// or manually from the UI; overlapping triggers coalesce into the single
// FIFO replay sequence.
package syncer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	offlinesync "github.com/dgduncan/go-offline-sync"
	"github.com/dgduncan/go-offline-sync/bridge"
	"github.com/dgduncan/go-offline-sync/caches"
	"github.com/dgduncan/go-offline-sync/queue"
	"github.com/dgduncan/go-offline-sync/store"
)

// SettingLastSync is the settings-table key recording when the last drain
// pass finished.
const SettingLastSync = "last_sync_at"

// Doer issues one replayed request. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Config defines the configuration options for the coordinator.
type Config struct {
	// Interval is the period of the background drain trigger in Run.
	// Zero disables periodic drains.
	Interval time.Duration
}

// Report summarizes one drain pass per item, the way the server's sync
// endpoint reports per-action results.
type Report struct {
	Synced []string
	Failed []string
}

// Coordinator replays queued actions. At most one drain runs at a time; a
// trigger arriving mid-drain schedules one follow-up pass instead of a
// concurrent one.
type Coordinator struct {
	queue    *queue.Queue
	client   Doer
	monitor  *offlinesync.Monitor
	settings store.SettingStore
	broker   *bridge.Broker
	logger   *slog.Logger
	now      func() time.Time

	interval time.Duration

	draining atomic.Bool
	rerun    atomic.Bool
	kick     chan struct{}
}

// New creates a coordinator. The monitor, settings store and broker may be
// nil; a nil client defaults to http.DefaultClient.
func New(q *queue.Queue, client Doer, monitor *offlinesync.Monitor, settings store.SettingStore, broker *bridge.Broker, cfg *Config, logger *slog.Logger) (*Coordinator, error) {
	if q == nil {
		return nil, caches.ValidationError{Reason: "nil queue"}
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := Config{}
	if cfg != nil {
		c = *cfg
	}

	return &Coordinator{
		queue:    q,
		client:   client,
		monitor:  monitor,
		settings: settings,
		broker:   broker,
		logger:   logger,
		now:      time.Now,
		interval: c.Interval,
		kick:     make(chan struct{}, 1),
	}, nil
}

// Drain replays every unsynced action in creation order. A failure on one
// item is logged and the item stays unsynced; it never aborts the rest of
// the pass. After each pass consumers are notified once; partial success
// is success for UI purposes, the next drain retries what remains.
//
// If a drain is already running, the call coalesces into a follow-up pass
// and returns an empty report.
func (c *Coordinator) Drain(ctx context.Context) (Report, error) {
	if !c.draining.CompareAndSwap(false, true) {
		c.rerun.Store(true)
		c.logger.DebugContext(ctx, "drain already in progress, coalescing trigger")
		return Report{}, nil
	}
	defer c.draining.Store(false)

	var report Report
	for {
		r, err := c.drainOnce(ctx)
		if err != nil {
			return report, err
		}
		report.Synced = append(report.Synced, r.Synced...)
		report.Failed = append(report.Failed, r.Failed...)

		if !c.rerun.Swap(false) {
			return report, nil
		}
	}
}

func (c *Coordinator) drainOnce(ctx context.Context) (Report, error) {
	pending, err := c.queue.Pending(ctx)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, a := range pending {
		if err := c.replay(ctx, a); err != nil {
			// Stays unsynced; the next trigger retries it.
			c.logger.WarnContext(ctx, "replay failed", "id", a.ID, "url", a.URL, "error", err)
			report.Failed = append(report.Failed, a.ID)
			continue
		}

		if err := c.queue.MarkSynced(ctx, a.ID); err != nil {
			c.logger.WarnContext(ctx, "error marking action synced", "id", a.ID, "error", err)
			report.Failed = append(report.Failed, a.ID)
			continue
		}
		report.Synced = append(report.Synced, a.ID)
	}

	if len(pending) > 0 {
		c.logger.DebugContext(ctx, "drain pass complete",
			"synced", len(report.Synced),
			"failed", len(report.Failed))
	}

	now := c.now().UTC()
	if c.settings != nil {
		if err := c.settings.PutSetting(ctx, SettingLastSync, now.Format(time.RFC3339)); err != nil {
			c.logger.WarnContext(ctx, "error recording last sync time", "error", err)
		}
	}

	if c.broker != nil {
		c.broker.Publish(bridge.Event{
			Type:   bridge.TypeSyncCompleted,
			At:     now,
			Synced: len(report.Synced),
			Failed: len(report.Failed),
		})
	}

	return report, nil
}

// replay re-issues the original method/URL/headers/body. A 2xx response
// means the write is durably applied; anything else means "not yet synced,
// retry later".
func (c *Coordinator) replay(ctx context.Context, a store.QueuedAction) error {
	req, err := http.NewRequestWithContext(ctx, a.Method, a.URL, bytes.NewReader(a.Body))
	if err != nil {
		return err
	}
	for k, vs := range a.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server rejected replay with status %d", resp.StatusCode)
	}
	return nil
}

// Kick requests a manual drain from the trigger loop. Multiple kicks
// before the loop wakes up coalesce into one.
func (c *Coordinator) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Run watches the drain triggers until ctx is canceled: connectivity
// restoration, the periodic tick, and manual kicks. Periodic ticks are
// skipped while offline; a restore event always drains.
func (c *Coordinator) Run(ctx context.Context) {
	var restored <-chan struct{}
	if c.monitor != nil {
		restored = c.monitor.Restored()
	}

	var tick <-chan time.Time
	if c.interval > 0 {
		t := time.NewTicker(c.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-restored:
			c.drainAndLog(ctx)
		case <-tick:
			if c.monitor != nil && !c.monitor.Online() {
				continue
			}
			c.drainAndLog(ctx)
		case <-c.kick:
			c.drainAndLog(ctx)
		}
	}
}

func (c *Coordinator) drainAndLog(ctx context.Context) {
	if _, err := c.Drain(ctx); err != nil {
		c.logger.WarnContext(ctx, "drain failed", "error", err)
	}
}

// Status reports the queue state for UI consumers: the pending count and
// the last time a drain pass finished.
type Status struct {
	Pending    int
	LastSyncAt time.Time
}

// Status returns the current sync status.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	pending, err := c.queue.PendingCount(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{Pending: pending}
	if c.settings != nil {
		raw, err := c.settings.GetSetting(ctx, SettingLastSync)
		if err == nil {
			if ts, perr := time.Parse(time.RFC3339, raw); perr == nil {
				st.LastSyncAt = ts
			}
		}
	}
	return st, nil
}
