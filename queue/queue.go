// Package queue durably records write-intents made while offline so the
// sync coordinator can replay them when connectivity returns.
package queue

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dgduncan/go-offline-sync/bridge"
	"github.com/dgduncan/go-offline-sync/caches"
	"github.com/dgduncan/go-offline-sync/store"
)

// Action is the caller-facing shape of a write-intent. ID, timestamp and
// the synced flag are assigned on enqueue.
type Action struct {
	Type   string
	URL    string
	Method string
	Header http.Header
	Body   []byte
}

// Queue owns the queuedActions table: it is the only component that writes
// to it. Successful replay flips synced in place; records are never
// deleted by the engine.
type Queue struct {
	store  store.ActionStore
	broker *bridge.Broker
	logger *slog.Logger
	now    func() time.Time
}

// New creates an action queue over a durable store. The broker may be nil.
func New(as store.ActionStore, broker *bridge.Broker, logger *slog.Logger) (*Queue, error) {
	if as == nil {
		return nil, caches.ValidationError{Reason: "nil action store"}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Queue{
		store:  as,
		broker: broker,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Enqueue persists a write-intent with synced=false and notifies consumers
// of the new pending count. An error means the write was NOT saved, online
// or offline, and the caller must tell the user so.
func (q *Queue) Enqueue(ctx context.Context, a Action) (store.QueuedAction, error) {
	if a.URL == "" || a.Method == "" {
		return store.QueuedAction{}, caches.ValidationError{Reason: "action requires url and method"}
	}

	qa := store.QueuedAction{
		ID:        uuid.NewString(),
		Type:      a.Type,
		URL:       a.URL,
		Method:    a.Method,
		Header:    a.Header,
		Body:      a.Body,
		CreatedAt: q.now().UTC(),
		Synced:    false,
	}

	if err := q.store.Insert(ctx, qa); err != nil {
		return store.QueuedAction{}, err
	}

	q.logger.DebugContext(ctx, "queued offline action",
		"id", qa.ID,
		"type", qa.Type,
		"url", qa.URL,
		"method", qa.Method)

	if q.broker != nil {
		pending, err := q.store.PendingCount(ctx)
		if err != nil {
			q.logger.WarnContext(ctx, "error counting pending actions", "error", err)
		}
		q.broker.Publish(bridge.Event{
			Type:    bridge.TypeActionQueued,
			At:      qa.CreatedAt,
			Pending: pending,
		})
	}

	return qa, nil
}

// Pending returns every unsynced action oldest-first. Later writes may
// depend on earlier ones, so this is the single replay order.
func (q *Queue) Pending(ctx context.Context) ([]store.QueuedAction, error) {
	return q.store.Pending(ctx)
}

// PendingCount returns the number of unsynced actions.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.store.PendingCount(ctx)
}

// MarkSynced flips one action's synced flag; the record is retained.
func (q *Queue) MarkSynced(ctx context.Context, id string) error {
	return q.store.MarkSynced(ctx, id)
}
