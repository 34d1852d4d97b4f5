// Package store defines the durable persistence contracts behind the
// action queue and the application-level data cache: two logical tables
// (queuedActions, cachedData) plus a settings table, all of which survive
// process restarts.
package store

import (
	"context"
	"net/http"
	"time"
)

// QueuedAction is one durably stored write-intent awaiting replay. Records
// are mutated only to flip Synced to true and are never deleted by the
// engine; they are retained for audit.
type QueuedAction struct {
	ID        string
	Type      string
	URL       string
	Method    string
	Header    http.Header
	Body      []byte
	CreatedAt time.Time
	Synced    bool
}

// DataRecord is one application-level cached value with lazy expiry: an
// expired record stays in the store but is never returned by a read.
type DataRecord struct {
	Key       string
	Data      []byte
	WrittenAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at the given time.
func (r DataRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ActionStore persists queued actions.
type ActionStore interface {
	// Insert stores a new action.
	Insert(ctx context.Context, a QueuedAction) error
	// Pending returns all unsynced actions ordered oldest-first.
	Pending(ctx context.Context) ([]QueuedAction, error)
	// PendingCount returns the number of unsynced actions.
	PendingCount(ctx context.Context) (int, error)
	// MarkSynced flips an action's synced flag in place.
	MarkSynced(ctx context.Context, id string) error
}

// DataStore persists application-level cache records.
type DataStore interface {
	// GetRecord returns a record by key. Expired records are returned
	// with ErrRecordExpired so callers can keep lazy-expiry semantics.
	GetRecord(ctx context.Context, key string) (*DataRecord, error)
	// PutRecord overwrites a record whole.
	PutRecord(ctx context.Context, rec DataRecord) error
}

// SettingStore persists small engine settings such as the active cache
// version and the last successful sync time.
type SettingStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Store combines the three durable tables.
type Store interface {
	ActionStore
	DataStore
	SettingStore
}
