package offlinesync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("cache item not found")
)

// Namespace identifies one logical cache tier. Exactly one qualified
// namespace per tier is current for a given cache version; superseded
// versions are removed during activation.
type Namespace string

const (
	// NamespaceStatic holds immutable assets served cache-first.
	NamespaceStatic Namespace = "static"
	// NamespaceDynamic holds responses captured by network-first routes.
	NamespaceDynamic Namespace = "dynamic"
	// NamespaceAPI holds API responses served stale-while-revalidate.
	NamespaceAPI Namespace = "api"
)

// Tiers lists every namespace in fallback search order: dynamic first
// (freshest captures), then api, then static.
var Tiers = []Namespace{NamespaceDynamic, NamespaceAPI, NamespaceStatic}

// Qualified returns the versioned storage name for the namespace,
// e.g. "app-static-v2.1".
func (n Namespace) Qualified(version string) string {
	return fmt.Sprintf("app-%s-v%s", n, version)
}

// CacheItem is one stored response. Response holds the wire dump of the
// full response (status line, headers, body) so it can be replayed with
// http.ReadResponse. Items are overwritten whole, never mutated.
type CacheItem struct {
	Response   []byte
	CapturedAt time.Time
}

// CacheStore is the storage contract behind the tier manager. Namespaces
// are version-qualified names; implementations must keep entries from
// different namespaces fully isolated.
type CacheStore interface {
	Get(ctx context.Context, namespace, key string) (*CacheItem, error)
	Set(ctx context.Context, namespace, key string, item *CacheItem) error

	// Namespaces enumerates every namespace that currently holds entries.
	Namespaces(ctx context.Context) ([]string, error)
	// Drop removes a namespace and everything in it.
	Drop(ctx context.Context, namespace string) error
}
