package caches

import (
	"fmt"
	"net/http"
	"time"
)

var (
	// DefaultExpiredDuration the default retention for durable cache entries
	DefaultExpiredDuration = 24 * time.Hour

	// DefaultExpiredTaskTimer is the default duration of the expired task timer
	DefaultExpiredTaskTimer = 10 * time.Minute
)

// Key derives the cache key for a request. Only GET requests are ever
// cached, but the method is kept in the key so a stored entry is
// self-describing.
func Key(r http.Request) string {
	return fmt.Sprintf("%s#%s", r.Method, r.URL.String())
}
