package offlinesync

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const offlinePageHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Offline</title></head>
<body>
<h1>You are offline</h1>
<p>This page is not available right now. Your changes are saved locally and will sync once you are back online.</p>
</body>
</html>
`

type offlinePayload struct {
	Offline   bool   `json:"offline"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// synthesizeOffline fabricates a well-formed response for a request that
// neither network nor cache could satisfy. HTML and JSON consumers get a
// soft success (status 200) so their rendering paths need no offline
// branch; everything else gets a hard 503.
func (t *SyncTransport) synthesizeOffline(ctx context.Context, r *http.Request) *http.Response {
	accept := r.Header.Get("Accept")

	switch {
	case strings.Contains(accept, "text/html"):
		if item, err := t.manager.Match(ctx, t.fallbackKey(r)); err == nil {
			if resp, err := readCachedResponse(item, r); err == nil {
				return resp
			}
		}
		return newResponse(r, http.StatusOK, "text/html; charset=utf-8", []byte(offlinePageHTML))

	case strings.Contains(accept, "application/json"):
		body, _ := json.Marshal(offlinePayload{
			Offline:   true,
			Message:   "You are offline. Data will sync when connection is restored.",
			Timestamp: t.now().UTC().Format(time.RFC3339),
		})
		return newResponse(r, http.StatusOK, "application/json", body)

	default:
		return newResponse(r, http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte("offline"))
	}
}

// fallbackKey is the cache key of the configured offline page on the same
// origin as the request.
func (t *SyncTransport) fallbackKey(r *http.Request) string {
	u := *r.URL
	u.Path = t.fallbackPath
	u.RawQuery = ""
	u.Fragment = ""
	return fmt.Sprintf("%s#%s", http.MethodGet, u.String())
}

func newResponse(r *http.Request, status int, contentType string, body []byte) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       r,
	}
}

// readCachedResponse replays a stored wire dump as a response to r.
func readCachedResponse(item *CacheItem, r *http.Request) (*http.Response, error) {
	nr := bufio.NewReader(bytes.NewReader(item.Response))
	return http.ReadResponse(nr, r)
}
