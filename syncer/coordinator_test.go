package syncer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	offlinesync "github.com/dgduncan/go-offline-sync"
	"github.com/dgduncan/go-offline-sync/bridge"
	"github.com/dgduncan/go-offline-sync/queue"
	storeleveldb "github.com/dgduncan/go-offline-sync/store/leveldb"
	"github.com/dgduncan/go-offline-sync/syncer"
)

type fixture struct {
	store  *storeleveldb.Store
	queue  *queue.Queue
	broker *bridge.Broker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := storeleveldb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	broker := bridge.New()
	q, err := queue.New(db, broker, nil)
	require.NoError(t, err)

	return &fixture{store: db, queue: q, broker: broker}
}

func (f *fixture) coordinator(t *testing.T, monitor *offlinesync.Monitor, cfg *syncer.Config) *syncer.Coordinator {
	t.Helper()

	c, err := syncer.New(f.queue, http.DefaultClient, monitor, f.store, f.broker, cfg, nil)
	require.NoError(t, err)
	return c
}

func (f *fixture) enqueue(t *testing.T, url string) string {
	t.Helper()

	qa, err := f.queue.Enqueue(context.Background(), queue.Action{
		Type:   "form_submission",
		URL:    url,
		Method: http.MethodPost,
		Body:   []byte(`{}`),
	})
	require.NoError(t, err)
	return qa.ID
}

// recordingServer notes the order replayed requests arrive in.
type recordingServer struct {
	*httptest.Server

	mu    sync.Mutex
	paths []string
}

func newRecordingServer(fail func(path string) bool) *recordingServer {
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.paths = append(rs.paths, r.URL.Path)
		rs.mu.Unlock()

		if fail != nil && fail(r.URL.Path) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	return rs
}

func (rs *recordingServer) requests() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]string, len(rs.paths))
	copy(out, rs.paths)
	return out
}

func TestDrainReplaysInFIFOOrder(t *testing.T) {
	t.Parallel()

	server := newRecordingServer(nil)
	defer server.Close()

	f := newFixture(t)
	idA := f.enqueue(t, server.URL+"/a")
	idB := f.enqueue(t, server.URL+"/b")

	c := f.coordinator(t, nil, nil)
	report, err := c.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{idA, idB}, report.Synced)
	assert.Empty(t, report.Failed)
	assert.Equal(t, []string{"/a", "/b"}, server.requests())

	n, err := f.queue.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainIsolatesFailures(t *testing.T) {
	t.Parallel()

	server := newRecordingServer(func(path string) bool { return path == "/a" })
	defer server.Close()

	f := newFixture(t)
	idA := f.enqueue(t, server.URL+"/a")
	idB := f.enqueue(t, server.URL+"/b")

	events, cancel := f.broker.Subscribe()
	defer cancel()

	c := f.coordinator(t, nil, nil)
	report, err := c.Drain(context.Background())
	require.NoError(t, err)

	// The failed item stays queued; the one behind it still synced.
	assert.Equal(t, []string{idA}, report.Failed)
	assert.Equal(t, []string{idB}, report.Synced)

	pending, err := f.queue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, idA, pending[0].ID)

	// Partial success is still a completed pass for consumers.
	waitForEvent(t, events, bridge.TypeSyncCompleted, func(ev bridge.Event) {
		assert.Equal(t, 1, ev.Synced)
		assert.Equal(t, 1, ev.Failed)
	})
}

func TestDrainIsIdempotent(t *testing.T) {
	t.Parallel()

	server := newRecordingServer(nil)
	defer server.Close()

	f := newFixture(t)
	f.enqueue(t, server.URL+"/a")

	c := f.coordinator(t, nil, nil)
	ctx := context.Background()

	_, err := c.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, server.requests(), 1)

	// Everything is synced; a second pass performs zero network calls.
	report, err := c.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Synced)
	assert.Empty(t, report.Failed)
	assert.Len(t, server.requests(), 1)
}

func TestConcurrentDrainCoalesces(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newFixture(t)
	f.enqueue(t, server.URL+"/a")

	c := f.coordinator(t, nil, nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Drain(ctx)
		assert.NoError(t, err)
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first drain never reached the server")
	}

	// A trigger firing mid-drain folds into the running sequence instead
	// of starting a second one.
	report, err := c.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Synced)
	assert.Empty(t, report.Failed)

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first drain never finished")
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	server := newRecordingServer(nil)
	defer server.Close()

	f := newFixture(t)
	f.enqueue(t, server.URL+"/a")

	c := f.coordinator(t, nil, nil)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Pending)
	assert.True(t, st.LastSyncAt.IsZero())

	_, err = c.Drain(ctx)
	require.NoError(t, err)

	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Pending)
	assert.False(t, st.LastSyncAt.IsZero())
}

func TestConnectivityRestoreTriggersDrain(t *testing.T) {
	t.Parallel()

	server := newRecordingServer(nil)
	defer server.Close()

	f := newFixture(t)
	monitor := offlinesync.NewMonitor(false, f.broker)

	// Offline: the form submission lands in the queue, one action with
	// synced=false.
	f.enqueue(t, server.URL+"/bills/add")
	pending, err := f.queue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.False(t, pending[0].Synced)

	events, cancel := f.broker.Subscribe()
	defer cancel()

	c := f.coordinator(t, monitor, nil)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go c.Run(ctx)

	monitor.SetOnline(true)

	// Exactly one network call per queued action, then the broadcast.
	waitForEvent(t, events, bridge.TypeSyncCompleted, func(ev bridge.Event) {
		assert.Equal(t, 1, ev.Synced)
		assert.Equal(t, 0, ev.Failed)
	})
	assert.Equal(t, []string{"/bills/add"}, server.requests())
}

func TestKickTriggersDrain(t *testing.T) {
	t.Parallel()

	server := newRecordingServer(nil)
	defer server.Close()

	f := newFixture(t)
	f.enqueue(t, server.URL+"/a")

	events, cancel := f.broker.Subscribe()
	defer cancel()

	c := f.coordinator(t, nil, nil)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go c.Run(ctx)

	c.Kick()

	waitForEvent(t, events, bridge.TypeSyncCompleted, func(ev bridge.Event) {
		assert.Equal(t, 1, ev.Synced)
	})
}

func waitForEvent(t *testing.T, events <-chan bridge.Event, want bridge.Type, check func(bridge.Event)) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != want {
				continue
			}
			check(ev)
			return
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}
