//go:build !integration

package leveldb

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/dgduncan/go-offline-sync/store"
)

func testAction(id string, createdAt time.Time) store.QueuedAction {
	return store.QueuedAction{
		ID:        id,
		Type:      "form_submission",
		URL:       "https://example.com/bills/add",
		Method:    http.MethodPost,
		Header:    http.Header{"Content-Type": []string{"application/json"}},
		Body:      []byte(`{"title":"rent"}`),
		CreatedAt: createdAt,
	}
}

func TestPendingOrder(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	// Inserted out of creation order on purpose.
	for _, a := range []store.QueuedAction{
		testAction("b", base.Add(2*time.Second)),
		testAction("a", base.Add(1*time.Second)),
		testAction("c", base.Add(3*time.Second)),
	} {
		if err := s.Insert(ctx, a); err != nil {
			t.Fatalf("Insert(%s): %v", a.ID, err)
		}
	}

	pending, err := s.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}
	for i, want := range []string{"a", "b", "c"} {
		if pending[i].ID != want {
			t.Errorf("pending[%d] = %s, want %s", i, pending[i].ID, want)
		}
	}

	if pending[0].Header.Get("Content-Type") != "application/json" {
		t.Errorf("headers did not survive the round trip: %v", pending[0].Header)
	}
}

func TestMarkSynced(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := s.Insert(ctx, testAction("a", base)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.MarkSynced(ctx, "a"); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	// Synced records are retained but no longer pending.
	n, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 pending after sync, got %d", n)
	}

	if err := s.MarkSynced(ctx, "missing"); !errors.Is(err, store.ErrNoAction) {
		t.Errorf("expected ErrNoAction, got %v", err)
	}
}

func TestRecordsAndSettings(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.GetRecord(ctx, "dashboard_summary"); !errors.Is(err, store.ErrNoRecord) {
		t.Errorf("expected ErrNoRecord, got %v", err)
	}

	rec := store.DataRecord{
		Key:       "dashboard_summary",
		Data:      []byte(`{"total":3}`),
		WrittenAt: base,
		ExpiresAt: base.Add(time.Hour),
	}
	if err := s.PutRecord(ctx, rec); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	got, err := s.GetRecord(ctx, "dashboard_summary")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if string(got.Data) != `{"total":3}` {
		t.Errorf("unexpected data %s", got.Data)
	}

	if _, err := s.GetSetting(ctx, "active_cache_version"); !errors.Is(err, store.ErrNoSetting) {
		t.Errorf("expected ErrNoSetting, got %v", err)
	}
	if err := s.PutSetting(ctx, "active_cache_version", "2.1"); err != nil {
		t.Fatalf("PutSetting: %v", err)
	}
	v, err := s.GetSetting(ctx, "active_cache_version")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "2.1" {
		t.Errorf("expected 2.1, got %s", v)
	}
}

func TestSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	base := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	if err := s.Insert(ctx, testAction("a", base)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer s.Close()

	pending, err := s.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending after reopen: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "a" {
		t.Errorf("expected queued action to survive restart, got %v", pending)
	}
}
