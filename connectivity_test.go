package offlinesync_test

import (
	"testing"
	"time"

	offlinesync "github.com/dgduncan/go-offline-sync"
	"github.com/dgduncan/go-offline-sync/bridge"
)

func TestMonitorTransitions(t *testing.T) {
	t.Parallel()

	broker := bridge.New()
	events, cancel := broker.Subscribe()
	defer cancel()

	m := offlinesync.NewMonitor(true, broker)
	if !m.Online() {
		t.Fatal("expected initial online state")
	}

	restored := m.Restored()

	// Same-state calls are no-ops: no event, no restore signal.
	m.SetOnline(true)
	select {
	case <-events:
		t.Error("unexpected event for same-state transition")
	default:
	}

	m.SetOnline(false)
	if m.Online() {
		t.Error("expected offline after SetOnline(false)")
	}
	select {
	case ev := <-events:
		if ev.Type != bridge.TypeConnectivityChanged || ev.Online {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("expected a connectivity event")
	}
	select {
	case <-restored:
		t.Error("going offline must not signal a restore")
	default:
	}

	m.SetOnline(true)
	select {
	case <-restored:
	case <-time.After(time.Second):
		t.Error("expected a restore signal")
	}
}
