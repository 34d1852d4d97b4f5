package offlinesync

import (
	"sync"
	"sync/atomic"

	"github.com/dgduncan/go-offline-sync/bridge"
)

// Monitor is the process-wide source of truth for connectivity. The flag
// transitions only on platform connectivity events fed through SetOnline;
// a single failed request never flips it, since that may be a transient or
// server error rather than a connectivity change.
type Monitor struct {
	online atomic.Bool
	broker *bridge.Broker

	mu       sync.Mutex
	restored []chan struct{}
}

// NewMonitor creates a monitor with an initial state. The broker may be
// nil; transitions then go unannounced.
func NewMonitor(initiallyOnline bool, broker *bridge.Broker) *Monitor {
	m := &Monitor{broker: broker}
	m.online.Store(initiallyOnline)
	return m
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline records a platform connectivity event. An offline-to-online
// transition signals every Restored channel; repeated calls with the same
// state are no-ops.
func (m *Monitor) SetOnline(online bool) {
	prev := m.online.Swap(online)
	if prev == online {
		return
	}

	if m.broker != nil {
		m.broker.Publish(bridge.Event{
			Type:   bridge.TypeConnectivityChanged,
			Online: online,
		})
	}

	if !online {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.restored {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Restored returns a channel that receives one signal per offline-to-online
// transition. The channel is buffered with capacity one, so back-to-back
// transitions coalesce for a listener that has not caught up yet.
func (m *Monitor) Restored() <-chan struct{} {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.restored = append(m.restored, ch)
	return ch
}
