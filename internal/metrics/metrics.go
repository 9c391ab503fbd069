package metrics

import "sync"

// Switchboard event names.
const (
	EventConnectionOpened     = "connection_opened"
	EventConnectionClosed     = "connection_closed"
	EventConnectionRejected   = "connection_rejected"
	EventStanzaRouted         = "stanza_routed"
	EventStanzaDroppedNoRoute = "stanza_dropped_no_route"
	EventStanzaRejected       = "stanza_rejected"
	EventRateLimited          = "rate_limited"
)

// Metrics is a concurrency-safe counter registry for switchboard events.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
