package metrics

import "sync"

// MemoryRecorder accumulates events in memory. Intended for tests and for
// surfacing counters to the UI layer.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
	totals map[string]float64
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{totals: make(map[string]float64)}
}

func (m *MemoryRecorder) RecordEvent(ev Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.totals[ev.Name] += ev.Value
	m.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Total returns the summed value recorded under name.
func (m *MemoryRecorder) Total(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[name]
}
