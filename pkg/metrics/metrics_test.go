package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMemoryRecorderTotals(t *testing.T) {
	m := NewMemoryRecorder()
	Count(m, EventChunkDropped, nil)
	Count(m, EventChunkDropped, nil)
	Timing(m, EventConnectLatency, 250*time.Millisecond, nil)

	if got := m.Total(EventChunkDropped); got != 2 {
		t.Fatalf("expected 2 dropped chunks, got %v", got)
	}
	if got := m.Total(EventConnectLatency); got != 250 {
		t.Fatalf("expected latency total 250, got %v", got)
	}
	if len(m.Events()) != 3 {
		t.Fatalf("expected 3 events, got %d", len(m.Events()))
	}
}

func TestCountToleratesNilRecorder(t *testing.T) {
	Count(nil, EventChunkSent, nil)
	Timing(nil, EventConnectLatency, time.Second, nil)
}

func TestAsyncRecorderForwards(t *testing.T) {
	m := NewMemoryRecorder()
	a := NewAsyncRecorder(m, 8)
	Count(a, EventClipPlayed, nil)
	a.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.Total(EventClipPlayed) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event never forwarded")
}

func TestJSONLRecorderWritesLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONLRecorder(&buf)
	Count(r, EventReconnectAttempt, map[string]string{"attempt": "1"})
	Count(r, EventReconnectAttempt, nil)
	if err := r.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], EventReconnectAttempt) {
		t.Fatalf("event name missing: %s", lines[0])
	}
}
