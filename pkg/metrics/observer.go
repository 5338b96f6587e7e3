package metrics

import "time"

// Well-known event names emitted by the streaming client.
const (
	EventConnectLatency    = "connect_latency_ms"
	EventReconnectAttempt  = "reconnect_attempt"
	EventReconnectExhaust  = "reconnect_exhausted"
	EventChunkSent         = "chunk_sent"
	EventChunkDropped      = "chunk_dropped"
	EventUtteranceDuration = "utterance_duration_ms"
	EventClipEnqueued      = "clip_enqueued"
	EventClipPlayed        = "clip_played"
	EventPlaybackFlush     = "playback_flush"
)

// Event is a single measurement with optional dimensions.
type Event struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

// Recorder receives measurement events from the client pipelines.
type Recorder interface {
	RecordEvent(ev Event)
}

// Flusher is implemented by recorders with buffered output.
type Flusher interface {
	Flush() error
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) RecordEvent(Event) {}

// Count records a counter increment on r, tolerating a nil recorder.
func Count(r Recorder, name string, tags map[string]string) {
	if r == nil {
		return
	}
	r.RecordEvent(Event{Name: name, Time: time.Now(), Value: 1, Tags: tags})
}

// Timing records a duration in milliseconds on r, tolerating a nil recorder.
func Timing(r Recorder, name string, d time.Duration, tags map[string]string) {
	if r == nil {
		return
	}
	r.RecordEvent(Event{Name: name, Time: time.Now(), Value: float64(d.Milliseconds()), Tags: tags})
}
