package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncRecorder decouples recording from the capture/playback hot paths.
// Events that don't fit the buffer are dropped, never blocked on.
type AsyncRecorder struct {
	inner   Recorder
	ch      chan Event
	done    chan struct{}
	dropped int64
	closed  atomic.Bool
	once    sync.Once
}

func NewAsyncRecorder(inner Recorder, buffer int) *AsyncRecorder {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncRecorder{
		inner: inner,
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncRecorder) RecordEvent(ev Event) {
	if a == nil || a.closed.Load() {
		return
	}
	select {
	case a.ch <- ev:
	default:
		atomic.AddInt64(&a.dropped, 1)
	}
}

func (a *AsyncRecorder) Dropped() int64 {
	return atomic.LoadInt64(&a.dropped)
}

// Close stops intake and waits for buffered events to reach the inner
// recorder.
func (a *AsyncRecorder) Close() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		a.closed.Store(true)
		close(a.ch)
		<-a.done
	})
}

func (a *AsyncRecorder) loop() {
	defer close(a.done)
	for ev := range a.ch {
		a.inner.RecordEvent(ev)
	}
}
