package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mindgraph/voicestream/pkg/errorsx"
	"github.com/mindgraph/voicestream/pkg/logging"
	"github.com/mindgraph/voicestream/pkg/metrics"
	"github.com/mindgraph/voicestream/pkg/protocol"
)

// Sender is the outbound half of the socket as seen by the capture engine.
type Sender interface {
	Connected() bool
	SendAudio(chunk []byte) error
	SendControl(frame any) error
}

// Engine drives a Source while a session is live. It forwards chunks to the
// socket and drops them when the socket is not open; stale audio is never
// queued across a reconnect.
type Engine struct {
	source   Source
	sender   Sender
	logger   *slog.Logger
	recorder metrics.Recorder

	mu        sync.Mutex
	recording bool
	startMS   int64
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewEngine wires a source to a sender.
func NewEngine(source Source, sender Sender, logger *slog.Logger, recorder metrics.Recorder) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		source:   source,
		sender:   sender,
		logger:   logging.NewComponentLogger(logger, "capture"),
		recorder: recorder,
	}
}

// Recording reports whether a capture session is active.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording
}

// Start begins a capture session. It is a no-op when already recording and
// an error when the connection is not up.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.recording {
		e.mu.Unlock()
		return nil
	}
	if !e.sender.Connected() {
		e.mu.Unlock()
		return errorsx.New(errorsx.ReasonNotConnected, "cannot start recording: not connected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	chunks, err := e.source.Start(ctx)
	if err != nil {
		cancel()
		e.mu.Unlock()
		return errorsx.Wrap(err, errorsx.ReasonCaptureSource)
	}
	done := make(chan struct{})
	e.recording = true
	e.startMS = time.Now().UnixMilli()
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	e.logger.Info("recording_started")
	go e.pump(chunks, done)
	return nil
}

func (e *Engine) pump(chunks <-chan []byte, done chan struct{}) {
	defer close(done)
	for chunk := range chunks {
		if !e.sender.Connected() {
			// Mid-reconnect audio is dropped, not buffered; a sliver of
			// the utterance can be lost here.
			metrics.Count(e.recorder, metrics.EventChunkDropped, nil)
			continue
		}
		if err := e.sender.SendAudio(chunk); err != nil {
			metrics.Count(e.recorder, metrics.EventChunkDropped, nil)
			e.logger.Debug("chunk_send_failed", slog.String("error", err.Error()))
			continue
		}
		metrics.Count(e.recorder, metrics.EventChunkSent, nil)
	}
}

// Stop finalizes the capture session and sends end_utterance with the
// client-side timestamps. The source device stays open for the next Start.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.recording {
		e.mu.Unlock()
		return nil
	}
	e.recording = false
	startMS := e.startMS
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	_ = e.source.Stop()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	endMS := time.Now().UnixMilli()
	metrics.Timing(e.recorder, metrics.EventUtteranceDuration, time.Duration(endMS-startMS)*time.Millisecond, nil)
	e.logger.Info("recording_stopped", slog.Int64("duration_ms", endMS-startMS))

	if e.sender.Connected() {
		if err := e.sender.SendControl(protocol.NewEndUtteranceFrame(startMS, endMS)); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonCaptureSend)
		}
	}
	return nil
}

// Release stops any active session and closes the source device. Only the
// disconnect path calls this; Stop alone keeps the device warm.
func (e *Engine) Release() error {
	_ = e.Stop()
	return e.source.Close()
}
