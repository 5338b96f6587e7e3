// Package runner drives a voice session binary from banner to drain:
// connect, start the microphone, block until shutdown, then disconnect
// within a bounded drain window.
package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is the coarse lifecycle of a session binary.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseStreaming
	PhaseDraining
	PhaseStopped
)

// Session is the slice of the streaming client the runner drives.
type Session interface {
	Connect(ctx context.Context) error
	StartRecording() error
	Disconnect()
}

// Runner runs exactly one session. Disconnect is bounded by the drain
// timeout so a wedged socket cannot hang process shutdown.
type Runner struct {
	session Session
	timeout time.Duration

	phase    atomic.Int32
	onceStop sync.Once
	stopErr  error

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds a runner for session. A non-positive drain timeout picks 10s.
func New(session Session, drainTimeout time.Duration) *Runner {
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	return &Runner{session: session, timeout: drainTimeout}
}

// Run connects, starts recording and blocks until ctx is cancelled or Stop
// is called, then drains. A runner runs at most once.
func (r *Runner) Run(ctx context.Context) error {
	if !r.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseConnecting)) {
		return errors.New("runner already started")
	}
	PrintBanner()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	if err := r.session.Connect(ctx); err != nil {
		r.phase.Store(int32(PhaseStopped))
		return err
	}
	if err := r.session.StartRecording(); err != nil {
		_ = r.drain()
		return err
	}
	r.phase.Store(int32(PhaseStreaming))

	<-ctx.Done()
	return r.drain()
}

// Stop cancels a blocked Run and drains the session.
func (r *Runner) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return r.drain()
}

// Phase returns the current lifecycle phase.
func (r *Runner) Phase() Phase {
	return Phase(r.phase.Load())
}

func (r *Runner) drain() error {
	r.onceStop.Do(func() {
		r.phase.Store(int32(PhaseDraining))
		done := make(chan struct{})
		go func() {
			r.session.Disconnect()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(r.timeout):
			r.stopErr = errors.New("drain timeout")
		}
		r.phase.Store(int32(PhaseStopped))
	})
	return r.stopErr
}
