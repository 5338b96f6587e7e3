package capture

import (
	"context"
	"io"
	"sync"
	"time"
)

// Source abstracts a microphone-like audio device. Start begins emitting
// encoded chunks on a fixed cadence; Stop pauses emission but keeps the
// device open so the next Start is cheap; Close releases the device.
type Source interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
	Close() error
	Live() bool
}

const (
	// DefaultChunkInterval matches the recorder timeslice: one chunk per
	// ~100ms of audio.
	DefaultChunkInterval = 100 * time.Millisecond
	// DefaultChunkSize is 100ms of 16kHz mono PCM16.
	DefaultChunkSize = 3200
)

// ReaderSource paces an io.Reader into fixed-size chunks on a ticker.
// Used by tests and by the console demo to feed prerecorded audio.
type ReaderSource struct {
	r        io.Reader
	interval time.Duration
	size     int

	mu      sync.Mutex
	live    bool
	closed  bool
	stopCh  chan struct{}
	started bool
}

// NewReaderSource wraps r. Zero interval/size pick the defaults.
func NewReaderSource(r io.Reader, interval time.Duration, size int) *ReaderSource {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ReaderSource{r: r, interval: interval, size: size, live: true}
}

func (s *ReaderSource) Start(ctx context.Context) (<-chan []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, io.ErrClosedPipe
	}
	if s.started {
		s.mu.Unlock()
		return nil, io.ErrNoProgress
	}
	s.started = true
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	out := make(chan []byte, 8)
	go s.pump(ctx, out, stopCh)
	return out, nil
}

func (s *ReaderSource) pump(ctx context.Context, out chan<- []byte, stopCh <-chan struct{}) {
	defer close(out)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			buf := make([]byte, s.size)
			n, err := io.ReadFull(s.r, buf)
			if n > 0 {
				select {
				case out <- buf[:n]:
				case <-stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}
}

func (s *ReaderSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	s.started = false
	return nil
}

func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	s.started = false
	s.live = false
	s.closed = true
	return nil
}

func (s *ReaderSource) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}
