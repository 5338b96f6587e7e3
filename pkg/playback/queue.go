package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mindgraph/voicestream/pkg/logging"
	"github.com/mindgraph/voicestream/pkg/metrics"
	"github.com/mindgraph/voicestream/pkg/protocol"
)

// Queue plays synthesized clips strictly serially: one active clip at a
// time, the next starting automatically when the active one finishes or
// fails. Interrupt drains everything immediately.
type Queue struct {
	player   Player
	logger   *slog.Logger
	recorder metrics.Recorder

	mu      sync.Mutex
	items   []*queuedClip
	active  *queuedClip
	playing bool

	// test hook; called once per clip when its resources are released
	onRelease func()
}

type queuedClip struct {
	data     []byte
	meta     *protocol.TTSMeta
	cancel   context.CancelFunc
	released bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithReleaseHook observes clip resource release (one call per clip).
func WithReleaseHook(fn func()) Option {
	return func(q *Queue) { q.onRelease = fn }
}

// NewQueue builds a playback queue on top of player.
func NewQueue(player Player, logger *slog.Logger, recorder metrics.Recorder, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		player:   player,
		logger:   logging.NewComponentLogger(logger, "playback"),
		recorder: recorder,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a clip and starts playback if idle. meta may be nil (binary
// frame with no preceding tts_start); playback proceeds with defaults.
func (q *Queue) Enqueue(data []byte, meta *protocol.TTSMeta) {
	buf := acquireBuf(len(data))
	copy(buf, data)
	c := &queuedClip{data: buf, meta: meta}

	q.mu.Lock()
	q.items = append(q.items, c)
	start := !q.playing
	if start {
		q.playing = true
	}
	q.mu.Unlock()

	metrics.Count(q.recorder, metrics.EventClipEnqueued, nil)
	if start {
		go q.run()
	}
}

// Len reports the number of queued (not yet active) clips.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Playing reports whether a clip is currently active.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active != nil
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.playing = false
			q.mu.Unlock()
			return
		}
		c := q.items[0]
		q.items = q.items[1:]
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		q.active = c
		q.mu.Unlock()

		err := q.player.Play(ctx, Clip{Data: c.data, Meta: c.meta})
		cancel()

		q.mu.Lock()
		if q.active == c {
			q.active = nil
		}
		q.releaseLocked(c)
		q.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			q.logger.Warn("clip_playback_failed", slog.String("error", err.Error()))
		} else if err == nil {
			metrics.Count(q.recorder, metrics.EventClipPlayed, nil)
		}
	}
}

// Interrupt implements barge-in: the active clip is cancelled and every
// queued clip is released. Racing against a clip that completes at the same
// moment must not double-release; releaseLocked is single-shot per clip.
func (q *Queue) Interrupt() {
	q.mu.Lock()
	if q.active != nil && q.active.cancel != nil {
		q.active.cancel()
	}
	for _, c := range q.items {
		q.releaseLocked(c)
	}
	q.items = nil
	q.mu.Unlock()

	metrics.Count(q.recorder, metrics.EventPlaybackFlush, nil)
}

// releaseLocked frees a clip's backing buffer exactly once. Callers hold q.mu.
func (q *Queue) releaseLocked(c *queuedClip) {
	if c.released {
		return
	}
	c.released = true
	releaseBuf(c.data)
	c.data = nil
	if q.onRelease != nil {
		q.onRelease()
	}
}

// Close interrupts playback and cleans up the player.
func (q *Queue) Close() error {
	q.Interrupt()
	return q.player.Cleanup()
}

var bufPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 8192)
	},
}

func acquireBuf(size int) []byte {
	b := bufPool.Get().([]byte)
	if cap(b) < size {
		return make([]byte, size)
	}
	return b[:size]
}

func releaseBuf(b []byte) {
	if b == nil {
		return
	}
	bufPool.Put(b[:0])
}
