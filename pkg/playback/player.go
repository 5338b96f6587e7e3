package playback

import (
	"context"

	"github.com/mindgraph/voicestream/pkg/protocol"
)

// Clip is one synthesized audio blob together with the tts_start metadata it
// was correlated with. Meta is nil when no tts_start preceded the frame.
type Clip struct {
	Data []byte
	Meta *protocol.TTSMeta
}

// Player is the audio output device. Play blocks until the clip finishes,
// fails, or ctx is cancelled (barge-in).
type Player interface {
	Play(ctx context.Context, clip Clip) error
	Cleanup() error
}
