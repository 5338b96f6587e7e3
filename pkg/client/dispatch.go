package client

import (
	"log/slog"

	"github.com/mindgraph/voicestream/pkg/errorsx"
	"github.com/mindgraph/voicestream/pkg/protocol"
	"github.com/mindgraph/voicestream/pkg/redact"
)

// dispatch routes one decoded server event. started and tts_* frames mutate
// client state; everything else is forwarded verbatim to the handler table.
func (c *Client) dispatch(gen uint64, ev protocol.ServerEvent) {
	switch ev := ev.(type) {
	case protocol.StartedEvent:
		c.onStarted(gen)
	case protocol.SpeechStartEvent:
		c.handlers.emitSpeechStart(ev)
	case protocol.ProcessingStartEvent:
		c.handlers.emitProcessingStart()
	case protocol.UtteranceEndEvent:
		c.handlers.emitUtteranceEnd(ev)
	case protocol.TranscriptEvent:
		c.logger.Debug("transcript", slog.String("text", redact.Text(ev.Text)))
		c.handlers.emitTranscript(ev)
	case protocol.AgentReplyEvent:
		c.logger.Debug("agent_reply", slog.String("text", redact.Text(ev.Text)))
		c.handlers.emitAgentReply(ev)
	case protocol.TTSStartEvent:
		c.setPendingTTS(gen, ev.TTSMeta)
		c.handlers.emitTTSStart(ev.TTSMeta)
	case protocol.TTSDoneEvent:
		c.clearPendingTTS(gen)
		c.handlers.emitTTSDone()
	case protocol.InterruptedEvent:
		c.clearPendingTTS(gen)
		c.handlers.emitInterrupted()
	case protocol.ErrorEvent:
		c.onServerError(ev)
	case protocol.UnknownEvent:
		// Newer servers may emit frame types we don't know yet.
		c.logger.Debug("unknown_event_type", slog.String("type", string(ev.Kind)))
	}
}

func (c *Client) onStarted(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	ack := c.ackCh
	c.ackCh = nil
	c.attempts = 0
	c.mu.Unlock()

	_ = c.fsm.Transition(StateConnected)
	if ack != nil {
		ack <- nil
	}
	c.logger.Info("session_started")
}

func (c *Client) onServerError(ev protocol.ErrorEvent) {
	err := errorsx.New(errorsx.ReasonServerError, string(ev.Kind)+": "+ev.Message)

	c.mu.Lock()
	ack := c.ackCh
	c.ackCh = nil
	c.mu.Unlock()

	// An error before the handshake completes rejects the pending connect.
	if ack != nil {
		ack <- err
	}
	c.handlers.emitError(err)
	c.logger.Warn("server_error",
		slog.String("kind", string(ev.Kind)),
		slog.String("message", ev.Message))
}

// setPendingTTS stores the metadata for the next binary frame. At most one
// is outstanding; a second tts_start before the binary frame replaces it.
func (c *Client) setPendingTTS(gen uint64, meta protocol.TTSMeta) {
	c.mu.Lock()
	if gen == c.gen {
		m := meta
		c.pendingTTS = &m
	}
	c.mu.Unlock()
}

func (c *Client) clearPendingTTS(gen uint64) {
	c.mu.Lock()
	if gen == c.gen {
		c.pendingTTS = nil
	}
	c.mu.Unlock()
}
