package client

import (
	"sync"

	"github.com/mindgraph/voicestream/pkg/protocol"
)

// Handlers is the mutable callback table for server events. Callbacks can be
// swapped while the socket is open without rebuilding the connection; the
// dispatcher always reads the latest value.
type Handlers struct {
	mu sync.RWMutex

	stateChange     StateListener
	transcript      func(protocol.TranscriptEvent)
	agentReply      func(protocol.AgentReplyEvent)
	speechStart     func(protocol.SpeechStartEvent)
	utteranceEnd    func(protocol.UtteranceEndEvent)
	processingStart func()
	ttsStart        func(protocol.TTSMeta)
	ttsDone         func()
	interrupted     func()
	err             func(error)
}

func (h *Handlers) OnStateChange(fn StateListener) {
	h.mu.Lock()
	h.stateChange = fn
	h.mu.Unlock()
}

func (h *Handlers) OnTranscript(fn func(protocol.TranscriptEvent)) {
	h.mu.Lock()
	h.transcript = fn
	h.mu.Unlock()
}

func (h *Handlers) OnAgentReply(fn func(protocol.AgentReplyEvent)) {
	h.mu.Lock()
	h.agentReply = fn
	h.mu.Unlock()
}

func (h *Handlers) OnSpeechStart(fn func(protocol.SpeechStartEvent)) {
	h.mu.Lock()
	h.speechStart = fn
	h.mu.Unlock()
}

func (h *Handlers) OnUtteranceEnd(fn func(protocol.UtteranceEndEvent)) {
	h.mu.Lock()
	h.utteranceEnd = fn
	h.mu.Unlock()
}

func (h *Handlers) OnProcessingStart(fn func()) {
	h.mu.Lock()
	h.processingStart = fn
	h.mu.Unlock()
}

func (h *Handlers) OnTTSStart(fn func(protocol.TTSMeta)) {
	h.mu.Lock()
	h.ttsStart = fn
	h.mu.Unlock()
}

func (h *Handlers) OnTTSDone(fn func()) {
	h.mu.Lock()
	h.ttsDone = fn
	h.mu.Unlock()
}

func (h *Handlers) OnInterrupted(fn func()) {
	h.mu.Lock()
	h.interrupted = fn
	h.mu.Unlock()
}

func (h *Handlers) OnError(fn func(error)) {
	h.mu.Lock()
	h.err = fn
	h.mu.Unlock()
}

func (h *Handlers) emitStateChange(from, to State) {
	h.mu.RLock()
	fn := h.stateChange
	h.mu.RUnlock()
	if fn != nil {
		fn(from, to)
	}
}

func (h *Handlers) emitTranscript(ev protocol.TranscriptEvent) {
	h.mu.RLock()
	fn := h.transcript
	h.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

func (h *Handlers) emitAgentReply(ev protocol.AgentReplyEvent) {
	h.mu.RLock()
	fn := h.agentReply
	h.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

func (h *Handlers) emitSpeechStart(ev protocol.SpeechStartEvent) {
	h.mu.RLock()
	fn := h.speechStart
	h.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

func (h *Handlers) emitUtteranceEnd(ev protocol.UtteranceEndEvent) {
	h.mu.RLock()
	fn := h.utteranceEnd
	h.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

func (h *Handlers) emitProcessingStart() {
	h.mu.RLock()
	fn := h.processingStart
	h.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (h *Handlers) emitTTSStart(meta protocol.TTSMeta) {
	h.mu.RLock()
	fn := h.ttsStart
	h.mu.RUnlock()
	if fn != nil {
		fn(meta)
	}
}

func (h *Handlers) emitTTSDone() {
	h.mu.RLock()
	fn := h.ttsDone
	h.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (h *Handlers) emitInterrupted() {
	h.mu.RLock()
	fn := h.interrupted
	h.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (h *Handlers) emitError(err error) {
	h.mu.RLock()
	fn := h.err
	h.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
