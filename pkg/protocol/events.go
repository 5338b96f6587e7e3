package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType identifies a server->client control frame.
type EventType string

const (
	EventStarted         EventType = "started"
	EventVadSpeechStart  EventType = "vad_speech_start"
	EventProcessingStart EventType = "processing_start"
	EventVadUtteranceEnd EventType = "vad_utterance_end"
	EventTranscript      EventType = "transcript"
	EventAgentReply      EventType = "agent_reply"
	EventTTSStart        EventType = "tts_start"
	EventTTSDone         EventType = "tts_done"
	EventInterrupted     EventType = "interrupted"
	EventError           EventType = "error"
	EventSTTError        EventType = "stt_error"
	EventAgentError      EventType = "agent_error"
	EventTTSError        EventType = "tts_error"
)

// IsError reports whether the event type is one of the error variants.
func (t EventType) IsError() bool {
	return t == EventError || t == EventSTTError || t == EventAgentError || t == EventTTSError
}

// ServerEvent is a decoded server->client control frame.
type ServerEvent interface {
	Type() EventType
}

// StartedEvent acknowledges the start frame; the session is live.
type StartedEvent struct {
	SessionID string `json:"session_id,omitempty"`
}

func (StartedEvent) Type() EventType { return EventStarted }

// SpeechStartEvent signals server-side VAD detected the start of speech.
type SpeechStartEvent struct {
	OffsetMS int64 `json:"offset_ms,omitempty"`
}

func (SpeechStartEvent) Type() EventType { return EventVadSpeechStart }

// ProcessingStartEvent signals the server began processing the utterance.
type ProcessingStartEvent struct{}

func (ProcessingStartEvent) Type() EventType { return EventProcessingStart }

// UtteranceEndEvent signals server-side VAD closed the current utterance.
type UtteranceEndEvent struct {
	DurationMS int64 `json:"duration_ms,omitempty"`
}

func (UtteranceEndEvent) Type() EventType { return EventVadUtteranceEnd }

// TranscriptEvent carries recognized text for the last utterance.
type TranscriptEvent struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final,omitempty"`
}

func (TranscriptEvent) Type() EventType { return EventTranscript }

// AgentReplyEvent carries the agent's textual reply.
type AgentReplyEvent struct {
	Text     string          `json:"text,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (AgentReplyEvent) Type() EventType { return EventAgentReply }

// TTSMeta describes the synthesized clip announced by a tts_start frame.
// The next binary frame on the socket belongs to it.
type TTSMeta struct {
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Text       string `json:"text,omitempty"`
	ClipID     string `json:"clip_id,omitempty"`
}

// TTSStartEvent announces an incoming synthesized audio clip.
type TTSStartEvent struct {
	TTSMeta
}

func (TTSStartEvent) Type() EventType { return EventTTSStart }

// TTSDoneEvent signals the announced clip has been fully sent.
type TTSDoneEvent struct{}

func (TTSDoneEvent) Type() EventType { return EventTTSDone }

// InterruptedEvent confirms the server honored an interrupt.
type InterruptedEvent struct{}

func (InterruptedEvent) Type() EventType { return EventInterrupted }

// ErrorEvent covers error, stt_error, agent_error and tts_error frames.
type ErrorEvent struct {
	Kind    EventType
	Message string `json:"message"`
}

func (e ErrorEvent) Type() EventType { return e.Kind }

// UnknownEvent preserves frames with an unrecognized type so newer servers
// don't break older clients.
type UnknownEvent struct {
	Kind EventType
	Raw  json.RawMessage
}

func (e UnknownEvent) Type() EventType { return e.Kind }

// DecodeServerEvent parses a text frame into a typed event. Unrecognized
// types decode into UnknownEvent rather than failing.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	typ := EventType(strings.TrimSpace(envelope.Type))
	if typ == "" {
		return nil, fmt.Errorf("event frame missing type")
	}

	switch typ {
	case EventStarted:
		var ev StartedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode started: %w", err)
		}
		return ev, nil
	case EventVadSpeechStart:
		var ev SpeechStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode vad_speech_start: %w", err)
		}
		return ev, nil
	case EventProcessingStart:
		return ProcessingStartEvent{}, nil
	case EventVadUtteranceEnd:
		var ev UtteranceEndEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode vad_utterance_end: %w", err)
		}
		return ev, nil
	case EventTranscript:
		var ev TranscriptEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
		return ev, nil
	case EventAgentReply:
		var ev AgentReplyEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode agent_reply: %w", err)
		}
		return ev, nil
	case EventTTSStart:
		var ev TTSStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode tts_start: %w", err)
		}
		return ev, nil
	case EventTTSDone:
		return TTSDoneEvent{}, nil
	case EventInterrupted:
		return InterruptedEvent{}, nil
	case EventError, EventSTTError, EventAgentError, EventTTSError:
		var ev ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		ev.Kind = typ
		return ev, nil
	default:
		return UnknownEvent{Kind: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
