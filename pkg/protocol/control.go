package protocol

import "encoding/json"

// Pipeline selects the server-side processing chain for a session.
type Pipeline string

const (
	// PipelineAgent runs STT -> agent -> TTS.
	PipelineAgent Pipeline = "agent"
	// PipelineSTT runs recognition only.
	PipelineSTT Pipeline = "stt"
)

// Valid reports whether p is a known pipeline.
func (p Pipeline) Valid() bool {
	return p == PipelineAgent || p == PipelineSTT
}

// StartParams are the caller-supplied session parameters. They are immutable
// per connection attempt and retained so reconnects resend an equivalent
// start frame.
type StartParams struct {
	GraphID    string
	BranchID   string
	SessionID  string
	ScribeMode bool
	Metadata   map[string]string
	Pipeline   Pipeline
}

// StartFrame is the first control frame sent after the socket opens.
type StartFrame struct {
	Type         string            `json:"type"`
	GraphID      string            `json:"graph_id"`
	BranchID     string            `json:"branch_id"`
	SessionID    string            `json:"session_id,omitempty"`
	IsScribeMode bool              `json:"is_scribe_mode"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Pipeline     Pipeline          `json:"pipeline"`
	VadMode      string            `json:"vad_mode"`
	VadConfig    VadConfig         `json:"vad_config"`
}

// NewStartFrame builds the start frame for the given params, filling in the
// pipeline's default VAD configuration where vad leaves fields zero.
func NewStartFrame(params StartParams, vad VadConfig) StartFrame {
	return StartFrame{
		Type:         "start",
		GraphID:      params.GraphID,
		BranchID:     params.BranchID,
		SessionID:    params.SessionID,
		IsScribeMode: params.ScribeMode,
		Metadata:     params.Metadata,
		Pipeline:     params.Pipeline,
		VadMode:      "server",
		VadConfig:    vad.withDefaults(params.Pipeline),
	}
}

// EndUtteranceFrame closes the current utterance and reports client-side
// capture timestamps for latency accounting.
type EndUtteranceFrame struct {
	Type          string `json:"type"`
	ClientStartMS int64  `json:"client_start_ms"`
	ClientEndMS   int64  `json:"client_end_ms"`
}

// NewEndUtteranceFrame builds an end_utterance frame.
func NewEndUtteranceFrame(startMS, endMS int64) EndUtteranceFrame {
	return EndUtteranceFrame{Type: "end_utterance", ClientStartMS: startMS, ClientEndMS: endMS}
}

// InterruptFrame asks the server to abandon in-flight synthesis.
type InterruptFrame struct {
	Type string `json:"type"`
}

// NewInterruptFrame builds an interrupt frame.
func NewInterruptFrame() InterruptFrame {
	return InterruptFrame{Type: "interrupt"}
}

// Encode marshals a control frame for the wire.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}
