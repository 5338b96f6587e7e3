package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Setup errors: surfaced immediately, never retried automatically.
	ReasonTicketFetch   ReasonCode = "ticket_fetch"
	ReasonTicketInvalid ReasonCode = "ticket_invalid"
	ReasonCaptureSource ReasonCode = "capture_source"

	// Transport errors: handled by the reconnect policy.
	ReasonDial   ReasonCode = "ws_dial"
	ReasonSend   ReasonCode = "ws_send"
	ReasonSocket ReasonCode = "ws_socket"
	ReasonDecode ReasonCode = "frame_decode"

	// Handshake and connection lifecycle.
	ReasonHandshakeTimeout   ReasonCode = "handshake_timeout"
	ReasonCloseTerminal      ReasonCode = "close_terminal"
	ReasonReconnectExhausted ReasonCode = "reconnect_exhausted"
	ReasonNotConnected       ReasonCode = "not_connected"

	// Server-reported protocol errors (error/stt_error/agent_error/tts_error).
	ReasonServerError ReasonCode = "server_error"

	// Local media pipelines.
	ReasonCaptureSend ReasonCode = "capture_send"
	ReasonPlayback    ReasonCode = "playback"
)
