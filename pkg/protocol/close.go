package protocol

import "github.com/gorilla/websocket"

// Terminal close codes. A socket closed with one of these must not be
// redialed: the server rejected the session itself, not the connection.
const (
	ClosePolicyViolation = websocket.ClosePolicyViolation // 1008: auth/policy
	CloseUnsupportedData = websocket.CloseUnsupportedData // 1003
)

// CloseRecoverable reports whether a close code is eligible for reconnect.
func CloseRecoverable(code int) bool {
	switch code {
	case ClosePolicyViolation, CloseUnsupportedData:
		return false
	default:
		return true
	}
}
