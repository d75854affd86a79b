package connection

// Status is the client status reported to applications.
type Status uint8

const (
	// StatusDisconnected is the state after Disconnect or a fatal error.
	StatusDisconnected Status = iota

	// StatusConnecting means a session is being created.
	StatusConnecting

	// StatusWSStreaming means a session is bound to a WebSocket.
	StatusWSStreaming

	// StatusHTTPStreaming means a session is bound to an HTTP stream.
	StatusHTTPStreaming

	// StatusHTTPPolling means a session is bound to HTTP polling requests.
	StatusHTTPPolling

	// StatusStalled means no data or keepalive arrived in time.
	StatusStalled

	// StatusWillRetry means a new session is created after a delay.
	StatusWillRetry

	// StatusTryingRecovery means the current session is being recovered.
	StatusTryingRecovery
)

// String returns the status as reported to applications.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusWSStreaming:
		return "CONNECTED:WS-STREAMING"
	case StatusHTTPStreaming:
		return "CONNECTED:HTTP-STREAMING"
	case StatusHTTPPolling:
		return "CONNECTED:HTTP-POLLING"
	case StatusStalled:
		return "STALLED"
	case StatusWillRetry:
		return "DISCONNECTED:WILL-RETRY"
	case StatusTryingRecovery:
		return "DISCONNECTED:TRYING-RECOVERY"
	default:
		return "UNKNOWN"
	}
}

// Connected reports whether a session is bound to a transport.
func (s Status) Connected() bool {
	switch s {
	case StatusWSStreaming, StatusHTTPStreaming, StatusHTTPPolling, StatusStalled:
		return true
	default:
		return false
	}
}
