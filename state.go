package blario

// ConnectionState is the current state of the support-chat connection.
// Exactly one value is current at any time; read it with
// Client.ConnectionState or subscribe to EventState.
type ConnectionState int

const (
	// StateDisconnected means no connection is open and none is pending.
	// This is the initial state, and the state after a clean close or an
	// explicit Disconnect.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the first connection attempt is in flight.
	StateConnecting

	// StateConnected means the socket is open and frames flow.
	StateConnected

	// StateReconnecting means the connection dropped uncleanly and a retry
	// is scheduled or in flight.
	StateReconnecting

	// StateFailed means the reconnect attempt cap was exhausted. Terminal:
	// the caller must build a new Client to try again.
	StateFailed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
