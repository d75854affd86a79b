package session

import "github.com/tlcp-protocol/tlcp-go/pkg/wire"

// Kind is the kind of physical connection carrying the session.
type Kind uint8

const (
	KindWS Kind = iota
	KindHTTPStreaming
	KindHTTPPolling
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindWS:
		return "WS"
	case KindHTTPStreaming:
		return "HTTP-STREAMING"
	case KindHTTPPolling:
		return "HTTP-POLLING"
	default:
		return "UNKNOWN"
	}
}

// TransportPolicy restricts the transports a session may use.
type TransportPolicy uint8

const (
	// TransportAuto uses a WebSocket and falls back to HTTP streaming.
	TransportAuto TransportPolicy = iota
	TransportWS
	TransportHTTPStreaming
	TransportHTTPPolling
)

// String returns the policy name.
func (p TransportPolicy) String() string {
	switch p {
	case TransportAuto:
		return "AUTO"
	case TransportWS:
		return "WS"
	case TransportHTTPStreaming:
		return "HTTP-STREAMING"
	case TransportHTTPPolling:
		return "HTTP-POLLING"
	default:
		return "UNKNOWN"
	}
}

// ParseTransportPolicy parses the names returned by String
// (case-sensitive). The empty string is TransportAuto.
func ParseTransportPolicy(s string) (TransportPolicy, bool) {
	switch s {
	case "", "AUTO":
		return TransportAuto, true
	case "WS":
		return TransportWS, true
	case "HTTP-STREAMING":
		return TransportHTTPStreaming, true
	case "HTTP-POLLING":
		return TransportHTTPPolling, true
	}
	return TransportAuto, false
}

// Handler receives the events of one connection. Implementations are
// called from transport goroutines.
type Handler interface {
	// OnOpen reports that requests can be sent.
	OnOpen()

	// OnLine delivers one server line without its CRLF.
	OnLine(line string)

	// OnError reports a failure. No further events follow.
	OnError(err error)

	// OnClose reports an orderly close by the peer. No further events
	// follow.
	OnClose()
}

// Conn is one physical connection.
type Conn interface {
	// Send writes a request. For HTTP connections each request is its own
	// HTTP call whose response lines are delivered to the Handler.
	Send(name string, params wire.Params) error

	// Close releases the connection. No events are delivered afterwards.
	Close()
}

// Dialer opens connections.
type Dialer interface {
	// Dial starts opening a connection of the given kind. The handler's
	// OnOpen is called once requests can be sent, never before Dial
	// returns.
	Dial(kind Kind, h Handler) (Conn, error)
}
