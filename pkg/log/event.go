package log

import "time"

// Event is one protocol capture record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the physical connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Transport is the transport kind of the connection (e.g. "WS").
	Transport string `cbor:"6,keyasint,omitempty"`

	// SessionID is the TLCP session id, once known.
	SessionID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Request     *RequestEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn is a server-to-client line.
	DirectionIn Direction = 0
	// DirectionOut is a client-to-server request.
	DirectionOut Direction = 1
	// DirectionNone is used for local events (state changes).
	DirectionNone Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the client captured the event.
type Layer uint8

const (
	// LayerTransport is the raw line layer.
	LayerTransport Layer = 0
	// LayerControl is the control request layer.
	LayerControl Layer = 1
	// LayerEngine is the session, subscription and MPN state machines.
	LayerEngine Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerControl:
		return "CONTROL"
	case LayerEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame is a protocol line.
	CategoryFrame Category = 0
	// CategoryRequest is a control request lifecycle step.
	CategoryRequest Category = 1
	// CategoryState is a state change.
	CategoryState Category = 2
	// CategoryError is an error.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryRequest:
		return "REQUEST"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxLineCapture is the number of bytes of a line kept in a FrameEvent.
const MaxLineCapture = 4096

// FrameEvent captures one protocol line.
type FrameEvent struct {
	// Name is the frame tag (e.g. "U", "SUBOK") or the request name.
	Name string `cbor:"1,keyasint"`

	// Line is the raw line, truncated to MaxLineCapture bytes.
	Line string `cbor:"2,keyasint,omitempty"`

	// Size is the length of the full line in bytes.
	Size int `cbor:"3,keyasint"`

	// Truncated indicates if Line was truncated.
	Truncated bool `cbor:"4,keyasint,omitempty"`
}

// NewFrameEvent builds a FrameEvent, truncating long lines.
func NewFrameEvent(name, line string) *FrameEvent {
	fe := &FrameEvent{Name: name, Line: line, Size: len(line)}
	if len(line) > MaxLineCapture {
		fe.Line = line[:MaxLineCapture]
		fe.Truncated = true
	}
	return fe
}

// RequestOutcome is a step in the lifecycle of a control request.
type RequestOutcome uint8

const (
	// RequestSent means the request was written to the transport.
	RequestSent RequestOutcome = 0
	// RequestAcked means REQOK was received.
	RequestAcked RequestOutcome = 1
	// RequestRefused means REQERR was received.
	RequestRefused RequestOutcome = 2
	// RequestReplayed means the request was queued again after recovery.
	RequestReplayed RequestOutcome = 3
)

// String returns the outcome name.
func (o RequestOutcome) String() string {
	switch o {
	case RequestSent:
		return "SENT"
	case RequestAcked:
		return "ACKED"
	case RequestRefused:
		return "REFUSED"
	case RequestReplayed:
		return "REPLAYED"
	default:
		return "UNKNOWN"
	}
}

// RequestEvent captures a control request step.
type RequestEvent struct {
	// ReqID is the LS_reqId of the request.
	ReqID uint64 `cbor:"1,keyasint"`

	// Op is the LS_op of the request (empty for acks of unknown ids).
	Op string `cbor:"2,keyasint,omitempty"`

	// Outcome is the lifecycle step.
	Outcome RequestOutcome `cbor:"3,keyasint"`

	// Cause is the LS_cause the request carried.
	Cause string `cbor:"4,keyasint,omitempty"`

	// Code and Message are set for REQERR.
	Code    *int   `cbor:"5,keyasint,omitempty"`
	Message string `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures a state machine transition.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// EntityID identifies the instance (subId, MPN subscription id, ...).
	EntityID string `cbor:"2,keyasint,omitempty"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"3,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"4,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"5,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntitySession is the TLCP session.
	StateEntitySession StateEntity = 0
	// StateEntitySubscription is an ordinary subscription.
	StateEntitySubscription StateEntity = 1
	// StateEntityMPNDevice is the push device registration.
	StateEntityMPNDevice StateEntity = 2
	// StateEntityMPNSubscription is a push subscription.
	StateEntityMPNSubscription StateEntity = 3
)

// String returns the entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	case StateEntityMPNDevice:
		return "MPN_DEVICE"
	case StateEntityMPNSubscription:
		return "MPN_SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the server error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what was being processed (e.g. the raw line).
	Context string `cbor:"4,keyasint,omitempty"`
}
