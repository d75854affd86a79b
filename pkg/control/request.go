package control

import (
	"strconv"

	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// Handler receives the outcome of the requests it owns.
type Handler interface {
	OnReqOK(req *Request)
	OnReqErr(req *Request, err *wire.ServerError)
}

// State is the position of a request in the channel.
type State uint8

const (
	StateNew State = iota
	StateQueued
	StateInFlight
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateQueued:
		return "QUEUED"
	case StateInFlight:
		return "IN_FLIGHT"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Request is one control request.
type Request struct {
	// ID is assigned when the request is written to a transport. Zero
	// until then.
	ID uint64

	// Op is the LS_op value.
	Op string

	// Params are the operation-specific parameters, in wire order.
	Params wire.Params

	// Target identifies the entity the request mutates. Requests with the
	// same non-empty target coalesce.
	Target string

	// NoAck sends the request with LS_ack=false. The server does not
	// answer it; the owner calls Channel.Complete once the effect is
	// observed in the data stream.
	NoAck bool

	// ReplayCause is the LS_cause sent when the request is replayed. It
	// takes precedence over both the cause in Params and the channel cause.
	ReplayCause string

	// Owner receives REQOK/REQERR. May be nil.
	Owner Handler

	seq        uint64
	state      State
	superseded bool
	abandoned  bool
	cause      string
}

// State returns the request state.
func (r *Request) State() State { return r.state }

// Superseded reports whether a newer request for the same target was
// issued while this one was in flight.
func (r *Request) Superseded() bool { return r.superseded }

// Abandoned reports whether the owner gave the request up.
func (r *Request) Abandoned() bool { return r.abandoned }

// Cause returns the LS_cause the request carries on its current send, if
// it is a replay.
func (r *Request) Cause() string { return r.cause }

// WireParams returns the full parameter list sent for the request.
func (r *Request) WireParams() wire.Params {
	p := make(wire.Params, 0, len(r.Params)+4)
	p.Add(wire.ParamReqID, strconv.FormatUint(r.ID, 10))
	p.Add(wire.ParamOp, r.Op)
	p = append(p, r.Params...)
	if r.cause != "" {
		p.Set(wire.ParamCause, r.cause)
	}
	if r.NoAck {
		p.Add(wire.ParamAck, "false")
	}
	return p
}

// Encode renders the request for a stream transport.
func (r *Request) Encode() string {
	return wire.EncodeRequest(wire.RequestControl, r.WireParams())
}
