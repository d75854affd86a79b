package log

import (
	"time"

	"github.com/google/uuid"
)

// Recorder stamps capture events with the identity of one physical
// connection. A nil *Recorder, or one built on a nil Logger, drops events.
type Recorder struct {
	logger       Logger
	connectionID string
	transport    string
	sessionID    string
	now          func() time.Time
}

// NewRecorder creates a Recorder for a new connection with a fresh UUID.
func NewRecorder(logger Logger, transport string) *Recorder {
	if logger == nil {
		return nil
	}
	return &Recorder{
		logger:       logger,
		connectionID: uuid.NewString(),
		transport:    transport,
		now:          time.Now,
	}
}

// ConnectionID returns the UUID of the connection.
func (r *Recorder) ConnectionID() string {
	if r == nil {
		return ""
	}
	return r.connectionID
}

// SetSessionID attaches the TLCP session id to later events.
func (r *Recorder) SetSessionID(id string) {
	if r != nil {
		r.sessionID = id
	}
}

func (r *Recorder) emit(dir Direction, layer Layer, cat Category, fill func(*Event)) {
	if r == nil {
		return
	}
	e := Event{
		Timestamp:    r.now(),
		ConnectionID: r.connectionID,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		Transport:    r.transport,
		SessionID:    r.sessionID,
	}
	fill(&e)
	r.logger.Log(e)
}

// FrameIn records a line received from the server.
func (r *Recorder) FrameIn(name, line string) {
	r.emit(DirectionIn, LayerTransport, CategoryFrame, func(e *Event) {
		e.Frame = NewFrameEvent(name, line)
	})
}

// FrameOut records a request written to the server.
func (r *Recorder) FrameOut(name, line string) {
	r.emit(DirectionOut, LayerTransport, CategoryFrame, func(e *Event) {
		e.Frame = NewFrameEvent(name, line)
	})
}

// Request records a control request lifecycle step. code is ignored unless
// outcome is RequestRefused.
func (r *Recorder) Request(reqID uint64, op string, outcome RequestOutcome, cause string, code int, message string) {
	dir := DirectionOut
	if outcome == RequestAcked || outcome == RequestRefused {
		dir = DirectionIn
	}
	r.emit(dir, LayerControl, CategoryRequest, func(e *Event) {
		re := &RequestEvent{ReqID: reqID, Op: op, Outcome: outcome, Cause: cause}
		if outcome == RequestRefused {
			re.Code = &code
			re.Message = message
		}
		e.Request = re
	})
}

// State records a state transition.
func (r *Recorder) State(entity StateEntity, id, oldState, newState, reason string) {
	r.emit(DirectionNone, LayerEngine, CategoryState, func(e *Event) {
		e.StateChange = &StateChangeEvent{
			Entity:   entity,
			EntityID: id,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		}
	})
}

// Error records an error. code is omitted when zero.
func (r *Recorder) Error(layer Layer, message, context string, code int) {
	r.emit(DirectionNone, layer, CategoryError, func(e *Event) {
		ed := &ErrorEventData{Layer: layer, Message: message, Context: context}
		if code != 0 {
			ed.Code = &code
		}
		e.Error = ed
	})
}
