package control

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// Channel errors.
var (
	ErrAlreadySubmitted = errors.New("request already submitted")
	ErrNilRequest       = errors.New("nil request")
)

// Sender writes one request to the active transport.
type Sender func(req *Request) error

// Channel is the queue and in-flight table of control requests.
type Channel struct {
	logger *slog.Logger

	// lastID is the last request id handed out; ids are never reused.
	lastID uint64

	// seq orders requests by submission.
	seq uint64

	queue    []*Request
	inFlight map[uint64]*Request
}

// NewChannel creates an empty channel. logger may be nil.
func NewChannel(logger *slog.Logger) *Channel {
	return &Channel{
		logger:   logger,
		inFlight: make(map[uint64]*Request),
	}
}

// Enqueue submits a request. It is sent on the next Flush.
func (c *Channel) Enqueue(req *Request) error {
	if req == nil {
		return ErrNilRequest
	}
	if req.state == StateQueued || req.state == StateInFlight {
		return ErrAlreadySubmitted
	}

	c.seq++
	req.seq = c.seq
	req.ID = 0
	req.state = StateQueued
	req.superseded = false
	req.abandoned = false
	req.cause = ""

	if req.Target != "" {
		for _, f := range c.inFlight {
			if f.Target == req.Target {
				f.superseded = true
			}
		}
		for i, q := range c.queue {
			if q.Target == req.Target {
				q.state = StateDone
				c.queue[i] = req
				c.debugLog("control request coalesced", "op", req.Op, "target", req.Target)
				return nil
			}
		}
	}

	c.queue = append(c.queue, req)
	return nil
}

// Flush sends every queued request in order. On a send error the failed
// request stays at the head of the queue and the error is returned.
func (c *Channel) Flush(send Sender) error {
	for len(c.queue) > 0 {
		req := c.queue[0]
		c.queue = c.queue[1:]

		c.lastID++
		req.ID = c.lastID
		req.state = StateInFlight
		c.inFlight[req.ID] = req

		if err := send(req); err != nil {
			delete(c.inFlight, req.ID)
			req.ID = 0
			req.state = StateQueued
			c.queue = append([]*Request{req}, c.queue...)
			return err
		}
		c.debugLog("control request sent", "reqId", req.ID, "op", req.Op, "cause", req.cause)
	}
	return nil
}

// OnReqOK routes a REQOK. It returns false for unknown ids.
func (c *Channel) OnReqOK(id uint64) bool {
	req, ok := c.finish(id)
	if !ok {
		return false
	}
	if !req.abandoned && req.Owner != nil {
		req.Owner.OnReqOK(req)
	}
	return true
}

// OnReqErr routes a REQERR. It returns false for unknown ids.
func (c *Channel) OnReqErr(id uint64, code int, message string) bool {
	req, ok := c.finish(id)
	if !ok {
		return false
	}
	c.debugLog("control request refused", "reqId", id, "op", req.Op, "code", code, "message", message)
	if !req.abandoned && req.Owner != nil {
		req.Owner.OnReqErr(req, &wire.ServerError{Code: code, Message: message})
	}
	return true
}

func (c *Channel) finish(id uint64) (*Request, bool) {
	req, ok := c.inFlight[id]
	if !ok {
		c.debugLog("ack for unknown control request", "reqId", id)
		return nil, false
	}
	delete(c.inFlight, id)
	req.state = StateDone
	return req, true
}

// Complete marks a request done without an acknowledgment, for requests
// whose effect the owner observed in the data stream (LS_ack=false adds).
func (c *Channel) Complete(req *Request) {
	c.remove(req)
}

// Abandon drops a request whose owner no longer cares about it. A queued
// request is removed; an in-flight one is never replayed and its
// acknowledgment is swallowed.
func (c *Channel) Abandon(req *Request) {
	if req == nil {
		return
	}
	req.abandoned = true
	if req.state == StateInFlight && !req.NoAck {
		return
	}
	c.remove(req)
}

func (c *Channel) remove(req *Request) {
	if req == nil {
		return
	}
	switch req.state {
	case StateQueued:
		for i, q := range c.queue {
			if q == req {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				break
			}
		}
	case StateInFlight:
		delete(c.inFlight, req.ID)
	case StateNew, StateDone:
	}
	req.state = StateDone
}

// PrepareForReplay re-queues unacknowledged requests after a recovery so
// they are sent again with fresh ids ahead of newer requests. A replayed
// request carries its ReplayCause if set, else the LS_cause it was first
// sent with, else cause.
func (c *Channel) PrepareForReplay(cause string) {
	replay := make([]*Request, 0, len(c.inFlight))
	for id, req := range c.inFlight {
		delete(c.inFlight, id)
		if req.superseded || req.abandoned {
			req.state = StateDone
			continue
		}
		replay = append(replay, req)
	}
	sort.Slice(replay, func(i, j int) bool { return replay[i].seq < replay[j].seq })

	for _, req := range replay {
		req.ID = 0
		req.state = StateQueued
		req.cause = cause
		if own, ok := req.Params.Get(wire.ParamCause); ok {
			req.cause = own
		}
		if req.ReplayCause != "" {
			req.cause = req.ReplayCause
		}
	}
	c.queue = append(replay, c.queue...)

	if len(replay) > 0 {
		c.debugLog("control requests prepared for replay", "count", len(replay), "cause", cause)
	}
}

// Reset drops every queued and in-flight request, for a new session.
func (c *Channel) Reset() {
	for _, req := range c.queue {
		req.state = StateDone
	}
	for _, req := range c.inFlight {
		req.state = StateDone
	}
	c.queue = nil
	c.inFlight = make(map[uint64]*Request)
}

// Queued returns the number of requests waiting to be sent.
func (c *Channel) Queued() int { return len(c.queue) }

// InFlight returns the number of sent, unacknowledged requests.
func (c *Channel) InFlight() int { return len(c.inFlight) }

// LastID returns the last request id handed out.
func (c *Channel) LastID() uint64 { return c.lastID }

func (c *Channel) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
