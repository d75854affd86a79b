// Package control sequences the control requests of a TLCP session.
//
// Every request issued by the subscription and MPN managers goes through a
// Channel. The channel assigns request ids when requests are written to a
// transport, keeps the in-flight table used to route REQOK and REQERR
// back to the issuing owner, and decides what is sent again after a
// session recovery.
//
// # Request Lifecycle
//
//	queued -> in flight -> done
//	   |          |
//	   |          +-> superseded (a newer request for the same target)
//	   +-> replaced / abandoned
//
// Ids are strictly increasing and never reused, even across replays: a
// replayed request is sent with a fresh id.
//
// # Coalescing
//
// Requests carrying the same non-empty Target mutate the same logical
// entity. A queued request is replaced in place by a newer one. An
// in-flight request is marked superseded: its acknowledgment is still
// routed to its owner, which decides whether it is stale, but it is never
// replayed.
//
// # Replay
//
// PrepareForReplay re-queues every in-flight request that has been neither
// superseded nor abandoned, in original submission order and ahead of any
// request queued later. Each replayed request carries LS_cause: its own
// ReplayCause if set, otherwise the cause passed by the session.
//
// The channel is not safe for concurrent use; it is owned by the client's
// event loop.
package control
