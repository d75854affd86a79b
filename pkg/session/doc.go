// Package session implements the TLCP transport session state machine.
//
// A Session owns the session identity, the physical connection carrying
// it, and the control channel. It creates sessions, switches transports,
// recovers from connection failures, and demultiplexes server frames:
// REQOK/REQERR go to the control channel, data notifications go to the
// Listener in arrival order, and nothing is dispatched before CONOK.
//
// # States
//
//	Disconnected -> Connecting -> Connected <-> Stalled
//	                   ^   |          |
//	                   |   v          v
//	                Retrying      Recovering -> Connecting (rebind) -> Connected
//
// # Transports
//
// The primary transport is a WebSocket. If the WebSocket fails before its
// first frame, the same request is repeated over HTTP streaming with
// LS_cause=ws.unavailable, and HTTP is used until the next Connect. A LOOP
// frame rebinds the session on a new connection of the same kind.
//
// # Recovery
//
// When a connection fails while a session is live and
// SessionRecoveryTimeout is positive, the session is recovered instead of
// recreated: a bind_session over HTTP polling carries LS_recovery_from with
// the number of data notifications received so far. The server answers
// CONOK, then PROG with its own count (notifications already seen are
// discarded), then the missed notifications, then LOOP, after which the
// primary transport is reopened with LS_cause=recovery.loop. Unacknowledged
// control requests are replayed once the primary transport is bound again.
// If recovery fails or its window elapses, a new session is created.
//
// # Timers
//
// retry, stalled, reconnect, recovery, bind and loop are named timers from
// package timer; each is cancelled as soon as it is superseded.
//
// A Session is not safe for concurrent use. All methods, and the transport
// callbacks it receives, run on the client's event loop.
package session
