// Package client is the entry point of the TLCP client engine.
//
// A Client owns one session, the subscriptions made through it and an
// optional push notification device. Every public method is safe for
// concurrent use: calls are turned into closures and run in order on a
// single engine goroutine, together with transport events and timer
// firings. Engine state is never touched from any other goroutine, so the
// packages below (session, control, subscription, mpn) need no locks.
//
// Listener callbacks are prepared on the engine goroutine and handed to
// an Executor:
//
//   - SerialExecutor runs them one at a time, in order. This is the
//     default.
//   - PoolExecutor runs them on an ants goroutine pool; callbacks may be
//     reordered.
//   - InlineExecutor runs them on the engine goroutine. Listeners must then
//     return quickly and must not call Subscriptions or MPNSubscriptions.
//
// # Session start
//
// When a session starts the device registration is queued first, then the
// subscriptions, then the pending push notification operations, so the
// server learns the device before anything that refers to it.
//
// # Protocol errors
//
// A notification that the subscription state cannot accept (an item out of
// range, a malformed update) means the local state can no longer be
// trusted: the session is abandoned and a new one created. A panic on the
// engine goroutine is logged and raised again; this includes listener
// panics under an InlineExecutor.
package client
