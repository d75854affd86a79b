// Package timer provides named, cancellable one-shot timers for the
// protocol engine.
//
// The engine never blocks on a timer. A Scheduler arms a timer and later
// runs its callback through the engine's event loop. Cancelling a timer by
// id guarantees that its callback does not run afterwards, even when the
// underlying Go timer already fired and the callback is waiting in the
// event queue.
//
// # Schedulers
//
//   - Manager: real time, built on time.AfterFunc. Expired callbacks are
//     handed to a post function (normally the client's event queue).
//   - ManualScheduler: virtual time for tests. Advance fires due timers
//     synchronously in deadline order.
//
// # Named Timers
//
// Set keeps at most one timer per name (retry, stalled, reconnect,
// recovery, bind, ...). Starting a name again cancels the previous timer of
// that name.
package timer
