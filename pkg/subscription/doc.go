// Package subscription implements the client side of TLCP subscriptions.
//
// A Subscription is the application object: items, fields, mode and the
// requested snapshot, frequency and buffer size. It survives sessions. A
// Manager is one binding of a Subscription to a server subId; a new Manager
// with a fresh subId is created each time the Subscription is sent on a new
// session. The Registry owns every Manager and looks them up by subId.
//
// # Manager States
//
//	Inactive -> PendingAdd -> [AddAcked] -> Active -> Unsubscribing -> Inactive
//	                 \______________\___________\__________\-> Aborted
//
// Adds are sent with LS_ack=false; the subscription becomes Active on SUBOK
// or SUBCMD. A REQERR on the add fails the subscription for good. A delete
// is finished by its REQOK or REQERR, or by an UNSUB from the server, which
// may also arrive with no delete at all. When the session ends every
// Manager is aborted; active Subscriptions are sent again once the next
// session starts.
//
// # Snapshot
//
// In MERGE mode the first update of an item is its snapshot. In DISTINCT
// and COMMAND mode updates are snapshot until the item's EOS. RAW never has
// a snapshot. CS clears the values of an item.
//
// # Two-Level COMMAND
//
// A COMMAND subscription with second-level fields subscribes, for each key
// added, a MERGE subscription on the item named by the key. Second-level
// values are appended after the first-level fields in the updates of that
// key. Keys that cannot be item names raise error 14 and keep receiving
// first-level updates. DELETE, CS and UNSUB retire the second level in
// whatever order they arrive.
//
// The realized frequency of a two-level subscription is the minimum of the
// first-level CONF and the CONF of every live second level. It is reported
// only when that minimum changes.
//
// Registry.Subscribe, Registry.Unsubscribe and the Subscription setters are
// safe for concurrent use; everything else runs on the client event loop.
package subscription
