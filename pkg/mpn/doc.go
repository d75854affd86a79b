// Package mpn implements mobile push notifications over TLCP: the
// registration of a Device and the activation of push Subscriptions bound
// to it.
//
// # Device
//
//	UNREGISTERED -> PENDING_REGISTER -> REGISTERED <-> SUSPENDED
//	      ^______________|___________________|____________|
//
// Register sends PN_type, PN_appId and the device token. A token stored by
// an earlier run (see Preferences) that differs from the current one is sent
// as the previous token with cause refresh.token. On every new session a
// registered device is registered again with cause restore.token. MPNREG
// confirms the device id and adapter; a later MPNREG naming another device
// or adapter fails the registration with code 62.
//
// Once registered the manager subscribes two internal feeds on the
// device's adapter: DEV-<deviceId> carries the device status and
// SUBS-<deviceId> lists the server's MPN subscriptions as a COMMAND item.
//
// # Subscriptions
//
// An activation is sent with a subId taken from the same sequence as
// ordinary subscriptions and is confirmed by MPNOK, which names the server
// subscription. With coalescing, several Subscriptions may be confirmed
// under one server id; they share a status feed and end together when the
// server subscription is deactivated or deleted.
//
// Subscriptions listed by SUBS before its end of snapshot are tentative:
// they are created once the snapshot ends and no activation is waiting for
// its MPNOK, so an id already claimed by an activation is never duplicated.
//
// Filtered deactivations are sent one at a time. Changes of the
// notification format or trigger of a subscribed Subscription are sent as
// pn_reconf, one in flight per property; a refused change is reported with
// OnModificationError and the requested value is kept.
package mpn
