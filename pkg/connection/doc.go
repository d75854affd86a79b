// Package connection holds the connection-level policies of the TLCP
// client: the retry backoff used between session attempts and the
// client status reported to applications.
//
// # Retry Strategy
//
// When a session cannot be created or recovered, the client waits before
// the next create_session:
//
//  1. Initial delay: 4 seconds
//  2. Exponential increase: 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until a session is established
//  5. Reset on CONOK
//
// # Jitter
//
// To spread the reconnections of many clients after a server restart:
//
//	actual_delay = base_delay + random(0, base_delay * 0.1)
//
// # Status
//
// Status is the externally visible client state, rendered with the
// strings applications compare against (e.g. "CONNECTED:WS-STREAMING").
package connection
