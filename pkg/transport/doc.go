// Package transport opens the physical connections that carry a TLCP
// session.
//
// A Dialer implements session.Dialer for three kinds of connection:
//
//   - WebSocket: one socket at <server>/lightstreamer negotiating the
//     TLCP-2.5.0.lightstreamer.com subprotocol. Every request is one text
//     message; every message from the server may carry several CRLF
//     terminated lines.
//   - HTTP streaming: create_session and bind_session are POSTed to
//     <server>/lightstreamer/<name>.txt?LS_protocol=TLCP-2.5.0 and the
//     response body is read line by line for the life of the connection.
//   - HTTP polling: same as streaming, but the server closes each response
//     after one poll cycle.
//
// Over HTTP, control and heartbeat requests are separate POSTs sent one
// at a time in order; their response lines are delivered to the same
// handler as the stream.
//
// # Events
//
// Handler events are delivered from connection goroutines. OnOpen is never
// called before Dial returns. After OnError, OnClose or Close no further
// events are delivered.
package transport
