// Package log provides protocol capture for the TLCP client.
//
// It is separate from operational logging (slog): where slog reports what
// the client decided, protocol capture keeps a machine-readable trace of
// everything that crossed the wire and every state transition, for
// debugging sessions after the fact.
//
// # Basic Usage
//
//	// Console during development
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/tlcp/client.tlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - FrameEvent: one protocol line in or out (transport layer)
//   - RequestEvent: control request sent, acknowledged, refused or replayed
//   - StateChangeEvent: session, subscription and MPN state transitions
//   - ErrorEventData: malformed frames, transport and server errors
//
// # File Format
//
// Capture files are a sequence of CBOR-encoded events with integer keys
// (.tlog). The tlcp-log tool views and summarizes them.
package log
