// Package logging provides structured logging for qcdiag.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used by the engine, the transports and the relay server.
//
// # Log Levels
//
//   - Debug: request/response hex dumps, framing details
//   - Info: relay connections and sessions, transport open/close
//   - Warn: retries, skipped NV items, aborted copies
//   - Error: failures that end a command
//
// # Silent By Default
//
// The CLI renders its own styled output, so logging is off unless a level is
// given with --log-level or QCDIAG_LOG_LEVEL:
//
//	QCDIAG_LOG_LEVEL=debug qcdiag nv read 550
//
// Logs go to stderr so they never mix with data written to stdout.
//
// # Protocol Tracing
//
// Long-lived components keep their own *zap.Logger (defaulting to GetLogger)
// and trace frames with:
//
//	logging.LogRequest(l, req)
//	logging.LogResponse(l, resp)
//
// Both are no-ops unless debug is enabled.
//
// # Relay Events
//
//	logging.LogConnection(remoteAddr, "websocket_upgraded")
//	logging.LogSession(id, "opened")
package logging
