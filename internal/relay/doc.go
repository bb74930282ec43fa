// Package relay serves a locally attached diag port over a websocket.
//
// qcdiag-relay opens the port with the usual transport options and wraps
// it in a Server. A client (qcdiag --relay ws://host:8765/diag) sends each
// diag request as one binary message and receives the unframed reply as
// one binary message, empty when the device did not answer in time. The
// relay handles HDLC framing and response timeouts on its side.
//
// Only one client is served at a time; a second connection gets HTTP 409.
//
// # Endpoints
//
//   - GET /diag: websocket upgrade, one session
//   - GET /metrics: Prometheus metrics (qcdiag_relay_*)
//   - GET /healthz: "idle" or "busy <session id>"
//
// # Capture
//
// With a capture directory set, every request/response pair is appended
// to capture-<timestamp>.jsonl:
//
//	{"timestamp":"...","session":"3f2c...","seq":1,"opcode":"NV_READ",
//	 "request_hex":"2626...","response_hex":"2626...","latency_ms":4.2}
//
// tools/analyze-capture.go and tools/validate-capture.go read these files.
package relay
