// Package diag is the engine core shared by the NV, EFS and factory image
// packages.
//
// A Client wraps a transport.Channel. It sends one request at a time and
// hands replies to the protocol decoders. Replies that do not echo the
// request opcode, missing replies and failing device status codes all come
// back as *Error values with one of six kinds:
//
//	KindProtocolMismatch     reply does not echo the request
//	KindSecurityGate         SP/SPC required
//	KindTransportEmpty       no reply
//	KindDomainError          NV status or EFS errno reports failure
//	KindVerificationFailure  write accepted, read-back differs
//	KindExhaustedMethod      no EFS method answered the HELLO request
//
// Use the Is* helpers, KindOf or errors.As to branch on them, and
// TroubleshootingHint / ShortMessage when rendering them.
//
// The package also carries the security and mode commands: SP, SPC,
// version info, download mode, Sahara mode, forced crash and raw requests.
package diag
