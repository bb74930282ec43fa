// Package protocol implements the Qualcomm diag wire format.
//
// This package builds request buffers and decodes response buffers for the
// diag command families used by qcdiag: flat NV items, subsystem NV items,
// the EFS2 file system bridge and the factory image stream. It also owns the
// three status code tables (generic diag status, NV status, EFS2 errno) and
// the HDLC-style link framing used on serial and USB diag ports.
//
// The package is pure: nothing in here talks to a device. The engine in
// internal/diag sends the buffers built here over a transport.Channel and
// hands the replies back to the decoders.
//
// # Request Layout
//
// Every request starts with an opcode byte. Subsystem requests use a four
// byte header:
//
//	[0]     0x4B           DIAG_SUBSYS_CMD_F
//	[1]     subsystem      0x30 for NV, 0x3E or 0x13 for EFS2 (the EFS method)
//	[2]     command        subsystem command (see EfsCommand)
//	[3]     0x00
//
// All numeric fields are little-endian. Paths are NUL-terminated. NV payloads
// are a fixed 128-byte field, zero padded on encode.
//
// # Response Validation
//
// A response whose first byte does not echo the request opcode is an error
// frame (0x13 bad command, 0x14 bad parameter, 0x15 bad length, 0x47 security
// required, ...) or an unsupported command. Callers check this with
// CheckEcho before decoding the rest of the buffer.
//
// # Padding
//
// NV payloads come back as 128 bytes. TrimPadding strips the trailing run of
// zero bytes. A payload that really ends in zero bytes decodes the same as a
// shorter one; this is accepted.
//
// # Framing
//
// EncodeHDLC and DecodeHDLC implement the async HDLC variant used by diag:
//
//	payload | crc16 (X.25, little-endian) | escaped with 0x7D | 0x7E
//
// The USB and serial transports frame every request with it; the websocket
// relay carries unframed payloads.
//
// # Usage Example
//
//	req := protocol.BuildNVRead(550)
//	resp := send(req)
//	if err := protocol.CheckEcho(resp, byte(protocol.CmdNVRead)); err != nil {
//	    return err
//	}
//	rec, err := protocol.ParseNVItem(resp)
package protocol
