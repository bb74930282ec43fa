package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sigurn/crc16"
)

// HDLC framing constants used on diag serial and USB ports.
const (
	HDLCFlag   = 0x7E
	HDLCEscape = 0x7D
	HDLCXor    = 0x20
)

var (
	// ErrFrameTooShort means the unescaped frame cannot hold a CRC.
	ErrFrameTooShort = errors.New("hdlc frame too short")

	// ErrBadCRC means the frame checksum does not match its payload.
	ErrBadCRC = errors.New("hdlc crc mismatch")
)

var x25 = crc16.MakeTable(crc16.CRC16_X_25)

// CRC16 computes the CRC-16/X.25 frame check sequence over data.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, x25)
}

// EncodeHDLC appends the little-endian CRC to payload, escapes flag and
// escape bytes, and terminates the frame with 0x7E.
func EncodeHDLC(payload []byte) []byte {
	raw := binary.LittleEndian.AppendUint16(append([]byte(nil), payload...), CRC16(payload))

	out := make([]byte, 0, len(raw)+len(raw)/8+1)
	for _, b := range raw {
		if b == HDLCFlag || b == HDLCEscape {
			out = append(out, HDLCEscape, b^HDLCXor)
			continue
		}
		out = append(out, b)
	}
	return append(out, HDLCFlag)
}

// DecodeHDLC unescapes one frame (with or without its trailing 0x7E),
// verifies the CRC and returns the payload.
func DecodeHDLC(frame []byte) ([]byte, error) {
	if n := len(frame); n > 0 && frame[n-1] == HDLCFlag {
		frame = frame[:n-1]
	}
	// Some devices also lead with a flag byte.
	if len(frame) > 0 && frame[0] == HDLCFlag {
		frame = frame[1:]
	}

	raw := make([]byte, 0, len(frame))
	for i := 0; i < len(frame); i++ {
		b := frame[i]
		if b == HDLCEscape {
			i++
			if i >= len(frame) {
				return nil, fmt.Errorf("hdlc: dangling escape at end of frame")
			}
			b = frame[i] ^ HDLCXor
		}
		raw = append(raw, b)
	}

	if len(raw) < 2 {
		return nil, ErrFrameTooShort
	}
	payload := raw[:len(raw)-2]
	got := binary.LittleEndian.Uint16(raw[len(raw)-2:])
	if want := CRC16(payload); got != want {
		return nil, fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrBadCRC, got, want)
	}
	return payload, nil
}
