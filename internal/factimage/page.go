package factimage

import (
	"encoding/binary"
	"fmt"

	"github.com/muurk/qcdiag/internal/protocol"
)

// Response layouts of FACT_IMAGE_READ.
//
// Current:
//
//	[0-3]  4B method 17 00
//	[4-7]  error
//	[8-15] cursor
//	[16-]  page data, 0x200 or 0x800 bytes, optionally one trailing byte
//
// Legacy, as sent by older firmware:
//
//	[0-1]   13 62
//	[12-19] cursor
//	[20-]   page data, last four bytes dropped
const (
	currentCursorOff = 0x08
	currentDataOff   = 0x10
	legacyCursorOff  = 0x0C
	legacyDataOff    = 0x14
	legacyTrailer    = 4
	legacyMarker     = 0x62

	smallPage = 0x200
	largePage = 0x800
)

type pageShape int

const (
	shapeInvalid pageShape = iota
	shapeCurrent
	shapeLegacy
)

func (s pageShape) String() string {
	switch s {
	case shapeCurrent:
		return "current"
	case shapeLegacy:
		return "legacy"
	}
	return "invalid"
}

// page is a decoded FACT_IMAGE_READ reply.
type page struct {
	shape  pageShape
	cursor protocol.StreamCursor
	data   []byte
}

// endOfStream reports the legacy end signal.
func (p *page) endOfStream() bool {
	return p.shape == shapeLegacy && p.cursor.StreamState == 0
}

func validPageSize(n int) bool {
	return n == smallPage || n == largePage
}

// decodePage picks the reply shape from the leading bytes and length.
func decodePage(resp []byte) (*page, error) {
	switch {
	case len(resp) == 0:
		return nil, protocol.ErrEmptyResponse

	case resp[0] == byte(protocol.CmdSubsystem):
		n := len(resp) - currentDataOff
		if !validPageSize(n) && validPageSize(n-1) {
			n--
		}
		if !validPageSize(n) {
			return nil, fmt.Errorf("unexpected page size 0x%X", len(resp)-currentDataOff)
		}
		c, err := protocol.ParseStreamCursor(resp[currentCursorOff:currentDataOff])
		if err != nil {
			return nil, err
		}
		return &page{shape: shapeCurrent, cursor: c, data: resp[currentDataOff : currentDataOff+n]}, nil

	case len(resp) > smallPage && resp[0] == byte(protocol.CmdBadCommand) && resp[1] == legacyMarker:
		c, err := protocol.ParseStreamCursor(resp[legacyCursorOff:legacyDataOff])
		if err != nil {
			return nil, err
		}
		return &page{shape: shapeLegacy, cursor: c, data: resp[legacyDataOff : len(resp)-legacyTrailer]}, nil
	}

	return nil, &protocol.MismatchError{Want: byte(protocol.CmdSubsystem), Got: resp[0]}
}

// firstReply is the decoded reply to the first FACT_IMAGE_READ.
type firstReply struct {
	header *protocol.FactoryHeader
	cursor protocol.StreamCursor
	data   []byte // header and whatever follows it, trailing byte dropped
}

const firstMinLen = currentDataOff + protocol.FactoryHeaderSize

func decodeFirst(resp []byte) (*firstReply, error) {
	if len(resp) < firstMinLen {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", protocol.ErrShortResponse, firstMinLen, len(resp))
	}
	c, err := protocol.ParseStreamCursor(resp[currentCursorOff:currentDataOff])
	if err != nil {
		return nil, err
	}
	h, err := protocol.ParseFactoryHeader(resp[currentDataOff:])
	if err != nil {
		return nil, err
	}
	return &firstReply{header: h, cursor: c, data: resp[currentDataOff : len(resp)-1]}, nil
}

// readError returns the error word of a FACT_IMAGE_READ reply.
func readError(resp []byte) uint32 {
	if len(resp) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint32(resp[4:8])
}
