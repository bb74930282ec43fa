package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Response decoders for the diag command families.

var (
	// ErrEmptyResponse means the device did not answer.
	ErrEmptyResponse = errors.New("empty response")

	// ErrShortResponse means the response is shorter than its layout.
	ErrShortResponse = errors.New("response too short")
)

// MismatchError is returned when a response's leading byte does not echo
// the request opcode.
type MismatchError struct {
	Want byte
	Got  byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("response opcode 0x%02X does not echo request 0x%02X (%s)",
		e.Got, e.Want, DescribeDiagStatus([]byte{e.Got}))
}

// Status returns the category of the unexpected leading byte.
func (e *MismatchError) Status() DiagStatus {
	return ClassifyDiagStatus(e.Got)
}

// RejectedError is returned for EFS2 responses the device refused outright
// (security mode required or bad length) before any EFS errno is present.
type RejectedError struct {
	Opcode DiagCommand
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("command rejected: %s", DescribeDiagStatus([]byte{byte(e.Opcode)}))
}

// CheckEcho verifies resp is non-empty and starts with opcode.
func CheckEcho(resp []byte, opcode byte) error {
	if len(resp) == 0 {
		return ErrEmptyResponse
	}
	if resp[0] != opcode {
		return &MismatchError{Want: opcode, Got: resp[0]}
	}
	return nil
}

// CheckEfsResponse is the shared EFS2 pre-decode check: security-mode and
// bad-length replies fail immediately, anything else must echo 0x4B.
func CheckEfsResponse(resp []byte) error {
	if len(resp) == 0 {
		return ErrEmptyResponse
	}
	switch DiagCommand(resp[0]) {
	case CmdBadSecMode, CmdBadLength:
		return &RejectedError{Opcode: DiagCommand(resp[0])}
	}
	return CheckEcho(resp, byte(CmdSubsystem))
}

func need(resp []byte, n int) error {
	if len(resp) < n {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrShortResponse, n, len(resp))
	}
	return nil
}

func u16(b []byte, off int) uint16 { return binary.LittleEndian.Uint16(b[off:]) }
func u32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
func i32(b []byte, off int) int32  { return int32(binary.LittleEndian.Uint32(b[off:])) }

// TrimPadding strips the trailing run of zero bytes. An all-zero input
// yields an empty, non-nil slice. The result does not alias b.
func TrimPadding(b []byte) []byte {
	trimmed := bytes.TrimRight(b, "\x00")
	out := make([]byte, len(trimmed))
	copy(out, trimmed)
	return out
}

// NVRecord is a decoded NV read/write response.
type NVRecord struct {
	Item   uint16
	Index  uint16
	Data   []byte // trailing zero padding removed
	Status NvStatus
}

// ParseNVItem decodes a flat NV response. The record starts at offset 1.
func ParseNVItem(resp []byte) (*NVRecord, error) {
	const size = 1 + 2 + NVPayloadSize + 2
	if err := need(resp, size); err != nil {
		return nil, err
	}
	body := resp[1:]
	return &NVRecord{
		Item:   u16(body, 0),
		Data:   TrimPadding(body[2 : 2+NVPayloadSize]),
		Status: NvStatus(u16(body, 2+NVPayloadSize)),
	}, nil
}

// ParseNVSubItem decodes a subsystem NV response. The record starts after
// the four byte subsystem header.
func ParseNVSubItem(resp []byte) (*NVRecord, error) {
	const size = 4 + 4 + NVPayloadSize + 2
	if err := need(resp, size); err != nil {
		return nil, err
	}
	body := resp[4:]
	return &NVRecord{
		Item:   u16(body, 0),
		Index:  u16(body, 2),
		Data:   TrimPadding(body[4 : 4+NVPayloadSize]),
		Status: NvStatus(u16(body, 4+NVPayloadSize)),
	}, nil
}

// ParseEfsErrno decodes the errno word at off.
func ParseEfsErrno(resp []byte, off int) (EfsErrno, error) {
	if err := need(resp, off+4); err != nil {
		return 0, err
	}
	return EfsErrno(u32(resp, off)), nil
}

// EfsOpenReply is the decoded OPEN response.
type EfsOpenReply struct {
	Fd    int32
	Errno EfsErrno
}

// ParseEfsOpen decodes fd @4, errno @8.
func ParseEfsOpen(resp []byte) (*EfsOpenReply, error) {
	if err := need(resp, 12); err != nil {
		return nil, err
	}
	return &EfsOpenReply{Fd: i32(resp, 4), Errno: EfsErrno(u32(resp, 8))}, nil
}

// EfsStatReply is the decoded STAT/FSTAT/LSTAT response. LSTAT leaves Size
// and Nlink at zero.
type EfsStatReply struct {
	Errno EfsErrno
	Mode  uint32
	Size  uint32
	Nlink uint32
	Atime uint32
	Mtime uint32
	Ctime uint32
}

// ParseEfsStat decodes a STAT or FSTAT response.
//
//	[4] errno [8] mode [0xC] size [0x10] nlink [0x14] atime [0x18] mtime [0x1C] ctime
func ParseEfsStat(resp []byte) (*EfsStatReply, error) {
	if err := need(resp, 0x20); err != nil {
		return nil, err
	}
	return &EfsStatReply{
		Errno: EfsErrno(u32(resp, 0x4)),
		Mode:  u32(resp, 0x8),
		Size:  u32(resp, 0xC),
		Nlink: u32(resp, 0x10),
		Atime: u32(resp, 0x14),
		Mtime: u32(resp, 0x18),
		Ctime: u32(resp, 0x1C),
	}, nil
}

// ParseEfsLstat decodes an LSTAT response, which carries no size or nlink.
//
//	[4] errno [8] mode [0xC] atime [0x10] mtime [0x14] ctime
func ParseEfsLstat(resp []byte) (*EfsStatReply, error) {
	if err := need(resp, 0x18); err != nil {
		return nil, err
	}
	return &EfsStatReply{
		Errno: EfsErrno(u32(resp, 0x4)),
		Mode:  u32(resp, 0x8),
		Atime: u32(resp, 0xC),
		Mtime: u32(resp, 0x10),
		Ctime: u32(resp, 0x14),
	}, nil
}

// EfsReadReply is the decoded READ response.
type EfsReadReply struct {
	Fd        int32
	Offset    uint32
	BytesRead uint32
	Errno     EfsErrno
	Data      []byte
}

// ParseEfsRead decodes fd @4, offset @8, bytes_read @0xC, errno @0x10,
// data @0x14. Data is cut to bytes_read when the device sends trailing bytes.
func ParseEfsRead(resp []byte) (*EfsReadReply, error) {
	if err := need(resp, 0x14); err != nil {
		return nil, err
	}
	r := &EfsReadReply{
		Fd:        i32(resp, 0x4),
		Offset:    u32(resp, 0x8),
		BytesRead: u32(resp, 0xC),
		Errno:     EfsErrno(u32(resp, 0x10)),
		Data:      resp[0x14:],
	}
	if uint32(len(r.Data)) > r.BytesRead {
		r.Data = r.Data[:r.BytesRead]
	}
	return r, nil
}

// EfsWriteReply is the decoded WRITE response.
type EfsWriteReply struct {
	Fd           int32
	Offset       uint32
	BytesWritten uint32
	Errno        EfsErrno
}

// ParseEfsWrite decodes fd @4, offset @8, bytes_written @0xC, errno @0x10.
func ParseEfsWrite(resp []byte) (*EfsWriteReply, error) {
	if err := need(resp, 0x14); err != nil {
		return nil, err
	}
	return &EfsWriteReply{
		Fd:           i32(resp, 0x4),
		Offset:       u32(resp, 0x8),
		BytesWritten: u32(resp, 0xC),
		Errno:        EfsErrno(u32(resp, 0x10)),
	}, nil
}

// EfsOpendirReply is the decoded OPENDIR response.
type EfsOpendirReply struct {
	Dirp  uint32
	Errno EfsErrno
}

// ParseEfsOpendir decodes dirp @4, errno @8.
func ParseEfsOpendir(resp []byte) (*EfsOpendirReply, error) {
	if err := need(resp, 12); err != nil {
		return nil, err
	}
	return &EfsOpendirReply{Dirp: u32(resp, 4), Errno: EfsErrno(u32(resp, 8))}, nil
}

// Directory entry types reported by READDIR.
const (
	EntryEnd  int32 = 0
	EntryFile int32 = 1
)

// readdirHeaderEnd is where the entry name starts: 4 byte subsystem header
// plus nine 32-bit fields.
const readdirHeaderEnd = 4 + 9*4

// EfsReaddirReply is the decoded READDIR response.
type EfsReaddirReply struct {
	Dirp      uint32
	Seqno     int32
	Errno     EfsErrno
	EntryType int32
	Mode      uint32
	Size      uint32
	Atime     uint32
	Mtime     uint32
	Ctime     uint32
	Name      string
}

// End reports whether the reply is the end-of-directory sentinel.
func (r *EfsReaddirReply) End() bool { return r.EntryType == EntryEnd }

// ParseEfsReaddir decodes the nine field header at [4:40] followed by the
// entry name at [40:len-1]. The name field is space padded on the wire.
func ParseEfsReaddir(resp []byte) (*EfsReaddirReply, error) {
	if err := need(resp, readdirHeaderEnd); err != nil {
		return nil, err
	}
	r := &EfsReaddirReply{
		Dirp:      u32(resp, 4),
		Seqno:     i32(resp, 8),
		Errno:     EfsErrno(u32(resp, 12)),
		EntryType: i32(resp, 16),
		Mode:      u32(resp, 20),
		Size:      u32(resp, 24),
		Atime:     u32(resp, 28),
		Mtime:     u32(resp, 32),
		Ctime:     u32(resp, 36),
	}
	if r.EntryType != EntryEnd && len(resp) > readdirHeaderEnd {
		name := resp[readdirHeaderEnd : len(resp)-1]
		r.Name = string(bytes.TrimRight(name, " \x00"))
	}
	return r, nil
}

// EfsGetReply is the decoded GET response.
type EfsGetReply struct {
	NumBytes uint32
	Errno    EfsErrno
	Seq      uint16
	Data     []byte
}

// ParseEfsGet decodes num_bytes @4, errno @8, seq @0xC, data @0xE.
func ParseEfsGet(resp []byte) (*EfsGetReply, error) {
	if err := need(resp, 0xE); err != nil {
		return nil, err
	}
	return &EfsGetReply{
		NumBytes: u32(resp, 0x4),
		Errno:    EfsErrno(u32(resp, 0x8)),
		Seq:      u16(resp, 0xC),
		Data:     resp[0xE:],
	}, nil
}

// StreamCursorSize is the encoded size of a StreamCursor.
const StreamCursorSize = 8

// StreamCursor is the resumable position threaded through a factory image
// export. The zero value starts an export.
type StreamCursor struct {
	StreamState      uint8 // 0 once the device has nothing more to send
	InfoClusterSent  uint8
	ClusterMapSeqno  uint16
	ClusterDataSeqno uint32
}

// Bytes encodes the cursor as it appears in FACT_IMAGE_READ requests.
func (c StreamCursor) Bytes() []byte {
	b := make([]byte, StreamCursorSize)
	b[0] = c.StreamState
	b[1] = c.InfoClusterSent
	binary.LittleEndian.PutUint16(b[2:], c.ClusterMapSeqno)
	binary.LittleEndian.PutUint32(b[4:], c.ClusterDataSeqno)
	return b
}

// ParseStreamCursor decodes an eight byte cursor.
func ParseStreamCursor(b []byte) (StreamCursor, error) {
	if err := need(b, StreamCursorSize); err != nil {
		return StreamCursor{}, err
	}
	return StreamCursor{
		StreamState:      b[0],
		InfoClusterSent:  b[1],
		ClusterMapSeqno:  u16(b, 2),
		ClusterDataSeqno: u32(b, 4),
	}, nil
}

// FactoryHeaderSize is the encoded size of a FactoryHeader (39 words).
const FactoryHeaderSize = 156

// FactoryHeader describes the device storage geometry of a factory image.
type FactoryHeader struct {
	Magic1      uint32
	Magic2      uint32
	FactVersion uint16
	Version     uint16
	BlockSize   uint32 // pages per block
	PageSize    uint32 // bytes per page
	BlockCount  uint32
	SpaceLimit  uint32
	UpperData   [32]uint32
}

// ParseFactoryHeader decodes the header at the start of b.
func ParseFactoryHeader(b []byte) (*FactoryHeader, error) {
	if err := need(b, FactoryHeaderSize); err != nil {
		return nil, err
	}
	h := &FactoryHeader{
		Magic1:      u32(b, 0),
		Magic2:      u32(b, 4),
		FactVersion: u16(b, 8),
		Version:     u16(b, 10),
		BlockSize:   u32(b, 12),
		PageSize:    u32(b, 16),
		BlockCount:  u32(b, 20),
		SpaceLimit:  u32(b, 24),
	}
	for i := range h.UpperData {
		h.UpperData[i] = u32(b, 28+4*i)
	}
	return h, nil
}

// TotalPages is the number of 512-byte page reads the export performs.
func (h *FactoryHeader) TotalPages() int {
	return int(h.BlockSize) * int(h.BlockCount) * int(h.PageSize/0x200)
}

func (h *FactoryHeader) String() string {
	return fmt.Sprintf("FactoryHeader{magic=0x%08X/0x%08X, fact_version=%d, version=%d, block_size=%d, page_size=0x%X, block_count=%d, space_limit=%d}",
		h.Magic1, h.Magic2, h.FactVersion, h.Version, h.BlockSize, h.PageSize, h.BlockCount, h.SpaceLimit)
}
