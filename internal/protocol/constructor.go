package protocol

import (
	"encoding/binary"
	"fmt"
)

// Request builders for the diag command families.

const (
	// NVPayloadSize is the fixed size of the rawdata field in NV requests.
	NVPayloadSize = 128

	// efsHelloPadding is the zeroed body sent with the method HELLO.
	efsHelloPadding = 0x28
)

// builder appends little-endian fields to a request buffer.
type builder struct {
	buf []byte
}

func newBuilder(capacity int, head ...byte) *builder {
	b := &builder{buf: make([]byte, 0, capacity)}
	b.buf = append(b.buf, head...)
	return b
}

func (b *builder) u8(v uint8) *builder {
	b.buf = append(b.buf, v)
	return b
}

func (b *builder) u16(v uint16) *builder {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
	return b
}

func (b *builder) u32(v uint32) *builder {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	return b
}

func (b *builder) i32(v int32) *builder {
	return b.u32(uint32(v))
}

func (b *builder) raw(p []byte) *builder {
	b.buf = append(b.buf, p...)
	return b
}

// cstring appends path followed by a NUL terminator.
func (b *builder) cstring(s string) *builder {
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0x00)
	return b
}

func (b *builder) bytes() []byte {
	return b.buf
}

// PadNVPayload zero-pads data to the 128-byte NV rawdata field.
func PadNVPayload(data []byte) ([]byte, error) {
	if len(data) > NVPayloadSize {
		return nil, fmt.Errorf("nv payload too large: %d bytes (max %d)", len(data), NVPayloadSize)
	}
	out := make([]byte, NVPayloadSize)
	copy(out, data)
	return out, nil
}

// BuildNVRead builds a flat NV read request.
//
//	[0]       0x26       DIAG_NV_READ_F
//	[1-2]     item       uint16
//	[3-130]   rawdata    128 zero bytes
//	[131-132] status     uint16 (0)
func BuildNVRead(item uint16) []byte {
	return newBuilder(1+2+NVPayloadSize+2, byte(CmdNVRead)).
		u16(item).
		raw(make([]byte, NVPayloadSize)).
		u16(0).
		bytes()
}

// BuildNVWrite builds a flat NV write request. data is zero padded to 128 bytes.
func BuildNVWrite(item uint16, data []byte) ([]byte, error) {
	payload, err := PadNVPayload(data)
	if err != nil {
		return nil, err
	}
	return newBuilder(1+2+NVPayloadSize+2, byte(CmdNVWrite)).
		u16(item).
		raw(payload).
		u16(0).
		bytes(), nil
}

// BuildNVSubRead builds an indexed NV read through the NV subsystem.
//
//	[0-3]     4B 30 01 00
//	[4-5]     item       uint16
//	[6-7]     index      uint16
//	[8-135]   rawdata    128 zero bytes
//	[136-137] status     uint16 (0)
func BuildNVSubRead(item, index uint16) []byte {
	return newBuilder(4+4+NVPayloadSize+2, byte(CmdSubsystem), byte(SubsysNV), NVSubRead, 0x00).
		u16(item).
		u16(index).
		raw(make([]byte, NVPayloadSize)).
		u16(0).
		bytes()
}

// BuildNVSubWrite builds an indexed NV write through the NV subsystem.
func BuildNVSubWrite(item, index uint16, data []byte) ([]byte, error) {
	payload, err := PadNVPayload(data)
	if err != nil {
		return nil, err
	}
	return newBuilder(4+4+NVPayloadSize+2, byte(CmdSubsystem), byte(SubsysNV), NVSubWrite, 0x00).
		u16(item).
		u16(index).
		raw(payload).
		u16(0).
		bytes(), nil
}

func efsHeader(m EfsMethod, cmd EfsCommand, capacity int) *builder {
	return newBuilder(4+capacity, byte(CmdSubsystem), byte(m), byte(cmd), 0x00)
}

// BuildEfsCommand builds a bare four byte EFS2 request with no body
// (PREP_FACT_IMAGE, FACT_IMAGE_START, FACT_IMAGE_END).
func BuildEfsCommand(m EfsMethod, cmd EfsCommand) []byte {
	return efsHeader(m, cmd, 0).bytes()
}

// BuildEfsHello builds the zeroed HELLO request used to detect which EFS
// method byte the device answers on.
func BuildEfsHello(m EfsMethod) []byte {
	return efsHeader(m, EfsHello, efsHelloPadding).raw(make([]byte, efsHelloPadding)).bytes()
}

// BuildEfsOpen builds an OPEN request: oflag u32, mode u32, path.
func BuildEfsOpen(m EfsMethod, path string, oflag, mode uint32) []byte {
	return efsHeader(m, EfsOpen, 8+len(path)+1).u32(oflag).u32(mode).cstring(path).bytes()
}

// BuildEfsClose builds a CLOSE request for fd.
func BuildEfsClose(m EfsMethod, fd int32) []byte {
	return efsHeader(m, EfsClose, 4).i32(fd).bytes()
}

// BuildEfsRead builds a READ request: fd, nbytes, offset.
func BuildEfsRead(m EfsMethod, fd int32, nbytes, offset uint32) ([]byte, error) {
	if nbytes > MaxEfsTransfer {
		return nil, fmt.Errorf("efs read too large: %d bytes (max %d)", nbytes, MaxEfsTransfer)
	}
	return efsHeader(m, EfsRead, 12).i32(fd).u32(nbytes).u32(offset).bytes(), nil
}

// BuildEfsWrite builds a WRITE request: fd, offset, data.
func BuildEfsWrite(m EfsMethod, fd int32, offset uint32, data []byte) ([]byte, error) {
	if len(data) > MaxEfsTransfer {
		return nil, fmt.Errorf("efs write too large: %d bytes (max %d)", len(data), MaxEfsTransfer)
	}
	return efsHeader(m, EfsWrite, 8+len(data)).i32(fd).u32(offset).raw(data).bytes(), nil
}

// BuildEfsStat builds a STAT request for path.
func BuildEfsStat(m EfsMethod, path string) []byte {
	return efsHeader(m, EfsStat, len(path)+1).cstring(path).bytes()
}

// BuildEfsLstat builds an LSTAT request for path.
func BuildEfsLstat(m EfsMethod, path string) []byte {
	return efsHeader(m, EfsLstat, len(path)+1).cstring(path).bytes()
}

// BuildEfsFstat builds an FSTAT request for fd.
func BuildEfsFstat(m EfsMethod, fd int32) []byte {
	return efsHeader(m, EfsFstat, 4).i32(fd).bytes()
}

// BuildEfsMkdir builds a MKDIR request: mode u16, path.
func BuildEfsMkdir(m EfsMethod, path string, mode uint16) []byte {
	return efsHeader(m, EfsMkdir, 2+len(path)+1).u16(mode).cstring(path).bytes()
}

// BuildEfsChmod builds a CHMOD request: mode u16, path.
func BuildEfsChmod(m EfsMethod, path string, mode uint16) []byte {
	return efsHeader(m, EfsChmod, 2+len(path)+1).u16(mode).cstring(path).bytes()
}

// BuildEfsChown builds a CHOWN request: uid i32, gid i32, path.
func BuildEfsChown(m EfsMethod, path string, uid, gid int32) []byte {
	return efsHeader(m, EfsChown, 8+len(path)+1).i32(uid).i32(gid).cstring(path).bytes()
}

// BuildEfsRmdir builds an RMDIR request for path.
func BuildEfsRmdir(m EfsMethod, path string) []byte {
	return efsHeader(m, EfsRmdir, len(path)+1).cstring(path).bytes()
}

// BuildEfsUnlink builds an UNLINK request for path.
func BuildEfsUnlink(m EfsMethod, path string) []byte {
	return efsHeader(m, EfsUnlink, len(path)+1).cstring(path).bytes()
}

// BuildEfsOpendir builds an OPENDIR request for path.
func BuildEfsOpendir(m EfsMethod, path string) []byte {
	return efsHeader(m, EfsOpendir, len(path)+1).cstring(path).bytes()
}

// BuildEfsReaddir builds a READDIR request. seqno starts at 1.
func BuildEfsReaddir(m EfsMethod, dirp, seqno uint32) []byte {
	return efsHeader(m, EfsReaddir, 8).u32(dirp).u32(seqno).bytes()
}

// BuildEfsClosedir builds a CLOSEDIR request for dirp.
func BuildEfsClosedir(m EfsMethod, dirp uint32) []byte {
	return efsHeader(m, EfsClosedir, 4).u32(dirp).bytes()
}

// BuildEfsGet builds a GET request: data_length u32, path_length u32, seq u16, path.
func BuildEfsGet(m EfsMethod, path string, dataLength uint32, seq uint16) []byte {
	return efsHeader(m, EfsGet, 10+len(path)+1).
		u32(dataLength).
		u32(uint32(len(path) + 1)).
		u16(seq).
		cstring(path).
		bytes()
}

// BuildFactImageRead builds a FACT_IMAGE_READ request carrying the cursor.
//
//	[0-3]   4B method 17 00
//	[4]     stream_state
//	[5]     info_cluster_sent
//	[6-7]   cluster_map_seqno   uint16
//	[8-11]  cluster_data_seqno  uint32
func BuildFactImageRead(m EfsMethod, c StreamCursor) []byte {
	return efsHeader(m, EfsFactImageRead, StreamCursorSize).raw(c.Bytes()).bytes()
}

// BuildPassword builds a security password request. The 0x46 form is tried
// first; legacy selects the older 0x25 opcode.
func BuildPassword(sp []byte, legacy bool) ([]byte, error) {
	if len(sp) < 8 {
		return nil, fmt.Errorf("security password must be 8 bytes, got %d", len(sp))
	}
	op := CmdPassword
	if legacy {
		op = CmdLegacyPassword
	}
	return newBuilder(9, byte(op)).raw(sp[:8]).bytes(), nil
}

// BuildSPC builds a service programming code request.
func BuildSPC(spc []byte) ([]byte, error) {
	if len(spc) < 6 {
		return nil, fmt.Errorf("service programming code must be 6 bytes, got %d", len(spc))
	}
	return newBuilder(7, byte(CmdSPC)).raw(spc[:6]).bytes(), nil
}

// BuildSubsystem builds a four byte subsystem request without a body.
func BuildSubsystem(sub Subsystem, cmd byte) []byte {
	return []byte{byte(CmdSubsystem), byte(sub), cmd, 0x00}
}
