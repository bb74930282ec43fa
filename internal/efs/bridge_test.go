package efs

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/muurk/qcdiag/internal/diag"
	"github.com/muurk/qcdiag/internal/diagtest"
	"github.com/muurk/qcdiag/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridge(ch *diagtest.Device) *Bridge {
	return NewBridge(diag.NewClient(ch, nil))
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestDetectMethodAlternate(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	b := newBridge(dev.Device)

	m, err := b.DetectMethod(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.EfsMethodAlternate, m)
	assert.Len(t, dev.Requests(), 1)

	_, err = b.DetectMethod(context.Background())
	require.NoError(t, err)
	assert.Len(t, dev.Requests(), 1, "method is detected once per session")
}

func TestDetectMethodStandardUsedForWholeSession(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodStandard)
	dev.PutFile("/nv/item_files/modem/mmode/lte_bandpref", []byte{0x01}, 0o100644)
	b := newBridge(dev.Device)
	ctx := context.Background()

	_, err := b.Stat(ctx, "/nv/item_files/modem/mmode/lte_bandpref")
	require.NoError(t, err)
	_, err = b.ReadDir(ctx, "/nv/item_files/modem/mmode")
	require.NoError(t, err)
	require.NoError(t, b.Mkdir(ctx, "/tmp", 0o755))

	m, ok := b.Method()
	require.True(t, ok)
	assert.Equal(t, protocol.EfsMethodStandard, m)

	reqs := dev.Requests()
	require.Greater(t, len(reqs), 2)
	assert.Equal(t, byte(protocol.EfsMethodAlternate), reqs[0][1], "alternate is tried first")
	for i, req := range reqs[1:] {
		assert.Equal(t, byte(protocol.EfsMethodStandard), req[1], "request %d", i+1)
	}
}

func TestDetectMethodExhausted(t *testing.T) {
	dev := diagtest.Scripted([]byte{0x13}, nil)
	b := newBridge(dev)

	_, err := b.Stat(context.Background(), "/")
	require.Error(t, err)
	assert.True(t, diag.IsExhaustedMethod(err))
	assert.Len(t, dev.Requests(), 2)

	err = b.Unlink(context.Background(), "/x")
	assert.True(t, diag.IsExhaustedMethod(err))
	assert.Len(t, dev.Requests(), 2, "an exhausted session sends nothing more")
}

func TestRejectedReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
		check func(error) bool
	}{
		{"security", []byte{0x47}, diag.IsSecurityGate},
		{"bad length", []byte{0x15}, diag.IsProtocolMismatch},
		{"no answer", nil, diag.IsTransportEmpty},
		{"wrong opcode", []byte{0x13, 0x4B}, diag.IsProtocolMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hello := diagtest.EfsReply(protocol.EfsMethodAlternate, protocol.EfsHello, make([]byte, 0x28))
			dev := diagtest.Scripted(hello, tt.reply)
			err := newBridge(dev).Rmdir(context.Background(), "/a")
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestOpenMissing(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	_, err := newBridge(dev.Device).Open(context.Background(), "/missing", protocol.ORdOnly, 0)
	require.Error(t, err)
	assert.True(t, diag.IsDomainError(err))
	assert.Contains(t, err.Error(), "Invalid path")
}

func TestOpenNegativeDescriptor(t *testing.T) {
	hello := diagtest.EfsReply(protocol.EfsMethodAlternate, protocol.EfsHello)
	reply := diagtest.EfsReply(protocol.EfsMethodAlternate, protocol.EfsOpen, diagtest.LE32(0xFFFFFFFF, 0))
	_, err := newBridge(diagtest.Scripted(hello, reply)).Open(context.Background(), "/x", protocol.ORdOnly, 0)
	assert.True(t, diag.IsDomainError(err))
}

func TestStatFamily(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	dev.PutFile("/policyman/carrier_policy.xml", pattern(300), 0o100644)
	b := newBridge(dev.Device)
	ctx := context.Background()

	st, err := b.Stat(ctx, "/policyman/carrier_policy.xml")
	require.NoError(t, err)
	assert.Equal(t, uint32(300), st.Size)
	assert.Equal(t, uint32(1), st.Nlink)
	assert.False(t, st.IsDir())
	assert.Equal(t, "-rw-r--r--", st.FileMode().String())

	lst, err := b.Lstat(ctx, "/policyman/carrier_policy.xml")
	require.NoError(t, err)
	assert.Zero(t, lst.Size, "lstat carries no size")
	assert.Equal(t, uint32(10), lst.Atime)
	assert.Equal(t, uint32(30), lst.Ctime)

	dir, err := b.Stat(ctx, "/policyman")
	require.NoError(t, err)
	assert.True(t, dir.IsDir())
	assert.True(t, dir.FileMode().IsDir())

	fd, err := b.Open(ctx, "/policyman/carrier_policy.xml", protocol.ORdOnly, 0)
	require.NoError(t, err)
	fst, err := b.Fstat(ctx, fd)
	require.NoError(t, err)
	assert.Equal(t, uint32(300), fst.Size)
	require.NoError(t, b.Close(ctx, fd))
	assert.Zero(t, dev.OpenFds())
}

func TestReadUsesReadCommand(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	dev.PutFile("/f", []byte("hello"), 0o100644)
	b := newBridge(dev.Device)
	ctx := context.Background()

	fd, err := b.Open(ctx, "/f", protocol.ORdOnly, 0)
	require.NoError(t, err)
	r, err := b.Read(ctx, fd, 16, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("ello"), r.Data)

	reqs := dev.Requests()
	assert.Equal(t, byte(protocol.EfsRead), reqs[len(reqs)-1][2])

	_, err = b.Read(ctx, fd, protocol.MaxEfsTransfer+1, 0)
	assert.Error(t, err)
}

func TestSimpleCommands(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	dev.PutFile("/data/f", []byte{1}, 0o100600)
	b := newBridge(dev.Device)
	ctx := context.Background()

	require.NoError(t, b.Mkdir(ctx, "/new", 0o755))
	assert.True(t, dev.HasDir("/new"))
	assert.True(t, diag.IsDomainError(b.Mkdir(ctx, "/new", 0o755)))

	require.NoError(t, b.Rmdir(ctx, "/new"))
	assert.False(t, dev.HasDir("/new"))

	require.NoError(t, b.Chmod(ctx, "/data/f", 0o644))
	mode, _ := dev.Mode("/data/f")
	assert.Equal(t, uint32(0o100644), mode)

	require.NoError(t, b.Chown(ctx, "/data/f", 0, 0))
	assert.True(t, diag.IsDomainError(b.Chown(ctx, "/nope", 0, 0)))

	require.NoError(t, b.Unlink(ctx, "/data/f"))
	_, ok := dev.File("/data/f")
	assert.False(t, ok)
	assert.True(t, diag.IsDomainError(b.Unlink(ctx, "/data/f")))
}

func TestReadDir(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	dev.PutFile("/nv/a", []byte{1}, 0o100644)
	dev.PutFile("/nv/b", []byte{2}, 0o100644)
	dev.PutFile("/nv/c/d", []byte{3}, 0o100644)
	b := newBridge(dev.Device)

	entries, err := b.ReadDir(context.Background(), "/nv")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	readdirs, closedirs := 0, 0
	for _, req := range dev.Requests() {
		switch protocol.EfsCommand(req[2]) {
		case protocol.EfsReaddir:
			readdirs++
			seq := binary.LittleEndian.Uint32(req[8:])
			assert.Equal(t, uint32(readdirs), seq, "sequence numbers increase from 1")
		case protocol.EfsClosedir:
			closedirs++
		}
	}
	assert.Equal(t, 4, readdirs, "N entries take N+1 readdir requests")
	assert.Equal(t, 1, closedirs)
}

func TestReadDirScripted(t *testing.T) {
	m := protocol.EfsMethodStandard
	dev := diagtest.Scripted(
		[]byte{0x13},
		diagtest.EfsReply(m, protocol.EfsHello),
		diagtest.EfsReply(m, protocol.EfsOpendir, diagtest.LE32(7, 0)),
		diagtest.ReaddirEntry(m, 7, 1, 0o100644, 12, "efs.mbn"),
		diagtest.ReaddirEntry(m, 7, 2, 0o040755, 0, "nv"),
		diagtest.ReaddirEntry(m, 7, 3, 0, 0, ""),
		diagtest.EfsReply(m, protocol.EfsClosedir, diagtest.LE32(0)),
	)

	entries, err := newBridge(dev).ReadDir(context.Background(), "/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "efs.mbn", entries[0].Name)
	assert.Equal(t, uint32(12), entries[0].Size)
	assert.True(t, entries[1].IsDir())
	assert.Contains(t, entries[0].String(), "efs.mbn mode:0x81A4 size:12")
}

func TestReadDirClosesOnError(t *testing.T) {
	m := protocol.EfsMethodAlternate
	dev := diagtest.Scripted(
		diagtest.EfsReply(m, protocol.EfsHello),
		diagtest.EfsReply(m, protocol.EfsOpendir, diagtest.LE32(3, 0)),
		[]byte{0x47},
		diagtest.EfsReply(m, protocol.EfsClosedir, diagtest.LE32(0)),
	)

	_, err := newBridge(dev).ReadDir(context.Background(), "/")
	assert.True(t, diag.IsSecurityGate(err))
	reqs := dev.Requests()
	require.Len(t, reqs, 4)
	assert.Equal(t, byte(protocol.EfsClosedir), reqs[3][2])
}

func TestGet(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	dev.PutFile("/small", []byte("abc"), 0o100644)
	b := newBridge(dev.Device)

	data, err := b.Get(context.Background(), "/small", 0x100)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	_, err = b.Get(context.Background(), "/none", 0x100)
	assert.True(t, diag.IsDomainError(err))
}

func TestCopyFromDevice(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	content := pattern(2500)
	dev.PutFile("/nv/item_files/rfnv/00020000", content, 0o100644)
	b := newBridge(dev.Device)
	dir := t.TempDir()

	var last int64
	n, err := b.CopyFromDevice(context.Background(), "/nv/item_files/rfnv/00020000", dir, func(done, total int64) {
		assert.Equal(t, int64(2500), total)
		last = done
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), n)
	assert.Equal(t, int64(2500), last)

	got, err := os.ReadFile(filepath.Join(dir, "00020000"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
	assert.Zero(t, dev.OpenFds(), "descriptor closed")

	reads := 0
	for _, req := range dev.Requests() {
		if protocol.EfsCommand(req[2]) == protocol.EfsRead {
			reads++
		}
	}
	assert.Equal(t, 3, reads)
}

func TestCopyFromDeviceWriteOnly(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	dev.PutFile("/wo", []byte("x"), 0o100641)

	_, err := newBridge(dev.Device).CopyFromDevice(context.Background(), "/wo", t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrWriteOnly)
	assert.Zero(t, dev.OpenFds())
}

func TestCopyFromDeviceStopsOnReadFailure(t *testing.T) {
	efsdev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	efsdev.PutFile("/big", pattern(3000), 0o100644)

	// the second chunk is refused
	dev := diagtest.New(func(req []byte) []byte {
		if len(req) >= 16 && protocol.EfsCommand(req[2]) == protocol.EfsRead && binary.LittleEndian.Uint32(req[12:]) == ChunkSize {
			return []byte{0x14}
		}
		resp, _ := efsdev.Send(context.Background(), req)
		return resp
	})
	dir := t.TempDir()

	n, err := newBridge(dev).CopyFromDevice(context.Background(), "/big", dir, nil)
	require.Error(t, err)
	assert.True(t, diag.IsProtocolMismatch(err))
	assert.Equal(t, int64(ChunkSize), n)
	assert.Zero(t, efsdev.OpenFds())

	got, _ := os.ReadFile(filepath.Join(dir, "big"))
	assert.Len(t, got, ChunkSize)
}

func TestCopyToDevice(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	dev.PutFile("/dst", pattern(5000), 0o100600)
	content := pattern(2049)
	src := filepath.Join(t.TempDir(), "upload.bin")
	require.NoError(t, os.WriteFile(src, content, 0o600))

	n, err := newBridge(dev.Device).CopyToDevice(context.Background(), src, "/dst", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2049), n)

	got, ok := dev.File("/dst")
	require.True(t, ok)
	assert.True(t, bytes.Equal(content, got), "existing file is truncated")
	assert.Zero(t, dev.OpenFds())

	var open []byte
	writes := 0
	for _, req := range dev.Requests() {
		switch protocol.EfsCommand(req[2]) {
		case protocol.EfsOpen:
			open = req
		case protocol.EfsWrite:
			writes++
		}
	}
	require.NotNil(t, open)
	assert.Equal(t, protocol.OWrOnly|protocol.OCreat|protocol.OTrunc, binary.LittleEndian.Uint32(open[4:]))
	assert.Equal(t, uint32(0o644), binary.LittleEndian.Uint32(open[8:]))
	assert.Equal(t, 3, writes)
}

func TestCopyToDeviceNewFile(t *testing.T) {
	dev := diagtest.NewEFSDevice(protocol.EfsMethodAlternate)
	src := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(src, nil, 0o600))

	n, err := newBridge(dev.Device).CopyToDevice(context.Background(), src, "/created", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	mode, ok := dev.Mode("/created")
	require.True(t, ok)
	assert.Equal(t, uint32(0o100644), mode)
}

func TestChunkLen(t *testing.T) {
	tests := []struct {
		offset uint64
		size   uint32
		want   uint32
	}{
		{0, 0, 0},
		{0, 10, 10},
		{0, 2500, ChunkSize},
		{2048, 2500, 452},
		{2500, 2500, 0},
		{0xFFFFFC00, math.MaxUint32, 0x3FF},
		{0x100000000, math.MaxUint32, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, chunkLen(tt.offset, tt.size), "offset 0x%X size 0x%X", tt.offset, tt.size)
	}
}

func TestChunkLenLargestFileTerminates(t *testing.T) {
	var total uint64
	steps := 0
	for offset := uint64(0); ; offset += ChunkSize {
		n := chunkLen(offset, math.MaxUint32)
		if n == 0 {
			break
		}
		total += uint64(n)
		steps++
	}
	assert.Equal(t, uint64(math.MaxUint32), total)
	assert.Equal(t, 1<<22, steps)
}
