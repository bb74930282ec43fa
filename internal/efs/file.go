package efs

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/muurk/qcdiag/internal/diag"
	"github.com/muurk/qcdiag/internal/protocol"
)

// POSIX file type bits as reported by the device.
const (
	modeTypeMask uint32 = 0o170000
	modeDir      uint32 = 0o040000
	modeRegular  uint32 = 0o100000
	modeSymlink  uint32 = 0o120000
)

// FileInfo is the decoded result of stat, lstat and fstat. Lstat leaves
// Size and Nlink at zero.
type FileInfo struct {
	Path  string
	Mode  uint32
	Size  uint32
	Nlink uint32
	Atime uint32
	Mtime uint32
	Ctime uint32
}

func newFileInfo(path string, r *protocol.EfsStatReply) *FileInfo {
	return &FileInfo{
		Path:  path,
		Mode:  r.Mode,
		Size:  r.Size,
		Nlink: r.Nlink,
		Atime: r.Atime,
		Mtime: r.Mtime,
		Ctime: r.Ctime,
	}
}

// IsDir reports whether the entry is a directory.
func (fi *FileInfo) IsDir() bool { return fi.Mode&modeTypeMask == modeDir }

// FileMode converts the device mode to an fs.FileMode.
func (fi *FileInfo) FileMode() fs.FileMode { return FileMode(fi.Mode) }

// FileMode converts a device mode word to an fs.FileMode.
func FileMode(mode uint32) fs.FileMode {
	m := fs.FileMode(mode & 0o777)
	switch mode & modeTypeMask {
	case modeDir:
		m |= fs.ModeDir
	case modeSymlink:
		m |= fs.ModeSymlink
	case modeRegular, 0:
	default:
		m |= fs.ModeIrregular
	}
	return m
}

// Open opens path and returns the device descriptor. The caller must Close it.
func (b *Bridge) Open(ctx context.Context, path string, flags, mode uint32) (int32, error) {
	op := opName("open", path)
	resp, err := b.exchange(ctx, op, func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsOpen(m, path, flags, mode)
	})
	if err != nil {
		return -1, err
	}
	r, err := protocol.ParseEfsOpen(resp)
	if err != nil {
		return -1, diag.Wrap(op, err)
	}
	if err := checkErrno(op, r.Errno); err != nil {
		return -1, err
	}
	if r.Fd < 0 {
		return -1, diag.NewDomainError(op, uint32(r.Errno), fmt.Sprintf("invalid descriptor %d", r.Fd))
	}
	return r.Fd, nil
}

// Close closes a descriptor returned by Open.
func (b *Bridge) Close(ctx context.Context, fd int32) error {
	op := fmt.Sprintf("efs close fd %d", fd)
	resp, err := b.exchange(ctx, op, func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsClose(m, fd)
	})
	if err != nil {
		return err
	}
	return errnoAt(op, resp, 4)
}

// Read reads up to nbytes (at most 1024) at offset.
func (b *Bridge) Read(ctx context.Context, fd int32, nbytes, offset uint32) (*protocol.EfsReadReply, error) {
	op := fmt.Sprintf("efs read fd %d @0x%X", fd, offset)
	m, err := b.DetectMethod(ctx)
	if err != nil {
		return nil, err
	}
	req, err := protocol.BuildEfsRead(m, fd, nbytes, offset)
	if err != nil {
		return nil, err
	}
	resp, err := b.exchange(ctx, op, func(protocol.EfsMethod) []byte { return req })
	if err != nil {
		return nil, err
	}
	r, err := protocol.ParseEfsRead(resp)
	if err != nil {
		return nil, diag.Wrap(op, err)
	}
	if err := checkErrno(op, r.Errno); err != nil {
		return nil, err
	}
	return r, nil
}

// Write writes data (at most 1024 bytes) at offset.
func (b *Bridge) Write(ctx context.Context, fd int32, offset uint32, data []byte) (*protocol.EfsWriteReply, error) {
	op := fmt.Sprintf("efs write fd %d @0x%X", fd, offset)
	m, err := b.DetectMethod(ctx)
	if err != nil {
		return nil, err
	}
	req, err := protocol.BuildEfsWrite(m, fd, offset, data)
	if err != nil {
		return nil, err
	}
	resp, err := b.exchange(ctx, op, func(protocol.EfsMethod) []byte { return req })
	if err != nil {
		return nil, err
	}
	r, err := protocol.ParseEfsWrite(resp)
	if err != nil {
		return nil, diag.Wrap(op, err)
	}
	if err := checkErrno(op, r.Errno); err != nil {
		return nil, err
	}
	return r, nil
}

// Stat returns the metadata of path, following links.
func (b *Bridge) Stat(ctx context.Context, path string) (*FileInfo, error) {
	op := opName("stat", path)
	resp, err := b.exchange(ctx, op, func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsStat(m, path)
	})
	if err != nil {
		return nil, err
	}
	return statReply(op, path, resp, protocol.ParseEfsStat)
}

// Lstat returns the metadata of the link itself. Size and Nlink are not
// reported.
func (b *Bridge) Lstat(ctx context.Context, path string) (*FileInfo, error) {
	op := opName("lstat", path)
	resp, err := b.exchange(ctx, op, func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsLstat(m, path)
	})
	if err != nil {
		return nil, err
	}
	return statReply(op, path, resp, protocol.ParseEfsLstat)
}

// Fstat returns the metadata of an open descriptor.
func (b *Bridge) Fstat(ctx context.Context, fd int32) (*FileInfo, error) {
	op := fmt.Sprintf("efs fstat fd %d", fd)
	resp, err := b.exchange(ctx, op, func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsFstat(m, fd)
	})
	if err != nil {
		return nil, err
	}
	return statReply(op, "", resp, protocol.ParseEfsStat)
}

func statReply(op, path string, resp []byte, parse func([]byte) (*protocol.EfsStatReply, error)) (*FileInfo, error) {
	r, err := parse(resp)
	if err != nil {
		return nil, diag.Wrap(op, err)
	}
	if err := checkErrno(op, r.Errno); err != nil {
		return nil, err
	}
	return newFileInfo(path, r), nil
}

// Mkdir creates a directory.
func (b *Bridge) Mkdir(ctx context.Context, path string, mode uint16) error {
	return b.simple(ctx, opName("mkdir", path), func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsMkdir(m, path, mode)
	})
}

// Rmdir removes an empty directory.
func (b *Bridge) Rmdir(ctx context.Context, path string) error {
	return b.simple(ctx, opName("rmdir", path), func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsRmdir(m, path)
	})
}

// Unlink removes a file.
func (b *Bridge) Unlink(ctx context.Context, path string) error {
	return b.simple(ctx, opName("unlink", path), func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsUnlink(m, path)
	})
}

// Chmod sets the permission bits of path.
func (b *Bridge) Chmod(ctx context.Context, path string, mode uint16) error {
	return b.simple(ctx, opName("chmod", path), func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsChmod(m, path, mode)
	})
}

// Chown sets the owner of path.
func (b *Bridge) Chown(ctx context.Context, path string, uid, gid int32) error {
	return b.simple(ctx, opName("chown", path), func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsChown(m, path, uid, gid)
	})
}

// simple handles commands whose reply is only an errno at offset 4.
func (b *Bridge) simple(ctx context.Context, op string, build func(protocol.EfsMethod) []byte) error {
	resp, err := b.exchange(ctx, op, build)
	if err != nil {
		return err
	}
	return errnoAt(op, resp, 4)
}

// Get fetches a small file in one request. maxLen bounds the data the
// device may return.
func (b *Bridge) Get(ctx context.Context, path string, maxLen uint32) ([]byte, error) {
	op := opName("get", path)
	resp, err := b.exchange(ctx, op, func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsGet(m, path, maxLen, 0)
	})
	if err != nil {
		return nil, err
	}
	r, err := protocol.ParseEfsGet(resp)
	if err != nil {
		return nil, diag.Wrap(op, err)
	}
	if err := checkErrno(op, r.Errno); err != nil {
		return nil, err
	}
	data := r.Data
	if uint32(len(data)) > r.NumBytes {
		data = data[:r.NumBytes]
	}
	return data, nil
}
