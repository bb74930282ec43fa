package efs

import (
	"context"
	"fmt"

	"github.com/muurk/qcdiag/internal/diag"
	"github.com/muurk/qcdiag/internal/protocol"
	"go.uber.org/zap"
)

// DirEntry is one directory listing entry.
type DirEntry struct {
	Name  string
	Mode  uint32
	Size  uint32
	Atime uint32
	Mtime uint32
	Ctime uint32
}

// IsDir reports whether the entry is a directory.
func (e DirEntry) IsDir() bool { return e.Mode&modeTypeMask == modeDir }

// String formats the entry the way a listing line prints it.
func (e DirEntry) String() string {
	return fmt.Sprintf("%s mode:0x%X size:%d atime:%d mtime:%d ctime:%d", e.Name, e.Mode, e.Size, e.Atime, e.Mtime, e.Ctime)
}

// Opendir opens a directory for iteration.
func (b *Bridge) Opendir(ctx context.Context, dir string) (uint32, error) {
	op := opName("opendir", dir)
	resp, err := b.exchange(ctx, op, func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsOpendir(m, dir)
	})
	if err != nil {
		return 0, err
	}
	r, err := protocol.ParseEfsOpendir(resp)
	if err != nil {
		return 0, diag.Wrap(op, err)
	}
	if err := checkErrno(op, r.Errno); err != nil {
		return 0, err
	}
	return r.Dirp, nil
}

// Readdir reads entry seqno of dirp. end is true at the end-of-directory
// sentinel, in which case entry is nil.
func (b *Bridge) Readdir(ctx context.Context, dirp, seqno uint32) (entry *DirEntry, end bool, err error) {
	op := fmt.Sprintf("efs readdir %d #%d", dirp, seqno)
	resp, err := b.exchange(ctx, op, func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsReaddir(m, dirp, seqno)
	})
	if err != nil {
		return nil, false, err
	}
	r, err := protocol.ParseEfsReaddir(resp)
	if err != nil {
		return nil, false, diag.Wrap(op, err)
	}
	if err := checkErrno(op, r.Errno); err != nil {
		return nil, false, err
	}
	if r.End() {
		return nil, true, nil
	}
	return &DirEntry{
		Name:  r.Name,
		Mode:  r.Mode,
		Size:  r.Size,
		Atime: r.Atime,
		Mtime: r.Mtime,
		Ctime: r.Ctime,
	}, false, nil
}

// Closedir releases dirp.
func (b *Bridge) Closedir(ctx context.Context, dirp uint32) error {
	return b.simple(ctx, fmt.Sprintf("efs closedir %d", dirp), func(m protocol.EfsMethod) []byte {
		return protocol.BuildEfsClosedir(m, dirp)
	})
}

// ReadDir lists dir. Sequence numbers start at 1 and the loop stops at the
// end sentinel, so a directory of N entries costs N+1 readdir requests.
// The handle is always closed; a failed closedir is only logged.
func (b *Bridge) ReadDir(ctx context.Context, dir string) ([]DirEntry, error) {
	dirp, err := b.Opendir(ctx, dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := b.Closedir(context.WithoutCancel(ctx), dirp); cerr != nil {
			b.logger.Warn("closedir failed", zap.String("path", dir), zap.Error(cerr))
		}
	}()

	var entries []DirEntry
	for seq := uint32(1); ; seq++ {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		e, end, err := b.Readdir(ctx, dirp, seq)
		if err != nil {
			return entries, err
		}
		if end {
			return entries, nil
		}
		entries = append(entries, *e)
	}
}
