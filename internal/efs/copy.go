package efs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"

	"github.com/muurk/qcdiag/internal/protocol"
	"go.uber.org/zap"
)

// ChunkSize is the transfer size of each read or write request.
const ChunkSize = protocol.MaxEfsTransfer

// ErrWriteOnly is returned when downloading a file opened write-only.
var ErrWriteOnly = errors.New("file is write-only")

// ProgressFunc reports transferred bytes against the total.
type ProgressFunc func(done, total int64)

// CopyFromDevice downloads src into dstDir under the same base name. On a
// failed read the copy stops and the bytes written so far are returned
// with the error.
func (b *Bridge) CopyFromDevice(ctx context.Context, src, dstDir string, progress ProgressFunc) (int64, error) {
	fd, err := b.Open(ctx, src, protocol.ORdOnly, 0)
	if err != nil {
		return 0, err
	}
	defer b.closeFd(ctx, fd, src)

	info, err := b.Fstat(ctx, fd)
	if err != nil {
		return 0, err
	}
	if info.Mode&protocol.OAccMode == protocol.OWrOnly {
		return 0, fmt.Errorf("%s: %w", src, ErrWriteOnly)
	}

	dst := filepath.Join(dstDir, path.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	total := int64(info.Size)
	var done int64
	for offset := uint64(0); ; offset += ChunkSize {
		n := chunkLen(offset, info.Size)
		if n == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return done, err
		}
		r, err := b.Read(ctx, fd, n, uint32(offset))
		if err != nil {
			return done, err
		}
		w, err := out.Write(r.Data)
		done += int64(w)
		if err != nil {
			return done, fmt.Errorf("failed to write %s: %w", dst, err)
		}
		if progress != nil {
			progress(done, total)
		}
	}

	if err := out.Sync(); err != nil {
		return done, fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	b.logger.Debug("EFS download complete", zap.String("src", src), zap.String("dst", dst), zap.Int64("bytes", done))
	return done, nil
}

// CopyToDevice uploads the local file src to dst, creating or truncating
// it with mode 0644. On a failed write the copy stops and the bytes sent
// so far are returned with the error.
func (b *Bridge) CopyToDevice(ctx context.Context, src, dst string, progress ProgressFunc) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if st.Size() > math.MaxUint32 {
		return 0, fmt.Errorf("%s: %d bytes does not fit 32-bit EFS offsets", src, st.Size())
	}

	fd, err := b.Open(ctx, dst, protocol.OWrOnly|protocol.OCreat|protocol.OTrunc, 0o644)
	if err != nil {
		return 0, err
	}
	defer b.closeFd(ctx, fd, dst)

	total := st.Size()
	var done int64
	buf := make([]byte, ChunkSize)
	for offset := uint64(0); ; offset += ChunkSize {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		n, rerr := io.ReadFull(in, buf)
		if n > 0 {
			w, err := b.Write(ctx, fd, uint32(offset), buf[:n])
			if err != nil {
				return done, err
			}
			done += int64(w.BytesWritten)
			if progress != nil {
				progress(done, total)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return done, fmt.Errorf("failed to read %s: %w", src, rerr)
		}
	}

	b.logger.Debug("EFS upload complete", zap.String("src", src), zap.String("dst", dst), zap.Int64("bytes", done))
	return done, nil
}

// chunkLen is the length of the read starting at offset in a file of size
// bytes, zero once offset reaches the end.
func chunkLen(offset uint64, size uint32) uint32 {
	if offset >= uint64(size) {
		return 0
	}
	return uint32(min(uint64(size)-offset, ChunkSize))
}

func (b *Bridge) closeFd(ctx context.Context, fd int32, p string) {
	if err := b.Close(context.WithoutCancel(ctx), fd); err != nil {
		b.logger.Warn("EFS close failed", zap.String("path", p), zap.Int32("fd", fd), zap.Error(err))
	}
}
