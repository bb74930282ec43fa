package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/muurk/qcdiag/internal/logging"
	"github.com/muurk/qcdiag/internal/protocol"
	"go.uber.org/zap"
)

// drainTimeout bounds Drain when the device has nothing queued.
const drainTimeout = 200 * time.Millisecond

const readChunk = 4096

// HDLC frames requests onto a raw byte link and unframes replies.
//
// The link's Read must return (0, nil) when its own short read timeout
// expires with nothing received; HDLC polls it until the response timeout.
type HDLC struct {
	mu      sync.Mutex
	link    io.ReadWriteCloser
	timeout time.Duration
	logger  *zap.Logger
	pending []byte
	closed  bool

	// late counts timed out requests the device may still answer.
	// lateEcho is the echo prefix of the last of them.
	late     int
	lateEcho []byte
}

// NewHDLC wraps link. A nil logger uses logging.GetLogger().
func NewHDLC(link io.ReadWriteCloser, timeout time.Duration, logger *zap.Logger) *HDLC {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &HDLC{link: link, timeout: timeout, logger: logger}
}

// Send writes one framed request and returns the next valid reply payload.
func (h *HDLC) Send(ctx context.Context, req []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if h.late > 0 {
		h.discardLate(ctx)
	}

	logging.LogRequest(h.logger, req)
	if _, err := h.link.Write(protocol.EncodeHDLC(req)); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	echo := echoPrefix(req)
	deadline := time.Now().Add(h.timeout)
	for {
		resp, err := h.readFrame(ctx, deadline)
		if err != nil {
			return nil, err
		}
		if len(resp) == 0 {
			h.late++
			h.lateEcho = echo
			return resp, nil
		}
		if h.lateEcho != nil && bytes.HasPrefix(resp, h.lateEcho) && !bytes.HasPrefix(resp, echo) {
			h.logger.Debug("Dropped late reply", zap.Int("length", len(resp)))
			h.lateEcho = nil
			continue
		}
		h.lateEcho = nil
		logging.LogResponse(h.logger, resp)
		return resp, nil
	}
}

// discardLate reads at most one frame per timed out request, giving each
// drainTimeout to arrive.
func (h *HDLC) discardLate(ctx context.Context) {
	for ; h.late > 0; h.late-- {
		resp, err := h.readFrame(ctx, time.Now().Add(drainTimeout))
		if err != nil || len(resp) == 0 {
			break
		}
		h.logger.Debug("Discarded late reply", zap.Int("length", len(resp)))
		h.lateEcho = nil
	}
	h.late = 0
}

// echoPrefix is the part of req a reply repeats: the command byte, plus
// the subsystem id and command code for subsystem requests.
func echoPrefix(req []byte) []byte {
	if len(req) >= 4 && protocol.DiagCommand(req[0]) == protocol.CmdSubsystem {
		return append([]byte(nil), req[:4]...)
	}
	if len(req) == 0 {
		return nil
	}
	return []byte{req[0]}
}

// Drain discards frames the device queued before the session started.
func (h *HDLC) Drain(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.late, h.lateEcho = 0, nil
	for {
		resp, err := h.readFrame(ctx, time.Now().Add(drainTimeout))
		if err != nil || len(resp) == 0 {
			h.pending = h.pending[:0]
			return
		}
		h.logger.Debug("Drained stale frame", zap.Int("length", len(resp)))
	}
}

// readFrame returns an empty slice when deadline passes without a valid frame.
func (h *HDLC) readFrame(ctx context.Context, deadline time.Time) ([]byte, error) {
	buf := make([]byte, readChunk)

	for {
		if idx := bytes.IndexByte(h.pending, protocol.HDLCFlag); idx >= 0 {
			frame := append([]byte(nil), h.pending[:idx+1]...)
			h.pending = append(h.pending[:0], h.pending[idx+1:]...)
			if len(frame) == 1 {
				// Bare flag between frames.
				continue
			}
			payload, err := protocol.DecodeHDLC(frame)
			if err != nil {
				h.logger.Warn("Dropping malformed frame", zap.Error(err), zap.Int("length", len(frame)))
				continue
			}
			return payload, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return []byte{}, nil
		}

		n, err := h.link.Read(buf)
		if n > 0 {
			h.pending = append(h.pending, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read response: %w", io.ErrUnexpectedEOF)
			}
			return nil, fmt.Errorf("read response: %w", err)
		}
	}
}

// Close closes the underlying link. It is safe to call more than once.
func (h *HDLC) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.link.Close()
}
