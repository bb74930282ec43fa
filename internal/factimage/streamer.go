package factimage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/muurk/qcdiag/internal/diag"
	"github.com/muurk/qcdiag/internal/efs"
	"github.com/muurk/qcdiag/internal/protocol"
	"go.uber.org/zap"
)

// ProgressFunc is called after every page with the pages read so far and
// the page count derived from the header.
type ProgressFunc func(page, total int)

// Result summarizes an export.
type Result struct {
	Header *protocol.FactoryHeader
	Pages  int   // pages read after the header
	Bytes  int64 // bytes written to the sink, header included
	// EndOfStream is set when a legacy reply signalled the end before
	// every page was read.
	EndOfStream bool
	Duration    time.Duration
}

// Streamer exports the factory image over an EFS2 session. It sends on
// the method byte the bridge selected.
type Streamer struct {
	bridge *efs.Bridge
	client *diag.Client
	logger *zap.Logger
}

// NewStreamer returns a streamer sharing b's session.
func NewStreamer(b *efs.Bridge) *Streamer {
	c := b.Client()
	return &Streamer{bridge: b, client: c, logger: c.Logger()}
}

// Export streams the image into w, byte for byte as the device sends it.
// Once prepare has been answered, FACT_IMAGE_END is sent however the
// export ends. A page that fails twice aborts the export.
func (s *Streamer) Export(ctx context.Context, w io.Writer, progress ProgressFunc) (res *Result, err error) {
	start := time.Now()
	res = &Result{}

	m, err := s.bridge.DetectMethod(ctx)
	if err != nil {
		return res, err
	}

	if err := s.prepare(ctx, m); err != nil {
		return res, err
	}
	defer func() {
		if endErr := s.end(context.WithoutCancel(ctx), m); endErr != nil {
			if err == nil {
				err = endErr
			} else {
				s.logger.Warn("Factory image end failed", zap.Error(endErr))
			}
		}
		res.Duration = time.Since(start)
	}()

	if _, err := s.client.Send(ctx, protocol.BuildEfsCommand(m, protocol.EfsFactImageStart)); err != nil {
		return res, diag.Wrap("factory image start", err)
	}

	first, err := s.readHeader(ctx, m)
	if err != nil {
		return res, err
	}
	res.Header = first.header
	if err := writeAll(w, first.data, res); err != nil {
		return res, err
	}

	total := first.header.TotalPages()
	s.logger.Info("Factory image export started",
		zap.Stringer("header", first.header),
		zap.Int("pages", total),
		zap.Stringer("method", m))

	cursor := first.cursor
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		p, err := s.readPage(ctx, m, cursor, i)
		if err != nil {
			return res, err
		}
		if err := writeAll(w, p.data, res); err != nil {
			return res, err
		}
		cursor = p.cursor
		res.Pages++
		if progress != nil {
			progress(res.Pages, total)
		}
		if p.endOfStream() {
			res.EndOfStream = true
			s.logger.Debug("Device ended the stream", zap.Int("page", i))
			break
		}
	}

	s.logger.Info("Factory image export finished", zap.Int("pages", res.Pages), zap.Int64("bytes", res.Bytes))
	return res, nil
}

// prepare fails when the device stays silent, which usually means another
// program holds the port.
func (s *Streamer) prepare(ctx context.Context, m protocol.EfsMethod) error {
	resp, err := s.client.Send(ctx, protocol.BuildEfsCommand(m, protocol.EfsPrepFactImage))
	if err != nil {
		return diag.Wrap("factory image prepare", err)
	}
	if len(resp) == 0 {
		e := diag.NewTransportEmpty("factory image prepare")
		e.Message = "no response to prepare, another program may be using the port"
		return e
	}
	return nil
}

func (s *Streamer) end(ctx context.Context, m protocol.EfsMethod) error {
	resp, err := s.client.Send(ctx, protocol.BuildEfsCommand(m, protocol.EfsFactImageEnd))
	if err != nil {
		return diag.Wrap("factory image end", err)
	}
	if len(resp) == 0 {
		return diag.NewTransportEmpty("factory image end")
	}
	return nil
}

func (s *Streamer) readHeader(ctx context.Context, m protocol.EfsMethod) (*firstReply, error) {
	const op = "factory image header"

	resp, err := s.client.SendRetryEmpty(ctx, protocol.BuildFactImageRead(m, protocol.StreamCursor{}))
	if err != nil {
		return nil, diag.Wrap(op, err)
	}
	if err := protocol.CheckEfsResponse(resp); err != nil {
		return nil, diag.Wrap(op, err)
	}
	if code := readError(resp); code != 0 {
		return nil, diag.NewDomainError(op, code, "factory image read not supported")
	}
	first, err := decodeFirst(resp)
	if err != nil {
		return nil, diag.Wrap(op, err)
	}
	return first, nil
}

// readPage sends one page request and retries it once if the reply is
// missing or has neither known shape.
func (s *Streamer) readPage(ctx context.Context, m protocol.EfsMethod, c protocol.StreamCursor, index int) (*page, error) {
	op := fmt.Sprintf("factory image page %d (seq 0x%08X)", index, c.ClusterDataSeqno)
	req := protocol.BuildFactImageRead(m, c)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := s.client.Send(ctx, req)
		if err != nil {
			return nil, diag.Wrap(op, err)
		}
		p, err := decodePage(resp)
		if err == nil {
			return p, nil
		}
		lastErr = err
		s.logger.Debug("Page read failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("response_len", len(resp)),
			zap.Error(err))
	}
	return nil, diag.Wrap(op, lastErr)
}

func writeAll(w io.Writer, data []byte, res *Result) error {
	n, err := w.Write(data)
	res.Bytes += int64(n)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}
