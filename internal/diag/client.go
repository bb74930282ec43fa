package diag

import (
	"context"

	"github.com/muurk/qcdiag/internal/logging"
	"github.com/muurk/qcdiag/internal/transport"
	"go.uber.org/zap"
)

// Client issues diag requests over a channel. It is not safe for concurrent
// use; the device handles one request at a time.
type Client struct {
	ch     transport.Channel
	logger *zap.Logger
}

// NewClient wraps ch. A nil logger uses logging.GetLogger().
func NewClient(ch transport.Channel, logger *zap.Logger) *Client {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Client{ch: ch, logger: logger}
}

// Logger returns the client's logger for components built on top of it.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// Send issues one request. The reply may be empty; callers classify it.
func (c *Client) Send(ctx context.Context, req []byte) ([]byte, error) {
	return c.ch.Send(ctx, req)
}

// SendRetryEmpty issues req and, if the device does not answer, issues it
// exactly once more.
func (c *Client) SendRetryEmpty(ctx context.Context, req []byte) ([]byte, error) {
	resp, err := c.ch.Send(ctx, req)
	if err != nil || len(resp) > 0 {
		return resp, err
	}
	c.logger.Debug("Empty reply, retrying once", zap.Int("request_len", len(req)))
	return c.ch.Send(ctx, req)
}

// Close closes the underlying channel.
func (c *Client) Close() error {
	return c.ch.Close()
}
