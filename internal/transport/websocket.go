package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/qcdiag/internal/logging"
	"github.com/muurk/qcdiag/internal/version"
	"go.uber.org/zap"
)

// relayWriteWait bounds a single request write to the relay.
const relayWriteWait = 10 * time.Second

// Relay is a Channel to a diag port served by qcdiag-relay. Each request is
// one binary message; each reply is one binary message holding the unframed
// response, empty when the device did not answer.
type Relay struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
	logger  *zap.Logger
	closed  bool
}

// DialRelay connects to a relay at url (ws://host:port/diag).
func DialRelay(ctx context.Context, url string, timeout time.Duration) (*Relay, error) {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}

	header := http.Header{"User-Agent": {version.UserAgent()}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial relay %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	logging.LogConnection(url, "relay_connected")

	return &Relay{conn: conn, timeout: timeout, logger: logging.GetLogger()}, nil
}

// Send forwards req and waits for the relay's reply. The relay waits for the
// device on its side, so the read deadline allows for its timeout as well.
func (r *Relay) Send(ctx context.Context, req []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logging.LogRequest(r.logger, req)
	_ = r.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
	if err := r.conn.WriteMessage(websocket.BinaryMessage, req); err != nil {
		return nil, fmt.Errorf("relay write: %w", err)
	}

	deadline := time.Now().Add(2*r.timeout + time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = r.conn.SetReadDeadline(deadline)

	for {
		msgType, data, err := r.conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// The connection is unusable after a read timeout.
				r.closed = true
				_ = r.conn.Close()
				return []byte{}, nil
			}
			return nil, fmt.Errorf("relay read: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			r.logger.Debug("Ignoring non-binary relay message", zap.Int("type", msgType))
			continue
		}
		logging.LogResponse(r.logger, data)
		if data == nil {
			data = []byte{}
		}
		return data, nil
	}
}

// Close sends a close frame and closes the connection.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return r.conn.Close()
}
