package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/qcdiag/internal/diagtest"
	"github.com/muurk/qcdiag/internal/transport"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoDevice answers NV reads with the request and stays silent otherwise.
func echoDevice() *diagtest.Device {
	return diagtest.New(func(req []byte) []byte {
		if req[0] == 0x26 {
			return req
		}
		return nil
	})
}

func startRelay(t *testing.T, cfg Config, ch transport.Channel) (*Server, string) {
	t.Helper()
	s, err := New(cfg, ch)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.capture.Close()
	})
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestRelayForwardsRequests(t *testing.T) {
	dev := echoDevice()
	s, base := startRelay(t, Config{}, dev)

	client, err := transport.DialRelay(context.Background(), base+"/diag", 200*time.Millisecond)
	require.NoError(t, err)
	defer client.Close()

	req := []byte{0x26, 0x26, 0x02}
	resp, err := client.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req, resp)

	resp, err = client.Send(context.Background(), []byte{0x4B, 0x13})
	require.NoError(t, err)
	assert.Empty(t, resp, "silent device gives an empty reply")

	assert.Len(t, dev.Requests(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().Requests.WithLabelValues("NV_READ")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().Requests.WithLabelValues("SUBSYS_CMD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().EmptyReplies))
	assert.False(t, dev.Closed(), "relay must not close the local channel")
}

func TestRelaySingleSession(t *testing.T) {
	s, base := startRelay(t, Config{}, echoDevice())

	first, _, err := websocket.DefaultDialer.Dial(base+"/diag", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.ActiveSession() != "" }, time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(base+"/diag", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().RejectedSessions))

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return s.ActiveSession() == "" }, time.Second, 10*time.Millisecond)

	second, _, err := websocket.DefaultDialer.Dial(base+"/diag", nil)
	require.NoError(t, err, "port is free again after the first client leaves")
	require.NoError(t, second.Close())
}

func TestRelayIgnoresTextMessages(t *testing.T) {
	dev := echoDevice()
	_, base := startRelay(t, Config{}, dev)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/diag", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x26, 0x01}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, typ)
	assert.Equal(t, []byte{0x26, 0x01}, data)
	assert.Len(t, dev.Requests(), 1)
}

func TestRelayClosesOnLinkError(t *testing.T) {
	dev := echoDevice()
	_ = dev.Close()
	_, base := startRelay(t, Config{}, dev)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/diag", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x26}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "got %v", err)
	assert.Contains(t, err.Error(), "transport closed")
}

func TestRelayCapture(t *testing.T) {
	dir := t.TempDir()
	s, base := startRelay(t, Config{CaptureDir: dir}, echoDevice())

	client, err := transport.DialRelay(context.Background(), base+"/diag", 200*time.Millisecond)
	require.NoError(t, err)
	_, err = client.Send(context.Background(), []byte{0x26, 0xAA})
	require.NoError(t, err)
	_, err = client.Send(context.Background(), []byte{0x00})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	require.NoError(t, s.capture.Close())
	f, err := os.Open(s.capture.Path())
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, dir, filepath.Dir(f.Name()))

	recs, err := ReadCapture(f)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, 1, recs[0].Seq)
	assert.Equal(t, "NV_READ", recs[0].Opcode)
	assert.Equal(t, "26aa", recs[0].RequestHex)
	assert.Equal(t, "26aa", recs[0].ResponseHex)
	assert.Equal(t, recs[0].Session, recs[1].Session)

	resp, err := recs[1].Response()
	require.NoError(t, err)
	assert.Empty(t, resp)
	assert.Equal(t, "VERNO", recs[1].Opcode)
}

func TestReadCaptureBadLine(t *testing.T) {
	in := `{"seq":1,"request_hex":"00"}` + "\n\n" + "not json\n"
	recs, err := ReadCapture(strings.NewReader(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
	assert.Len(t, recs, 1)
}

func TestRelayMetricsAndHealth(t *testing.T) {
	_, base := startRelay(t, Config{}, echoDevice())
	httpBase := "http" + strings.TrimPrefix(base, "ws")

	resp, err := http.Get(httpBase + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "idle\n", string(body))

	resp, err = http.Get(httpBase + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.True(t, bytes.Contains(body, []byte("qcdiag_relay_active_sessions")))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, err := New(Config{}, echoDevice())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/diag", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.ActiveSession() != "" }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		assert.Equal(t, websocket.CloseGoingAway, ce.Code)
	}
}
