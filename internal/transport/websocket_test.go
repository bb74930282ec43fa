package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/qcdiag/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoRelay answers every binary message with reply(msg).
func echoRelay(t *testing.T, reply func([]byte) []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, reply(msg)); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/diag"
}

func TestRelaySend(t *testing.T) {
	srv := echoRelay(t, func(req []byte) []byte {
		return append([]byte{req[0]}, 0xAA)
	})
	defer srv.Close()

	r, err := DialRelay(context.Background(), wsURL(srv), 100*time.Millisecond)
	require.NoError(t, err)

	resp, err := r.Send(context.Background(), []byte{0x26, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x26, 0xAA}, resp)

	require.NoError(t, r.Close())
	_, err = r.Send(context.Background(), []byte{0x00})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRelayEmptyReply(t *testing.T) {
	srv := echoRelay(t, func([]byte) []byte { return nil })
	defer srv.Close()

	r, err := DialRelay(context.Background(), wsURL(srv), 100*time.Millisecond)
	require.NoError(t, err)
	defer r.Close()

	resp, err := r.Send(context.Background(), []byte{0x00})
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Empty(t, resp)
}

func TestDialRelayFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := DialRelay(context.Background(), wsURL(srv), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestOpenRejectsUnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Options{Kind: "carrier-pigeon"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Kind: KindRelay})
	assert.Error(t, err)
}

func TestDialRelaySendsUserAgent(t *testing.T) {
	agents := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	r, err := DialRelay(context.Background(), wsURL(srv), time.Second)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Equal(t, version.UserAgent(), <-agents)
}
