package diag

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/muurk/qcdiag/internal/diagtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func spBytes(t *testing.T) []byte {
	t.Helper()
	b, err := hex.DecodeString(DefaultSP)
	require.NoError(t, err)
	return b
}

func TestSendSP(t *testing.T) {
	dev := diagtest.Scripted([]byte{0x46, 0x01})
	ok, err := NewClient(dev, nil).SendSP(context.Background(), spBytes(t))

	require.NoError(t, err)
	assert.True(t, ok)
	reqs := dev.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, byte(0x46), reqs[0][0])
	assert.Equal(t, spBytes(t), reqs[0][1:])
}

func TestSendSPFallsBackToLegacy(t *testing.T) {
	dev := diagtest.Scripted([]byte{0x13, 0x46}, []byte{0x25, 0x00})
	ok, err := NewClient(dev, nil).SendSP(context.Background(), spBytes(t))

	require.NoError(t, err)
	assert.False(t, ok, "0x00 flag means wrong password")
	reqs := dev.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, byte(0x25), reqs[1][0])
}

func TestSendSPRejectsShortPassword(t *testing.T) {
	dev := diagtest.Scripted()
	_, err := NewClient(dev, nil).SendSP(context.Background(), []byte{1, 2, 3})
	assert.Error(t, err)
	assert.Empty(t, dev.Requests())
}

func TestSendSPC(t *testing.T) {
	tests := []struct {
		name     string
		resp     []byte
		accepted bool
		kind     ErrorKind
		wantErr  bool
	}{
		{name: "accepted", resp: []byte{0x41, 0x01}, accepted: true},
		{name: "wrong", resp: []byte{0x41, 0x00}},
		{name: "locked", resp: []byte{0x42}, wantErr: true, kind: KindProtocolMismatch},
		{name: "no answer", resp: nil, wantErr: true, kind: KindTransportEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := diagtest.Scripted(tt.resp)
			ok, err := NewClient(dev, nil).SendSPC(context.Background(), []byte("000000"))
			if tt.wantErr {
				require.Error(t, err)
				kind, _ := KindOf(err)
				assert.Equal(t, tt.kind, kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.accepted, ok)
		})
	}
}

func TestModeCommands(t *testing.T) {
	dev := diagtest.New(func(req []byte) []byte { return req })
	c := NewClient(dev, nil)
	ctx := context.Background()

	require.NoError(t, c.EnterDownloadMode(ctx))
	require.NoError(t, c.EnterSaharaMode(ctx))
	require.NoError(t, c.EnforceCrash(ctx))

	reqs := dev.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, []byte{0x3A}, reqs[0])
	assert.Equal(t, []byte{0x4B, 0x65, 0x01, 0x00}, reqs[1])
	assert.Equal(t, []byte{0x4B, 0x25, 0x03, 0x00}, reqs[2])
}

func TestSaharaModeRejected(t *testing.T) {
	err := NewClient(diagtest.Scripted([]byte{0x13}), nil).EnterSaharaMode(context.Background())
	assert.True(t, IsProtocolMismatch(err))
}

func TestInfo(t *testing.T) {
	reply := append([]byte{0x00}, []byte("Nov 11 2020")...)
	resp, err := NewClient(diagtest.Scripted(reply), nil).Info(context.Background())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(reply, resp))

	_, err = NewClient(diagtest.Scripted(), nil).Info(context.Background())
	assert.True(t, IsTransportEmpty(err))
}

func TestInfoAndRawRepliesAreTraced(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reply := append([]byte{0x00}, []byte("Nov 11 2020")...)
	c := NewClient(diagtest.Scripted(reply, []byte{0x26, 0x01}), zap.New(core))

	_, err := c.Info(context.Background())
	require.NoError(t, err)
	_, err = c.SendRaw(context.Background(), "26 01")
	require.NoError(t, err)

	version := logs.FilterMessage("Version reply").All()
	require.Len(t, version, 1)
	assert.Equal(t, ".Nov 11 2020", version[0].ContextMap()["ascii"])
	assert.Equal(t, 1, logs.FilterMessage("Raw reply").Len())
}

func TestSendRaw(t *testing.T) {
	dev := diagtest.Scripted([]byte{0x4B, 0x13, 0x00, 0x00}, []byte{0x13, 0x4B})
	c := NewClient(dev, nil)

	r, err := c.SendRaw(context.Background(), "4b 13 00 00")
	require.NoError(t, err)
	assert.Empty(t, r.Status)

	r, err = c.SendRaw(context.Background(), "4B130000")
	require.NoError(t, err)
	assert.Equal(t, "Invalid Command Response", r.Status)

	_, err = c.SendRaw(context.Background(), "zz")
	assert.Error(t, err)
}

func TestSendRetryEmpty(t *testing.T) {
	dev := diagtest.Scripted(nil, []byte{0x26})
	resp, err := NewClient(dev, nil).SendRetryEmpty(context.Background(), []byte{0x26})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x26}, resp)
	assert.Len(t, dev.Requests(), 2)

	dev = diagtest.Scripted([]byte{0x26})
	_, _ = NewClient(dev, nil).SendRetryEmpty(context.Background(), []byte{0x26})
	assert.Len(t, dev.Requests(), 1, "answered requests are not retried")
}
