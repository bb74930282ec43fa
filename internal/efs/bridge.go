package efs

import (
	"context"
	"fmt"

	"github.com/muurk/qcdiag/internal/diag"
	"github.com/muurk/qcdiag/internal/protocol"
	"go.uber.org/zap"
)

type methodState int

const (
	undetected methodState = iota
	selected
	exhausted
)

// Bridge is one EFS2 session. The method byte is detected on first use and
// never changes afterwards. A Bridge is not safe for concurrent use.
type Bridge struct {
	client *diag.Client
	logger *zap.Logger
	state  methodState
	method protocol.EfsMethod
}

// NewBridge returns a bridge with no method yet over client.
func NewBridge(client *diag.Client) *Bridge {
	return &Bridge{client: client, logger: client.Logger()}
}

// Client returns the diag client the bridge sends through.
func (b *Bridge) Client() *diag.Client {
	return b.client
}

// Method returns the selected method byte. ok is false until detection has
// succeeded.
func (b *Bridge) Method() (m protocol.EfsMethod, ok bool) {
	return b.method, b.state == selected
}

// DetectMethod selects the method byte: alternate (0x3E) first, then standard
// (0x13). If neither is echoed the session is unusable and every later
// call fails with an ExhaustedMethod error without touching the device.
func (b *Bridge) DetectMethod(ctx context.Context) (protocol.EfsMethod, error) {
	switch b.state {
	case selected:
		return b.method, nil
	case exhausted:
		return 0, diag.NewExhaustedMethod("efs detect")
	}

	for _, m := range []protocol.EfsMethod{protocol.EfsMethodAlternate, protocol.EfsMethodStandard} {
		resp, err := b.client.Send(ctx, protocol.BuildEfsHello(m))
		if err != nil {
			return 0, diag.Wrap("efs detect", err)
		}
		if len(resp) > 0 && resp[0] == byte(protocol.CmdSubsystem) {
			b.method, b.state = m, selected
			b.logger.Debug("EFS method selected", zap.Stringer("method", m))
			return m, nil
		}
		b.logger.Debug("EFS method not answered", zap.Stringer("method", m), zap.Int("response_len", len(resp)))
	}

	b.state = exhausted
	return 0, diag.NewExhaustedMethod("efs detect")
}

// exchange sends the request built for the session method and applies the
// shared EFS reply check.
func (b *Bridge) exchange(ctx context.Context, op string, build func(protocol.EfsMethod) []byte) ([]byte, error) {
	m, err := b.DetectMethod(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Send(ctx, build(m))
	if err != nil {
		return nil, diag.Wrap(op, err)
	}
	if err := protocol.CheckEfsResponse(resp); err != nil {
		return nil, diag.Wrap(op, err)
	}
	return resp, nil
}

// errnoAt decodes the errno word at off and fails on a known EFS2 code.
func errnoAt(op string, resp []byte, off int) error {
	e, err := protocol.ParseEfsErrno(resp, off)
	if err != nil {
		return diag.Wrap(op, err)
	}
	return checkErrno(op, e)
}

func checkErrno(op string, e protocol.EfsErrno) error {
	if e.Failed() {
		return diag.NewDomainError(op, uint32(e), e.String())
	}
	return nil
}

func opName(cmd, arg string) string {
	return fmt.Sprintf("efs %s %s", cmd, arg)
}
