package diag

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/muurk/qcdiag/internal/logging"
	"github.com/muurk/qcdiag/internal/protocol"
	"go.uber.org/zap"
)

// Default unlock codes.
const (
	DefaultSP  = "FFFFFFFFFFFFFFFE"
	DefaultSPC = "303030303030"
)

// SendSP sends the security password. It reports whether the device
// accepted it. When the 0x46 form is not echoed the legacy 0x25 form is
// tried.
func (c *Client) SendSP(ctx context.Context, sp []byte) (bool, error) {
	const op = "send sp"

	req, err := protocol.BuildPassword(sp, false)
	if err != nil {
		return false, err
	}
	resp, err := c.Send(ctx, req)
	if err != nil {
		return false, Wrap(op, err)
	}
	want := byte(protocol.CmdPassword)
	if len(resp) == 0 || resp[0] != want {
		c.logger.Debug("Password opcode not echoed, trying legacy form", zap.Binary("reply", resp))
		if req, err = protocol.BuildPassword(sp, true); err != nil {
			return false, err
		}
		if resp, err = c.Send(ctx, req); err != nil {
			return false, Wrap(op, err)
		}
		want = byte(protocol.CmdLegacyPassword)
	}
	return acceptedFlag(op, resp, want)
}

// SendSPC sends the service programming code and reports whether the
// device accepted it.
func (c *Client) SendSPC(ctx context.Context, spc []byte) (bool, error) {
	const op = "send spc"

	req, err := protocol.BuildSPC(spc)
	if err != nil {
		return false, err
	}
	resp, err := c.Send(ctx, req)
	if err != nil {
		return false, Wrap(op, err)
	}
	return acceptedFlag(op, resp, byte(protocol.CmdSPC))
}

// acceptedFlag decodes the one byte accepted flag after an echoed opcode.
func acceptedFlag(op string, resp []byte, opcode byte) (bool, error) {
	if err := protocol.CheckEcho(resp, opcode); err != nil {
		return false, Wrap(op, err)
	}
	if len(resp) < 2 {
		return false, Wrap(op, protocol.ErrShortResponse)
	}
	return resp[1] == 0x01, nil
}

// Info sends the version request and returns the raw reply.
func (c *Client) Info(ctx context.Context) ([]byte, error) {
	const op = "info"

	resp, err := c.Send(ctx, []byte{byte(protocol.CmdVersionInfo)})
	if err != nil {
		return nil, Wrap(op, err)
	}
	if len(resp) == 0 {
		return nil, NewTransportEmpty(op)
	}
	logging.LogRawBytes(c.logger, "Version reply", resp)
	return resp, nil
}

// EnterDownloadMode switches the device to its download mode.
func (c *Client) EnterDownloadMode(ctx context.Context) error {
	return c.simple(ctx, "download mode", []byte{byte(protocol.CmdDownload)}, byte(protocol.CmdDownload))
}

// EnterSaharaMode asks the device to reboot into Sahara (EDL).
func (c *Client) EnterSaharaMode(ctx context.Context) error {
	req := protocol.BuildSubsystem(protocol.SubsysBoot, 0x01)
	return c.simple(ctx, "sahara mode", req, byte(protocol.CmdSubsystem))
}

// EnforceCrash makes the modem crash. With NV 1027 and 4399 set to 01 the
// device then dumps memory or reboots to download mode.
func (c *Client) EnforceCrash(ctx context.Context) error {
	req := protocol.BuildSubsystem(protocol.SubsysSystem, 0x03)
	return c.simple(ctx, "enforce crash", req, byte(protocol.CmdSubsystem))
}

func (c *Client) simple(ctx context.Context, op string, req []byte, echo byte) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return Wrap(op, err)
	}
	if len(resp) == 0 {
		return NewTransportEmpty(op)
	}
	if resp[0] != echo {
		return NewProtocolMismatch(op, resp)
	}
	return nil
}

// RawReply is the result of SendRaw.
type RawReply struct {
	Response []byte
	// Status describes the leading byte when it does not echo the request.
	Status string
}

// SendRaw sends a hex encoded request as is.
func (c *Client) SendRaw(ctx context.Context, hexReq string) (*RawReply, error) {
	req, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(hexReq), " ", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid hex request: %w", err)
	}
	if len(req) == 0 {
		return nil, fmt.Errorf("empty request")
	}
	resp, err := c.Send(ctx, req)
	if err != nil {
		return nil, Wrap("raw command", err)
	}
	if len(resp) == 0 {
		return nil, NewTransportEmpty("raw command")
	}
	logging.LogRawBytes(c.logger, "Raw reply", resp)
	out := &RawReply{Response: resp}
	if resp[0] != req[0] {
		out.Status = protocol.DescribeDiagStatus(resp)
	}
	return out, nil
}
