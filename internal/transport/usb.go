package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/muurk/qcdiag/internal/logging"
	"go.uber.org/zap"
)

// AnyInterface selects the first vendor-specific interface on the device.
const AnyInterface = -1

// usbPollInterval is the per-read timeout on the bulk IN endpoint.
const usbPollInterval = 100 * time.Millisecond

// USBID identifies a diag capable USB device and the interface carrying diag.
type USBID struct {
	VID       uint16 `yaml:"vid" mapstructure:"vid"`
	PID       uint16 `yaml:"pid" mapstructure:"pid"`
	Interface int    `yaml:"interface" mapstructure:"interface"`
}

func (id USBID) String() string {
	return fmt.Sprintf("%04x:%04x:%d", id.VID, id.PID, id.Interface)
}

// ParseUSBID parses "vid:pid" or "vid:pid:interface" with hex ids.
func ParseUSBID(s string) (USBID, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return USBID{}, fmt.Errorf("invalid usb id %q (want vid:pid[:interface])", s)
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return USBID{}, fmt.Errorf("invalid vendor id %q: %w", parts[0], err)
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return USBID{}, fmt.Errorf("invalid product id %q: %w", parts[1], err)
	}
	id := USBID{VID: uint16(vid), PID: uint16(pid), Interface: AnyInterface}
	if len(parts) == 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return USBID{}, fmt.Errorf("invalid interface %q: %w", parts[2], err)
		}
		id.Interface = n
	}
	return id, nil
}

// DefaultDiagIDs are the devices known to expose a diag port.
var DefaultDiagIDs = []USBID{
	{0x2c7c, 0x0125, -1}, // Quectel EC25
	{0x1199, 0x9071, -1}, // Sierra Wireless
	{0x1199, 0x9091, -1},
	{0x0846, 0x68e2, 2}, // Netgear
	{0x05c6, 0x9008, -1},
	{0x0fce, 0x9dde, -1}, // Sony
	{0x0fce, 0xade5, -1},
	{0x0fce, 0xaded, -1},
	{0x05c6, 0x676c, 0},
	{0x05c6, 0x901d, 0},
	{0x19d2, 0x0016, -1}, // ZTE
	{0x19d2, 0x0076, -1},
	{0x19d2, 0x0500, -1},
	{0x19d2, 0x1404, 2},
	{0x12d1, 0x1506, -1}, // Huawei
	{0x413c, 0x81d7, 5},  // Telit LN940 / T77W968
	{0x1bc7, 0x1040, 0},  // Telit LM960A18
	{0x1bc7, 0x1041, 0},
	{0x1bc7, 0x1201, 0},
	{0x05c6, 0x9091, 0},
	{0x05c6, 0x9092, 0},
	{0x1e0e, 0x9001, -1}, // Simcom
	{0x2c7c, 0x0700, -1}, // Quectel BG65
}

// USBConfig selects a diag USB device.
type USBConfig struct {
	Devices []USBID
	// Interface overrides the interface of whichever device matches.
	// Nil keeps the table entry.
	Interface       *int
	ResponseTimeout time.Duration
}

// usbLink adapts a claimed bulk interface to io.ReadWriteCloser.
type usbLink struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	in    *gousb.InEndpoint
	out   *gousb.OutEndpoint
	once  sync.Once
	label string
}

// OpenUSB opens the first connected device in cfg.Devices, claims its diag
// interface and returns an HDLC channel over the bulk endpoints.
func OpenUSB(cfg USBConfig) (*HDLC, error) {
	ids := cfg.Devices
	if len(ids) == 0 {
		ids = DefaultDiagIDs
	}

	uctx := gousb.NewContext()
	link, err := openUSBLink(uctx, ids, cfg.Interface)
	if err != nil {
		_ = uctx.Close()
		return nil, err
	}
	logging.Info("USB diag interface claimed", zap.String("device", link.label))
	return NewHDLC(link, cfg.ResponseTimeout, nil), nil
}

func openUSBLink(uctx *gousb.Context, ids []USBID, override *int) (*usbLink, error) {
	for _, id := range ids {
		dev, err := uctx.OpenDeviceWithVIDPID(gousb.ID(id.VID), gousb.ID(id.PID))
		if err != nil {
			return nil, fmt.Errorf("open %04x:%04x: %w", id.VID, id.PID, err)
		}
		if dev == nil {
			continue
		}

		want := id.Interface
		if override != nil {
			want = *override
		}
		link, err := claimDiag(uctx, dev, want)
		if err != nil {
			_ = dev.Close()
			return nil, fmt.Errorf("claim %s: %w", id, err)
		}
		link.label = id.String()
		return link, nil
	}
	return nil, errors.New("no diag device found; is the device connected and in diag mode?")
}

func claimDiag(uctx *gousb.Context, dev *gousb.Device, want int) (*usbLink, error) {
	if err := dev.SetAutoDetach(true); err != nil {
		logging.Debug("Kernel driver auto-detach unavailable", zap.Error(err))
	}

	num, err := dev.ActiveConfigNum()
	if err != nil {
		return nil, fmt.Errorf("active config: %w", err)
	}
	cfg, err := dev.Config(num)
	if err != nil {
		return nil, fmt.Errorf("config %d: %w", num, err)
	}

	for _, desc := range cfg.Desc.Interfaces {
		if len(desc.AltSettings) == 0 {
			continue
		}
		alt := desc.AltSettings[0]
		if want == AnyInterface && alt.Class != gousb.ClassVendorSpec {
			continue
		}
		if want != AnyInterface && desc.Number != want {
			continue
		}

		inNum, outNum := -1, -1
		for _, ep := range alt.Endpoints {
			if ep.TransferType != gousb.TransferTypeBulk {
				continue
			}
			if ep.Direction == gousb.EndpointDirectionIn && inNum < 0 {
				inNum = ep.Number
			}
			if ep.Direction == gousb.EndpointDirectionOut && outNum < 0 {
				outNum = ep.Number
			}
		}
		if inNum < 0 || outNum < 0 {
			continue
		}

		intf, err := cfg.Interface(desc.Number, alt.Alternate)
		if err != nil {
			_ = cfg.Close()
			return nil, fmt.Errorf("interface %d: %w", desc.Number, err)
		}
		in, err := intf.InEndpoint(inNum)
		if err != nil {
			intf.Close()
			_ = cfg.Close()
			return nil, fmt.Errorf("in endpoint: %w", err)
		}
		out, err := intf.OutEndpoint(outNum)
		if err != nil {
			intf.Close()
			_ = cfg.Close()
			return nil, fmt.Errorf("out endpoint: %w", err)
		}
		return &usbLink{ctx: uctx, dev: dev, cfg: cfg, intf: intf, in: in, out: out}, nil
	}

	_ = cfg.Close()
	return nil, fmt.Errorf("no bulk diag interface (wanted %d)", want)
}

func (l *usbLink) Read(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), usbPollInterval)
	defer cancel()

	n, err := l.in.ReadContext(ctx, p)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gousb.TransferTimedOut) || errors.Is(err, gousb.TransferCancelled)) {
		return n, nil
	}
	return n, err
}

func (l *usbLink) Write(p []byte) (int, error) {
	return l.out.Write(p)
}

func (l *usbLink) Close() error {
	var err error
	l.once.Do(func() {
		l.intf.Close()
		if cerr := l.cfg.Close(); cerr != nil {
			err = cerr
		}
		if cerr := l.dev.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if cerr := l.ctx.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
