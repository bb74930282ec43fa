package transport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/qcdiag/internal/logging"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// DefaultBaudRate is the diag serial line speed.
const DefaultBaudRate = 115200

// serialPollInterval is the per-read timeout on the port; HDLC polls until
// its own response timeout.
const serialPollInterval = 50 * time.Millisecond

// SerialConfig selects a diag serial port.
type SerialConfig struct {
	// Port is the device path (e.g. /dev/ttyUSB0, COM5). Empty means the
	// first USB serial port whose VID/PID is in Devices.
	Port     string
	BaudRate int
	// RTS raises the RTS line on open. No flow control is configured.
	RTS             bool
	Devices         []USBID
	ResponseTimeout time.Duration
}

// OpenSerial opens the port as 8N1 and wraps it in an HDLC channel.
func OpenSerial(cfg SerialConfig) (*HDLC, error) {
	name := cfg.Port
	if name == "" {
		found, err := FindSerialPort(cfg.Devices)
		if err != nil {
			return nil, err
		}
		name = found
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{
			DTR: true,
			RTS: cfg.RTS,
		},
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(serialPollInterval); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	_ = port.ResetInputBuffer()

	logging.Info("Serial port opened",
		zap.String("port", name),
		zap.Int("baud", baud),
		zap.Bool("rts", cfg.RTS),
	)
	return NewHDLC(port, cfg.ResponseTimeout, nil), nil
}

// FindSerialPort returns the first USB serial port matching ids.
func FindSerialPort(ids []USBID) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		vid, err1 := strconv.ParseUint(p.VID, 16, 16)
		pid, err2 := strconv.ParseUint(p.PID, 16, 16)
		if err1 != nil || err2 != nil {
			continue
		}
		for _, id := range ids {
			if id.VID == uint16(vid) && id.PID == uint16(pid) {
				logging.Debug("Matched diag serial port",
					zap.String("port", p.Name),
					zap.String("id", id.String()),
					zap.String("product", strings.TrimSpace(p.Product)),
				)
				return p.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no diag serial port found (checked %d known VID/PID pairs)", len(ids))
}
