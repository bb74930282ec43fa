package config

import (
	"fmt"
	"time"

	"github.com/muurk/qcdiag/internal/transport"
)

// CurrentVersion is the config file format version.
const CurrentVersion = 1

// Config is the qcdiag configuration file.
//
// Sources, highest priority first: command line flags, QCDIAG_* environment
// variables, the config file, Default().
type Config struct {
	Version   int             `mapstructure:"version" yaml:"version"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Serial    SerialConfig    `mapstructure:"serial" yaml:"serial"`
	USB       USBConfig       `mapstructure:"usb" yaml:"usb"`
	Relay     RelayConfig     `mapstructure:"relay" yaml:"relay"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts" yaml:"timeouts"`
	NV        NVConfig        `mapstructure:"nv" yaml:"nv"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// TransportConfig selects how the diag port is reached.
type TransportConfig struct {
	// Kind is usb, serial or relay.
	// Default: usb
	Kind string `mapstructure:"kind" yaml:"kind"`
}

// SerialConfig configures the serial transport.
type SerialConfig struct {
	// Port is the device path. Empty picks the first port whose USB ids are
	// in the usb.devices table.
	Port string `mapstructure:"port" yaml:"port,omitempty"`

	// Baud is the line speed.
	// Default: 115200
	Baud int `mapstructure:"baud" yaml:"baud"`

	// RTS raises the RTS line when the port opens. The serial driver has
	// no hardware flow control; this only sets the modem line.
	// Default: true
	RTS bool `mapstructure:"rts" yaml:"rts"`
}

// USBConfig configures the USB transport.
type USBConfig struct {
	// Devices is the VID/PID/interface table tried in order.
	Devices []transport.USBID `mapstructure:"devices" yaml:"devices"`

	// Interface overrides the interface number of whichever device matches.
	Interface *int `mapstructure:"interface" yaml:"interface,omitempty"`
}

// RelayConfig configures the websocket relay client.
type RelayConfig struct {
	// Address is a ws:// URL, e.g. ws://lab-pi.local:8765/diag.
	Address string `mapstructure:"address" yaml:"address,omitempty"`
}

// TimeoutConfig holds protocol timeouts.
type TimeoutConfig struct {
	// Response bounds the wait for a single reply.
	// Default: 2s
	Response time.Duration `mapstructure:"response" yaml:"response"`
}

// NVConfig configures NV item handling.
type NVConfig struct {
	// Catalog is an optional nvitems.xml or YAML file replacing the
	// embedded item names.
	Catalog string `mapstructure:"catalog" yaml:"catalog,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error. Empty disables logging.
	Level string `mapstructure:"level" yaml:"level,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:   CurrentVersion,
		Transport: TransportConfig{Kind: string(transport.KindUSB)},
		Serial:    SerialConfig{Baud: 115200, RTS: true},
		USB:       USBConfig{Devices: append([]transport.USBID(nil), transport.DefaultDiagIDs...)},
		Timeouts:  TimeoutConfig{Response: transport.DefaultResponseTimeout},
	}
}

// SetUSBDevices replaces the USB device table with ids in
// "vid:pid[:interface]" form.
func (c *Config) SetUSBDevices(ids []string) error {
	devices := make([]transport.USBID, 0, len(ids))
	for _, s := range ids {
		id, err := transport.ParseUSBID(s)
		if err != nil {
			return fmt.Errorf("usb.devices: %w", err)
		}
		devices = append(devices, id)
	}
	c.USB.Devices = devices
	return nil
}

// TransportOptions converts the configuration into transport options.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		Kind: transport.Kind(c.Transport.Kind),
		Serial: transport.SerialConfig{
			Port:     c.Serial.Port,
			BaudRate: c.Serial.Baud,
			RTS:      c.Serial.RTS,
			Devices:  c.USB.Devices,
		},
		USB: transport.USBConfig{
			Devices:   c.USB.Devices,
			Interface: c.USB.Interface,
		},
		RelayURL:        c.Relay.Address,
		ResponseTimeout: c.Timeouts.Response,
	}
}
