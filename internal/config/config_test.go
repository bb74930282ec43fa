package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/qcdiag/internal/transport"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Transport.Kind != "usb" {
		t.Errorf("Transport.Kind = %q, want usb", cfg.Transport.Kind)
	}
	if cfg.Serial.Baud != 115200 {
		t.Errorf("Serial.Baud = %d, want 115200", cfg.Serial.Baud)
	}
	if !cfg.Serial.RTS {
		t.Error("Serial.RTS = false, want true")
	}
	if cfg.Timeouts.Response != 2*time.Second {
		t.Errorf("Timeouts.Response = %v, want 2s", cfg.Timeouts.Response)
	}
	if len(cfg.USB.Devices) != len(transport.DefaultDiagIDs) {
		t.Errorf("USB.Devices has %d entries, want %d", len(cfg.USB.Devices), len(transport.DefaultDiagIDs))
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `version: 1
transport:
  kind: serial
serial:
  port: /dev/ttyUSB2
  baud: 921600
  rts: false
usb:
  devices:
    - vid: 0x2c7c
      pid: 0x0125
      interface: 3
timeouts:
  response: 5s
nv:
  catalog: /tmp/nvitems.xml
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Transport.Kind != "serial" {
		t.Errorf("Transport.Kind = %q", cfg.Transport.Kind)
	}
	if cfg.Serial.Port != "/dev/ttyUSB2" || cfg.Serial.Baud != 921600 || cfg.Serial.RTS {
		t.Errorf("Serial = %+v", cfg.Serial)
	}
	if len(cfg.USB.Devices) != 1 {
		t.Fatalf("USB.Devices = %v, want one entry", cfg.USB.Devices)
	}
	if got := cfg.USB.Devices[0]; got != (transport.USBID{VID: 0x2c7c, PID: 0x0125, Interface: 3}) {
		t.Errorf("USB.Devices[0] = %v", got)
	}
	if cfg.Timeouts.Response != 5*time.Second {
		t.Errorf("Timeouts.Response = %v, want 5s", cfg.Timeouts.Response)
	}
	if cfg.NV.Catalog != "/tmp/nvitems.xml" {
		t.Errorf("NV.Catalog = %q", cfg.NV.Catalog)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: 1\nserial:\n  port: /dev/ttyUSB0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QCDIAG_SERIAL_PORT", "/dev/ttyUSB7")
	t.Setenv("QCDIAG_SERIAL_BAUD", "9600")

	cfg, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyUSB7" {
		t.Errorf("Serial.Port = %q, want env value", cfg.Serial.Port)
	}
	if cfg.Serial.Baud != 9600 {
		t.Errorf("Serial.Baud = %d, want 9600", cfg.Serial.Baud)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad version", "version: 7\n", "unsupported config version"},
		{"unknown kind", "version: 1\ntransport:\n  kind: bluetooth\n", "unknown transport.kind"},
		{"relay without address", "version: 1\ntransport:\n  kind: relay\n", "relay.address is empty"},
		{"zero baud", "version: 1\nserial:\n  baud: 0\n", "serial.baud"},
		{"unknown log level", "version: 1\nlog:\n  level: loud\n", "log.level"},
		{"broken yaml", "version: [1\n", "failed to read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(nil, path)
			if err == nil {
				t.Fatal("Load() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := Default()
	cfg.Transport.Kind = "relay"
	cfg.Relay.Address = "ws://lab-pi.local:8765/diag"
	cfg.Serial.Port = "COM5"

	saved, err := Save(cfg, path)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved != path {
		t.Errorf("Save() path = %q, want %q", saved, path)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# qcdiag configuration file") {
		t.Error("saved file has no header comment")
	}
	if !strings.Contains(string(data), "rts: true") || strings.Contains(string(data), "rtscts") {
		t.Errorf("saved serial settings:\n%s", data)
	}

	loaded, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Relay.Address != cfg.Relay.Address {
		t.Errorf("Relay.Address = %q, want %q", loaded.Relay.Address, cfg.Relay.Address)
	}
	if loaded.Serial.Port != "COM5" {
		t.Errorf("Serial.Port = %q", loaded.Serial.Port)
	}
	if loaded.Timeouts.Response != cfg.Timeouts.Response {
		t.Errorf("Timeouts.Response = %v, want %v", loaded.Timeouts.Response, cfg.Timeouts.Response)
	}
	if len(loaded.USB.Devices) != len(cfg.USB.Devices) {
		t.Errorf("USB.Devices has %d entries, want %d", len(loaded.USB.Devices), len(cfg.USB.Devices))
	}
}

func TestTransportOptions(t *testing.T) {
	iface := 4
	cfg := Default()
	cfg.Transport.Kind = "serial"
	cfg.Serial.Port = "/dev/ttyUSB1"
	cfg.USB.Interface = &iface
	cfg.Timeouts.Response = 3 * time.Second

	opts := cfg.TransportOptions()
	if opts.Kind != transport.KindSerial {
		t.Errorf("Kind = %q", opts.Kind)
	}
	if opts.Serial.Port != "/dev/ttyUSB1" || opts.Serial.BaudRate != 115200 || !opts.Serial.RTS {
		t.Errorf("Serial = %+v", opts.Serial)
	}
	if opts.USB.Interface == nil || *opts.USB.Interface != 4 {
		t.Errorf("USB.Interface = %v, want 4", opts.USB.Interface)
	}
	if len(opts.Serial.Devices) != len(transport.DefaultDiagIDs) {
		t.Error("serial port lookup does not see the usb device table")
	}
	if opts.ResponseTimeout != 3*time.Second {
		t.Errorf("ResponseTimeout = %v", opts.ResponseTimeout)
	}
}

func TestSetUSBDevices(t *testing.T) {
	cfg := Default()
	if err := cfg.SetUSBDevices([]string{"2c7c:0125:3", "05c6:9091"}); err != nil {
		t.Fatalf("SetUSBDevices: %v", err)
	}
	want := []transport.USBID{
		{VID: 0x2c7c, PID: 0x0125, Interface: 3},
		{VID: 0x05c6, PID: 0x9091, Interface: transport.AnyInterface},
	}
	if len(cfg.USB.Devices) != len(want) {
		t.Fatalf("USB.Devices = %v, want %v", cfg.USB.Devices, want)
	}
	for i := range want {
		if cfg.USB.Devices[i] != want[i] {
			t.Errorf("USB.Devices[%d] = %v, want %v", i, cfg.USB.Devices[i], want[i])
		}
	}
	if got := cfg.TransportOptions().USB.Devices; len(got) != 2 {
		t.Errorf("TransportOptions USB devices = %v", got)
	}

	before := cfg.USB.Devices
	if err := cfg.SetUSBDevices([]string{"zz:0125"}); err == nil {
		t.Error("expected an error for a bad vendor id")
	}
	if len(cfg.USB.Devices) != len(before) {
		t.Error("a bad id must leave the table unchanged")
	}
}

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG lookup is linux only")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if dir != filepath.Join("/tmp/xdg", "qcdiag") {
		t.Errorf("GetConfigDir() = %q", dir)
	}

	path, err := GetConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("GetConfigPath() = %q", path)
	}
}
