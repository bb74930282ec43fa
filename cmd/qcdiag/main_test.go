package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muurk/qcdiag/internal/config"
)

func TestParseUint16(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{"550", 550, false},
		{"0x226", 0x226, false},
		{"0X226", 0x226, false},
		{"0550", 550, false},
		{" 65535 ", 65535, false},
		{"0xFFFF", 0xFFFF, false},
		{"65536", 0, true},
		{"0x", 0, true},
		{"abc", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := parseUint16("item", tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseUint16(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseUint16(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseHexPayload(t *testing.T) {
	got, err := parseHexPayload([]string{"01 02", "0a"})
	if err != nil {
		t.Fatalf("parseHexPayload() error = %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 0x0a}) {
		t.Errorf("parseHexPayload() = % x", got)
	}

	if _, err := parseHexPayload([]string{"0g"}); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := parseHexPayload([]string{""}); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := parseMode("0755"); err != nil || m != 0o755 {
		t.Errorf("parseMode(0755) = %o, %v", m, err)
	}
	if m, err := parseMode("644"); err != nil || m != 0o644 {
		t.Errorf("parseMode(644) = %o, %v", m, err)
	}
	if _, err := parseMode("0999"); err == nil {
		t.Error("expected error for non-octal mode")
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(0); got != "-" {
		t.Errorf("formatTime(0) = %q", got)
	}
	if got := formatTime(86400); got != "1970-01-02 00:00:00" {
		t.Errorf("formatTime(86400) = %q", got)
	}
}

func TestTransportParams(t *testing.T) {
	cfg := config.Default()
	if p := transportParams(cfg); len(p) != 1 || p[0].Value != "usb" {
		t.Errorf("usb params = %v", p)
	}

	cfg.Transport.Kind = "serial"
	cfg.Serial.Port = "/dev/ttyUSB0"
	p := transportParams(cfg)
	if len(p) != 2 || p[1].Value != "/dev/ttyUSB0 @ 115200" {
		t.Errorf("serial params = %v", p)
	}

	cfg.Transport.Kind = "relay"
	cfg.Relay.Address = "ws://lab:8765/diag"
	p = withTransport(cfg)
	if len(p) != 2 || p[1].Value != "ws://lab:8765/diag" {
		t.Errorf("relay params = %v", p)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"--config", path, "config", "init"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config init: %v\n%s", err, out.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "kind: usb") {
		t.Errorf("config file missing transport kind:\n%s", data)
	}

	// a second init must not overwrite without --force
	rootCmd.SetArgs([]string{"--config", path, "config", "init"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error when the config file exists")
	}

	out.Reset()
	rootCmd.SetArgs([]string{"--config", path, "config", "show"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out.String(), "baud: 115200") {
		t.Errorf("config show output:\n%s", out.String())
	}
}

func TestInvalidLogLevelFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		_ = rootCmd.PersistentFlags().Set("log-level", "")
		settings.Set("log.level", nil)
	})

	rootCmd.SetArgs([]string{"--config", path, "--log-level", "loud", "config", "show"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected an error for --log-level loud")
	}
	if !strings.Contains(err.Error(), "log.level") {
		t.Errorf("error = %v, want it to name log.level", err)
	}
}

func TestUSBIDFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		rootCmd.PersistentFlags().Lookup("usb-id").Changed = false
		usbIDs = nil
	})

	rootCmd.SetArgs([]string{"--config", path, "--usb-id", "2c7c:0125:3", "config", "show"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config show: %v", err)
	}
	// 0x2c7c and 0x0125 in decimal
	if n := strings.Count(out.String(), "vid:"); n != 1 {
		t.Errorf("want exactly one device, got %d:\n%s", n, out.String())
	}
	if !strings.Contains(out.String(), "vid: 11388") || !strings.Contains(out.String(), "pid: 293") {
		t.Errorf("config show output:\n%s", out.String())
	}
}
